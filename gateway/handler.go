package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"userinfo-gateway/middleware/render"
)

// Response é o resultado de um handler de negócio. Body é serializado em JSON.
type Response struct {
	Status int
	Body   any
	Header http.Header
}

// OK monta uma resposta 200.
func OK(body any) *Response { return &Response{Status: http.StatusOK, Body: body} }

// Handler trata uma requisição já admitida e autenticada.
type Handler interface {
	Handle(r *http.Request) (*Response, error)
}

type HandlerFunc func(r *http.Request) (*Response, error)

func (f HandlerFunc) Handle(r *http.Request) (*Response, error) { return f(r) }

// StatusError deixa um handler escolher status e mensagem de erro (ex.: 400, 404).
// Qualquer outro erro vira 500 genérico.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string { return fmt.Sprintf("%d: %s", e.Status, e.Message) }

func Errorf(status int, format string, args ...any) error {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

const internalErrorMessage = "internal server error"

// adapt converte um Handler em http.Handler. Erro ou panic viram 500; a causa real só vai
// para o log.
func adapt(h Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w := &statusWriter{ResponseWriter: rw}
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic",
					"request_id", RequestID(r.Context()), "path", r.URL.Path, "panic", rec)
				// só vira 500 se nada foi escrito ainda
				if !w.wrote {
					render.Error(w, http.StatusInternalServerError, internalErrorMessage)
				}
			}
		}()

		resp, err := h.Handle(r)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) {
				render.Error(w, se.Status, se.Message)
				return
			}
			logger.Error("handler failed",
				"request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
			render.Error(w, http.StatusInternalServerError, internalErrorMessage)
			return
		}
		writeResponse(w, resp)
	})
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	if resp == nil {
		render.CORS(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	render.JSON(w, status, resp.Body)
}
