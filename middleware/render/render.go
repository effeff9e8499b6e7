// Package render escreve as respostas JSON do gateway, sempre com os headers de CORS.
package render

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type, X-API-Key"
	// preflight fica em cache no navegador por um dia
	MaxAge = "86400"

	contentTypeJSON = "application/json; charset=UTF-8"
)

// CORS aplica os headers de CORS em h.
func CORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", AllowOrigin)
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	h.Set("Access-Control-Allow-Headers", AllowHeaders)
}

// Preflight responde um OPTIONS: 200, corpo vazio.
func Preflight(w http.ResponseWriter) {
	CORS(w.Header())
	w.Header().Set("Access-Control-Max-Age", MaxAge)
	w.WriteHeader(http.StatusOK)
}

// JSON serializa v e escreve com o status informado.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Default().Error("render: marshal response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error","code":500}`)
	}

	CORS(w.Header())
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ErrorBody é o envelope mínimo de erro.
type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Error escreve {"error": msg, "code": status}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg, Code: status})
}
