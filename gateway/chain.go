package gateway

import "net/http"

// Interceptor é uma unidade da cadeia: responde sozinho (curto-circuito) ou chama next sem
// alterar a requisição.
type Interceptor interface {
	Intercept(w http.ResponseWriter, r *http.Request, next http.Handler)
}

type InterceptorFunc func(w http.ResponseWriter, r *http.Request, next http.Handler)

func (f InterceptorFunc) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f(w, r, next)
}

// Chain é uma lista ordenada de interceptors; o primeiro é o mais externo.
type Chain []Interceptor

// Then monta a cadeia em volta de h uma única vez.
func (c Chain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		ic, next := c[i], h
		if ic == nil {
			continue
		}
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ic.Intercept(w, r, next)
		})
	}
	return h
}
