package stats

import (
	"net/http"

	"github.com/gorilla/mux"

	"userinfo-gateway/middleware/clientid"
)

// UnroutedLabel agrupa requisições que não passaram por uma rota do mux.
const UnroutedLabel = "unrouted"

// OtherKeyLabel agrupa clientes além do limite de WithMaxKeys.
const OtherKeyLabel = "other"

// RouteLabel devolve o template da rota casada ("/api/user/info", "/" para o proxy), nunca o
// path cru: o número de rótulos fica limitado ao número de rotas registradas.
func RouteLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return UnroutedLabel
	}
	if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
		return tpl
	}
	return UnroutedLabel
}

// NewEvent monta o evento de uma decisão já com rótulos seguros: rota pelo template e
// cliente com a chave em hash.
func NewEvent(r *http.Request, layer string, outcome Outcome, clientID string) Event {
	return Event{
		Key:     clientid.Redact(clientID),
		Layer:   layer,
		Outcome: outcome,
		Method:  r.Method,
		Path:    RouteLabel(r),
	}
}

// perKey informa se o evento entra nos contadores por cliente. Só conta quem a camada de
// segurança admitiu; tentativas com chaves inventadas ficam apenas nos totais.
func perKey(ev Event) bool {
	return ev.Key != "" && ev.Layer == LayerSecurity && ev.Outcome == Allowed
}
