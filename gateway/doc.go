// Package gateway é o Dispatcher HTTP: registra rotas, monta a cadeia fixa
// Rate Limit -> Segurança -> handler de negócio e renderiza erros e CORS.
//
// Handlers de negócio implementam Handler e não conhecem a cadeia. Um erro devolvido (ou um
// panic) vira 500 com mensagem genérica; StatusError escolhe outro status.
package gateway
