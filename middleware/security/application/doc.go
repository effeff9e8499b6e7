// Package application implementa o gerenciador de credenciais e de acesso: geração,
// validação, revogação e uso de API keys, e a checagem de IP contra a allowlist.
package application
