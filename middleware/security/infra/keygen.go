package infra

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	KeyPrefix = "UK_"
	keyLength = 32
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateKey gera uma chave opaca: prefixo fixo + 32 caracteres alfanuméricos sorteados
// com crypto/rand.
func GenerateKey() (string, error) {
	buf := make([]byte, 0, len(KeyPrefix)+keyLength)
	buf = append(buf, KeyPrefix...)

	n := big.NewInt(int64(len(alphabet)))
	for range keyLength {
		i, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("generate api key: %w", err)
		}
		buf = append(buf, alphabet[i.Int64()])
	}
	return string(buf), nil
}

// MaskKey esconde a chave para logs: mostra só o começo e o fim.
func MaskKey(key string) string {
	if len(key) < 12 {
		return "****"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
