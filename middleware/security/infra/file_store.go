package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"userinfo-gateway/middleware/security/domain"
)

// FileKeyStore guarda a tabela como um objeto JSON {chave: registro}.
//
// Save escreve em um arquivo temporário e renomeia, então um leitor nunca vê a tabela pela
// metade.
type FileKeyStore struct {
	path string
}

func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

func (s *FileKeyStore) Path() string { return s.path }

func (s *FileKeyStore) Load(_ context.Context) (map[string]domain.APIKey, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]domain.APIKey{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	keys := map[string]domain.APIKey{}
	if len(data) == 0 {
		return keys, nil
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", s.path, err)
	}
	for k, rec := range keys {
		// o índice do mapa é a fonte da verdade para a chave
		rec.Key = k
		keys[k] = rec
	}
	return keys, nil
}

func (s *FileKeyStore) Save(_ context.Context, keys map[string]domain.APIKey) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key table: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace key file: %w", err)
	}
	return nil
}
