package store

import (
	"strings"

	"github.com/pkg/errors"
)

type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendYAML   Backend = "yaml"
	BackendMemory Backend = "memory"
)

// Open returns the Store for backend. path is ignored for the memory backend.
func Open(backend Backend, path string) (Store, error) {
	switch Backend(strings.ToLower(string(backend))) {
	case BackendSQLite, "":
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case BackendYAML:
		return NewYAMLFileStore(path)
	case BackendMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown store backend %q", backend)
	}
}
