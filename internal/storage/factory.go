package storage

import "fmt"

const (
	KindMemory = "memory"
	KindDir    = "dir"
	KindSQLite = "sqlite"
)

// NewMedium builds the backend named by kind. path is the directory for dir
// and the database file for sqlite.
func NewMedium(kind, path string) (Medium, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryMedium(), nil
	case KindDir:
		if path == "" {
			return nil, fmt.Errorf("dir backend requires a path")
		}
		return NewDirMedium(path), nil
	case KindSQLite:
		return newSQLiteMedium(path)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", kind)
	}
}

func CloseIfSupported(medium Medium) error {
	closer, ok := medium.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
