//go:build sqlite

package storage

func DefaultKind() string {
	return KindSQLite
}

func newSQLiteMedium(path string) (Medium, error) {
	if path == "" {
		path = "neuromem.db"
	}
	return NewSQLiteMedium(path), nil
}
