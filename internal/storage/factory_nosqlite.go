//go:build !sqlite

package storage

import "fmt"

func DefaultKind() string {
	return KindMemory
}

func newSQLiteMedium(_ string) (Medium, error) {
	return nil, fmt.Errorf("sqlite backend unavailable in this build; rebuild with -tags sqlite")
}
