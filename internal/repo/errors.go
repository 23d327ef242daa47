// Package repo holds the persistence contracts shared by the template store
// and its backends.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/univer-labs/plugins-api/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// StorageError reports an OS-level failure reading or writing the backing
// file. The collection on disk is unchanged when it is returned.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("template storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TemplateFile loads and replaces the whole persisted template collection.
type TemplateFile interface {
	Load(ctx context.Context) ([]domain.Template, error)
	Save(ctx context.Context, templates []domain.Template) error
}
