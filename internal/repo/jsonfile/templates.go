// Package jsonfile persists the template collection as a single JSON array.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/univer-labs/plugins-api/internal/domain"
	"github.com/univer-labs/plugins-api/internal/repo"
)

const DefaultPath = "templates_store.json"

// AfterSaveFunc observes the exact bytes of every successful save.
type AfterSaveFunc func(ctx context.Context, data []byte)

type Option func(*TemplateFile)

func WithAfterSave(fn AfterSaveFunc) Option {
	return func(f *TemplateFile) {
		if fn != nil {
			f.afterSave = append(f.afterSave, fn)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *TemplateFile) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// TemplateFile is not safe for concurrent Save calls on its own; the
// template store serializes access.
type TemplateFile struct {
	path      string
	logger    *slog.Logger
	afterSave []AfterSaveFunc
}

var _ repo.TemplateFile = (*TemplateFile)(nil)

func New(path string, opts ...Option) (*TemplateFile, error) {
	if path == "" {
		path = DefaultPath
	}
	clean := filepath.Clean(path)
	if info, err := os.Stat(clean); err == nil && info.IsDir() {
		return nil, fmt.Errorf("template store path %s is a directory", clean)
	}
	f := &TemplateFile{
		path:   clean,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *TemplateFile) Path() string { return f.path }

// Load returns the persisted collection. A missing file, invalid JSON or a
// top-level value that is not an array read as an empty collection. Inside
// a well-formed array every object is kept; elements that are not objects
// are skipped with a warning. Only I/O failures are reported.
func (f *TemplateFile) Load(ctx context.Context) ([]domain.Template, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Template{}, nil
		}
		return nil, &repo.StorageError{Op: "read", Path: f.path, Err: err}
	}

	decoded, err := Parse(raw)
	if err != nil {
		f.logger.WarnContext(ctx, "template store unreadable, treating as empty", "path", f.path, "error", err)
		return []domain.Template{}, nil
	}
	if len(decoded.Skipped) > 0 {
		f.logger.WarnContext(ctx, "template store has non-object elements, skipping them",
			"path", f.path, "indexes", decoded.Skipped)
	}
	return decoded.Templates, nil
}

// Save atomically replaces the backing file with the given collection.
func (f *TemplateFile) Save(ctx context.Context, templates []domain.Template) error {
	data, err := Encode(templates)
	if err != nil {
		return &repo.StorageError{Op: "encode", Path: f.path, Err: err}
	}
	if err := WriteAtomic(f.path, data); err != nil {
		return &repo.StorageError{Op: "write", Path: f.path, Err: err}
	}
	for _, fn := range f.afterSave {
		fn(ctx, data)
	}
	return nil
}

// Decoded is a parsed store file body.
type Decoded struct {
	Templates []domain.Template
	// Skipped lists the array indexes of elements that are not JSON objects.
	Skipped []int
}

// Parse reads a store file body element by element, so one record with an
// unexpected shape cannot hide the others. It fails only when the body is
// not a JSON array. Whitespace-only input is an empty collection.
func Parse(raw []byte) (Decoded, error) {
	out := Decoded{Templates: []domain.Template{}}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out, nil
	}
	if raw[0] != '[' {
		return Decoded{}, errors.New("store file is not a JSON array")
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return Decoded{}, fmt.Errorf("decode store file: %w", err)
	}
	for i, elem := range elems {
		var tpl domain.Template
		if err := json.Unmarshal(elem, &tpl); err != nil {
			out.Skipped = append(out.Skipped, i)
			continue
		}
		content, err := domain.NormalizeContent(tpl.Content)
		if err != nil {
			out.Skipped = append(out.Skipped, i)
			continue
		}
		tpl.Content = content
		out.Templates = append(out.Templates, tpl)
	}
	return out, nil
}

// Decode is Parse for callers that need every element to be a template.
func Decode(raw []byte) ([]domain.Template, error) {
	decoded, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(decoded.Skipped) > 0 {
		return nil, fmt.Errorf("store file elements %v are not template objects", decoded.Skipped)
	}
	return decoded.Templates, nil
}

// Encode renders the collection the way it is stored on disk: an indented
// array with non-ASCII text left as is.
func Encode(templates []domain.Template) ([]byte, error) {
	if templates == nil {
		templates = []domain.Template{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(templates); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteAtomic writes data to a sibling temp file and renames it over path,
// so readers observe either the old or the new contents.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
