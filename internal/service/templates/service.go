// Package templates is the template store: the built-in seed templates merged
// with the user collection persisted through a repo.TemplateFile.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/univer-labs/plugins-api/internal/catalog"
	"github.com/univer-labs/plugins-api/internal/domain"
	"github.com/univer-labs/plugins-api/internal/platform/textmatch"
	"github.com/univer-labs/plugins-api/internal/repo"
)

const tracerName = "github.com/univer-labs/plugins-api/internal/service/templates"

var ErrInvalidInput = errors.New("invalid template input")

// Input carries the caller-supplied fields of a create or update.
type Input struct {
	Name     string
	Category string
	Content  json.RawMessage
}

// Filter narrows List. Empty fields do not filter.
type Filter struct {
	Category string
	Query    string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithSeeds replaces the built-in seed templates.
func WithSeeds(seeds []domain.Template) Option {
	return func(s *Store) {
		s.seeds = domain.CloneTemplates(seeds)
	}
}

// Store serializes every read and load-mutate-save of the persisted
// collection through one mutex. Seeds are read-only and need no lock.
type Store struct {
	mu     sync.Mutex
	file   repo.TemplateFile
	seeds  []domain.Template
	now    func() time.Time
	newID  func() string
	tracer trace.Tracer
}

func New(file repo.TemplateFile, opts ...Option) (*Store, error) {
	if file == nil {
		return nil, errors.New("template file is required")
	}
	seeds, err := catalog.SeedTemplates()
	if err != nil {
		return nil, err
	}
	s := &Store{
		file:   file,
		seeds:  seeds,
		now:    time.Now,
		newID:  uuid.NewString,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns seeds and persisted templates matching the filter, most
// recently updated first. Ties keep seed-then-file order.
func (s *Store) List(ctx context.Context, filter Filter) (out []domain.Template, err error) {
	ctx, span := s.tracer.Start(ctx, "templates.list", trace.WithAttributes(
		attribute.String("template.category", filter.Category),
		attribute.Bool("template.query", filter.Query != ""),
	))
	defer func() { endSpan(span, err) }()

	persisted, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	out = make([]domain.Template, 0, len(s.seeds)+len(persisted))
	for _, t := range s.seeds {
		if filter.matches(t) {
			out = append(out, t.Clone())
		}
	}
	for _, t := range persisted {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Template) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	span.SetAttributes(attribute.Int("template.count", len(out)))
	return out, nil
}

func (f Filter) matches(t domain.Template) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return textmatch.ContainsFold(t.Name, f.Query)
}

// Get looks the id up among seeds first, then in the persisted collection.
func (s *Store) Get(ctx context.Context, id string) (_ domain.Template, err error) {
	ctx, span := s.tracer.Start(ctx, "templates.get", trace.WithAttributes(attribute.String("template.id", id)))
	defer func() { endSpan(span, err) }()

	for _, t := range s.seeds {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	persisted, err := s.loadLocked(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	if i := indexOf(persisted, id); i >= 0 {
		return persisted[i], nil
	}
	return domain.Template{}, repo.ErrNotFound
}

// Create persists a new template. A persisted template with the same name
// and category is a conflict; seeds do not take part in the check.
func (s *Store) Create(ctx context.Context, in Input) (_ domain.Template, err error) {
	ctx, span := s.tracer.Start(ctx, "templates.create", trace.WithAttributes(
		attribute.String("template.category", in.Category),
	))
	defer func() { endSpan(span, err) }()

	content, err := normalize(in)
	if err != nil {
		return domain.Template{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.file.Load(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	for _, t := range persisted {
		if t.SameKey(in.Name, in.Category) {
			return domain.Template{}, fmt.Errorf("%w: template %q already exists in category %q", repo.ErrConflict, in.Name, in.Category)
		}
	}

	now := s.now().UTC()
	created := domain.Template{
		ID:        s.newID(),
		Name:      in.Name,
		Category:  in.Category,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.file.Save(ctx, append(persisted, created)); err != nil {
		return domain.Template{}, err
	}
	span.SetAttributes(attribute.String("template.id", created.ID))
	return created.Clone(), nil
}

// Update replaces name, category and content of a persisted template. Seeds
// cannot be updated. The (name, category) pair is not re-checked.
func (s *Store) Update(ctx context.Context, id string, in Input) (_ domain.Template, err error) {
	ctx, span := s.tracer.Start(ctx, "templates.update", trace.WithAttributes(attribute.String("template.id", id)))
	defer func() { endSpan(span, err) }()

	content, err := normalize(in)
	if err != nil {
		return domain.Template{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.file.Load(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	i := indexOf(persisted, id)
	if i < 0 {
		return domain.Template{}, repo.ErrNotFound
	}

	updated := persisted[i]
	updated.Name = in.Name
	updated.Category = in.Category
	updated.Content = content
	now := s.now().UTC()
	if now.Before(updated.UpdatedAt) {
		now = updated.UpdatedAt
	}
	updated.UpdatedAt = now
	persisted[i] = updated

	if err := s.file.Save(ctx, persisted); err != nil {
		return domain.Template{}, err
	}
	return updated.Clone(), nil
}

// Delete removes a persisted template and returns its id.
func (s *Store) Delete(ctx context.Context, id string) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "templates.delete", trace.WithAttributes(attribute.String("template.id", id)))
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, err := s.file.Load(ctx)
	if err != nil {
		return "", err
	}
	i := indexOf(persisted, id)
	if i < 0 {
		return "", repo.ErrNotFound
	}
	if err := s.file.Save(ctx, slices.Delete(persisted, i, i+1)); err != nil {
		return "", err
	}
	return id, nil
}

// Count reports the number of persisted templates, seeds excluded.
func (s *Store) Count(ctx context.Context) (_ int, err error) {
	ctx, span := s.tracer.Start(ctx, "templates.count")
	defer func() { endSpan(span, err) }()

	persisted, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	return len(persisted), nil
}

func (s *Store) loadLocked(ctx context.Context) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Load(ctx)
}

func normalize(in Input) (json.RawMessage, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	content, err := domain.NormalizeContent(in.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return content, nil
}

func indexOf(templates []domain.Template, id string) int {
	return slices.IndexFunc(templates, func(t domain.Template) bool { return t.ID == id })
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
