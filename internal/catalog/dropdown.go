package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/univer-labs/plugins-api/internal/platform/textmatch"
)

//go:embed data/dropdown_sources.yaml
var dropdownSourcesYAML []byte

var ErrUnknownSource = errors.New("unknown dropdown source")

// Record is one flat row of a dropdown source.
type Record map[string]any

type SourceSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type source struct {
	ID      string   `yaml:"id"`
	Records []Record `yaml:"records"`
}

// Dropdown is an immutable set of named reference sources.
type Dropdown struct {
	order   []string
	sources map[string][]Record
}

// DefaultDropdown parses the embedded reference datasets.
func DefaultDropdown() (*Dropdown, error) {
	return ParseDropdown(dropdownSourcesYAML)
}

func ParseDropdown(raw []byte) (*Dropdown, error) {
	var doc struct {
		Sources []source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode dropdown sources: %w", err)
	}
	d := &Dropdown{sources: make(map[string][]Record, len(doc.Sources))}
	for _, src := range doc.Sources {
		if src.ID == "" {
			return nil, errors.New("dropdown source without id")
		}
		if _, dup := d.sources[src.ID]; dup {
			return nil, fmt.Errorf("duplicate dropdown source %q", src.ID)
		}
		records := src.Records
		if records == nil {
			records = []Record{}
		}
		d.order = append(d.order, src.ID)
		d.sources[src.ID] = records
	}
	return d, nil
}

// Sources lists every source in declaration order.
func (d *Dropdown) Sources() []SourceSummary {
	out := make([]SourceSummary, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, SourceSummary{
			ID:    id,
			Name:  textmatch.Title(id),
			Count: len(d.sources[id]),
		})
	}
	return out
}

func (d *Dropdown) Records(sourceID string) ([]Record, error) {
	records, ok := d.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return cloneRecords(records), nil
}

// Search filters a source by case-insensitive substring. With a field only
// that field is compared (a missing field never matches a non-empty query);
// without one any value may match. An empty query returns every record.
func (d *Dropdown) Search(sourceID, query, field string) ([]Record, error) {
	records, ok := d.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	if query == "" {
		return cloneRecords(records), nil
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.matches(query, field) {
			out = append(out, maps.Clone(rec))
		}
	}
	return out, nil
}

func (r Record) matches(query, field string) bool {
	if field != "" {
		return textmatch.ContainsFold(textmatch.Stringify(r[field]), query)
	}
	for _, v := range r {
		if textmatch.ContainsFold(textmatch.Stringify(v), query) {
			return true
		}
	}
	return false
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, rec := range in {
		out[i] = maps.Clone(rec)
	}
	return out
}
