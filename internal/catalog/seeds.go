// Package catalog holds the immutable datasets compiled into the service:
// the example templates and the dropdown reference sources.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/univer-labs/plugins-api/internal/domain"
	"github.com/univer-labs/plugins-api/internal/repo/jsonfile"
)

//go:embed data/seed_templates.json
var seedTemplatesJSON []byte

var loadSeeds = sync.OnceValues(func() ([]domain.Template, error) {
	seeds, err := jsonfile.Decode(seedTemplatesJSON)
	if err != nil {
		return nil, fmt.Errorf("decode seed templates: %w", err)
	}
	return seeds, nil
})

// SeedTemplates returns a private copy of the built-in example templates.
func SeedTemplates() ([]domain.Template, error) {
	seeds, err := loadSeeds()
	if err != nil {
		return nil, err
	}
	return domain.CloneTemplates(seeds), nil
}
