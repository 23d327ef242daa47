package catalog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSeedTemplates(t *testing.T) {
	seeds, err := SeedTemplates()
	if err != nil {
		t.Fatalf("SeedTemplates() err=%v", err)
	}
	gotIDs := make([]string, 0, len(seeds))
	for _, s := range seeds {
		gotIDs = append(gotIDs, s.ID)
		if s.CreatedAt.After(s.UpdatedAt) {
			t.Fatalf("seed %s created_at after updated_at", s.ID)
		}
		if !json.Valid(s.Content) {
			t.Fatalf("seed %s content is not valid JSON", s.ID)
		}
	}
	if diff := cmp.Diff([]string{"tpl-001", "tpl-002", "tpl-003"}, gotIDs); diff != "" {
		t.Fatalf("seed ids (-want +got):\n%s", diff)
	}
}

func TestSeedTemplates_ReturnsCopies(t *testing.T) {
	first, err := SeedTemplates()
	if err != nil {
		t.Fatalf("SeedTemplates() err=%v", err)
	}
	first[0].Name = "changed"
	first[0].Content[0] = ' '

	second, err := SeedTemplates()
	if err != nil {
		t.Fatalf("SeedTemplates() err=%v", err)
	}
	if second[0].Name != "Sales Report Template" {
		t.Fatalf("seed name mutated: %q", second[0].Name)
	}
	if second[0].Content[0] != '{' {
		t.Fatalf("seed content mutated")
	}
}

func TestDropdown_Sources(t *testing.T) {
	d, err := DefaultDropdown()
	if err != nil {
		t.Fatalf("DefaultDropdown() err=%v", err)
	}
	want := []SourceSummary{
		{ID: "products", Name: "Products", Count: 8},
		{ID: "employees", Name: "Employees", Count: 6},
		{ID: "customers", Name: "Customers", Count: 5},
		{ID: "categories", Name: "Categories", Count: 4},
	}
	if diff := cmp.Diff(want, d.Sources()); diff != "" {
		t.Fatalf("Sources() (-want +got):\n%s", diff)
	}
}

func TestDropdown_RecordsUnknownSource(t *testing.T) {
	d, err := DefaultDropdown()
	if err != nil {
		t.Fatalf("DefaultDropdown() err=%v", err)
	}
	if _, err := d.Records("suppliers"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("Records() err=%v, want ErrUnknownSource", err)
	}
	if _, err := d.Search("suppliers", "x", ""); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("Search() err=%v, want ErrUnknownSource", err)
	}
}

func ids(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r["id"].(string))
	}
	return out
}

func TestDropdown_Search(t *testing.T) {
	d, err := DefaultDropdown()
	if err != nil {
		t.Fatalf("DefaultDropdown() err=%v", err)
	}

	tests := []struct {
		name   string
		source string
		query  string
		field  string
		want   []string
	}{
		{name: "empty query returns all", source: "categories", want: []string{"CAT01", "CAT02", "CAT03", "CAT04"}},
		{name: "field match is case-insensitive", source: "products", query: "DESK", field: "name", want: []string{"P004", "P008"}},
		{name: "any field", source: "products", query: "furniture", want: []string{"P004", "P008"}},
		{name: "numeric values are stringified", source: "products", query: "1200", want: []string{"P001"}},
		{name: "numeric field", source: "employees", query: "21", field: "salary", want: []string{"E004"}},
		{name: "missing field never matches", source: "customers", query: "a", field: "nope", want: []string{}},
		{name: "no match", source: "employees", query: "zzz", want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := d.Search(tc.source, tc.query, tc.field)
			if err != nil {
				t.Fatalf("Search() err=%v", err)
			}
			if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
				t.Fatalf("Search() ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDropdown_RecordsAreCopies(t *testing.T) {
	d, err := DefaultDropdown()
	if err != nil {
		t.Fatalf("DefaultDropdown() err=%v", err)
	}
	records, err := d.Records("products")
	if err != nil {
		t.Fatalf("Records() err=%v", err)
	}
	records[0]["name"] = "Tampered"

	again, err := d.Records("products")
	if err != nil {
		t.Fatalf("Records() err=%v", err)
	}
	if again[0]["name"] != "Laptop" {
		t.Fatalf("catalog mutated through returned record: %v", again[0]["name"])
	}
}

func TestParseDropdown_RejectsDuplicates(t *testing.T) {
	raw := []byte("sources:\n  - id: a\n  - id: a\n")
	if _, err := ParseDropdown(raw); err == nil {
		t.Fatalf("ParseDropdown() expected duplicate error")
	}
}
