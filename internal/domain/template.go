package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"
)

// Template is a named, categorized spreadsheet document. Content is kept as
// raw JSON so the store never has to understand the workbook layout.
//
// Extra holds stored keys the type does not model, plus the raw value of any
// modelled key that did not parse. Both are written back on encode so a
// rewrite of the store file never drops data.
type Template struct {
	ID        string
	Name      string
	Category  string
	Content   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	Extra     map[string]json.RawMessage
}

const (
	keyID        = "id"
	keyName      = "name"
	keyCategory  = "category"
	keyContent   = "content"
	keyCreatedAt = "created_at"
	keyUpdatedAt = "updated_at"
)

// timestampLayouts are tried in order; layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts any JSON object. Fields with an unexpected shape are
// kept verbatim in Extra rather than failing the whole record.
func (t *Template) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("template is not a JSON object")
	}

	*t = Template{}
	keep := func(key string) {
		if t.Extra == nil {
			t.Extra = make(map[string]json.RawMessage)
		}
		t.Extra[key] = fields[key]
	}
	for key, raw := range fields {
		var ok bool
		switch key {
		case keyID:
			ok = json.Unmarshal(raw, &t.ID) == nil
		case keyName:
			ok = json.Unmarshal(raw, &t.Name) == nil
		case keyCategory:
			ok = json.Unmarshal(raw, &t.Category) == nil
		case keyContent:
			t.Content, ok = raw, true
		case keyCreatedAt:
			t.CreatedAt, ok = parseTimestamp(raw)
		case keyUpdatedAt:
			t.UpdatedAt, ok = parseTimestamp(raw)
		}
		if !ok {
			keep(key)
		}
	}
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// MarshalJSON writes the modelled keys first, in a fixed order, then Extra
// keys sorted by name. A modelled key left at its zero value falls back to
// the raw value kept in Extra.
func (t Template) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := enc.Encode(key); err != nil {
			return err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		if raw, ok := value.(json.RawMessage); ok {
			buf.Write(raw)
			return nil
		}
		if err := enc.Encode(value); err != nil {
			return err
		}
		buf.Truncate(buf.Len() - 1)
		return nil
	}
	pick := func(key string, zero bool, value any) any {
		if raw, ok := t.Extra[key]; ok && zero {
			return raw
		}
		return value
	}

	content := t.Content
	if len(bytes.TrimSpace(content)) == 0 {
		content = json.RawMessage("null")
	}
	modelled := []struct {
		key   string
		value any
	}{
		{keyID, pick(keyID, t.ID == "", t.ID)},
		{keyName, pick(keyName, t.Name == "", t.Name)},
		{keyCategory, pick(keyCategory, t.Category == "", t.Category)},
		{keyContent, content},
		{keyCreatedAt, pick(keyCreatedAt, t.CreatedAt.IsZero(), t.CreatedAt)},
		{keyUpdatedAt, pick(keyUpdatedAt, t.UpdatedAt.IsZero(), t.UpdatedAt)},
	}
	for _, m := range modelled {
		if err := write(m.key, m.value); err != nil {
			return nil, err
		}
	}
	for _, key := range slices.Sorted(maps.Keys(t.Extra)) {
		if isModelled(key) {
			continue
		}
		if err := write(key, t.Extra[key]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isModelled(key string) bool {
	switch key {
	case keyID, keyName, keyCategory, keyContent, keyCreatedAt, keyUpdatedAt:
		return true
	}
	return false
}

// Clone returns a copy that shares no memory with t.
func (t Template) Clone() Template {
	out := t
	if t.Content != nil {
		out.Content = append(json.RawMessage(nil), t.Content...)
	}
	if t.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// SameKey reports whether both templates carry the same (name, category)
// pair, the uniqueness key for persisted templates.
func (t Template) SameKey(name, category string) bool {
	return t.Name == name && t.Category == category
}

// NormalizeContent compacts a JSON value without changing its shape. A
// missing value becomes JSON null.
func NormalizeContent(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, errors.New("content is not valid JSON")
	}
	return json.RawMessage(buf.Bytes()), nil
}

func CloneTemplates(in []Template) []Template {
	out := make([]Template, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
