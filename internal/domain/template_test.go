package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent(json.RawMessage(" {\n  \"sheetOrder\": [ \"sheet1\" ],\n  \"n\": 12345678901234567890 }\n"))
	if err != nil {
		t.Fatalf("NormalizeContent() err=%v", err)
	}
	want := `{"sheetOrder":["sheet1"],"n":12345678901234567890}`
	if string(got) != want {
		t.Fatalf("NormalizeContent()=%s, want %s", got, want)
	}

	got, err = NormalizeContent(nil)
	if err != nil || string(got) != "null" {
		t.Fatalf("NormalizeContent(nil)=%s, %v; want null", got, err)
	}

	if _, err := NormalizeContent(json.RawMessage("{broken")); err == nil {
		t.Fatalf("NormalizeContent() expected error for invalid JSON")
	}
}

func TestClone_DoesNotShareContent(t *testing.T) {
	orig := Template{ID: "a", Content: json.RawMessage(`{"a":1}`), CreatedAt: time.Unix(0, 0).UTC()}
	cp := orig.Clone()
	cp.Content[2] = 'b'
	if string(orig.Content) != `{"a":1}` {
		t.Fatalf("original content mutated: %s", orig.Content)
	}
}

func TestTemplate_JSONFieldNames(t *testing.T) {
	ts := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(Template{
		ID:        "tpl-x",
		Name:      "n",
		Category:  "c",
		Content:   json.RawMessage(`{"k":[1,2]}`),
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"tpl-x","name":"n","category":"c","content":{"k":[1,2]},"created_at":"2025-12-01T10:00:00Z","updated_at":"2025-12-01T10:00:00Z"}`
	if string(raw) != want {
		t.Fatalf("marshal=%s\nwant   %s", raw, want)
	}
}

func TestTemplate_UnknownKeysSurviveRoundTrip(t *testing.T) {
	in := `{"id":"tpl-x","name":"n","category":"c","content":{},"created_at":"2025-12-01T10:00:00Z","updated_at":"2025-12-01T10:00:00Z","tags":["a"],"owner":"ops"}`
	var tpl Template
	if err := json.Unmarshal([]byte(in), &tpl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(tpl.Extra["owner"]) != `"ops"` {
		t.Fatalf("Extra=%v", tpl.Extra)
	}
	out, err := json.Marshal(tpl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"tpl-x","name":"n","category":"c","content":{},"created_at":"2025-12-01T10:00:00Z","updated_at":"2025-12-01T10:00:00Z","owner":"ops","tags":["a"]}`
	if string(out) != want {
		t.Fatalf("marshal=%s\nwant   %s", out, want)
	}
}

func TestTemplate_OddFieldValuesAreKept(t *testing.T) {
	var tpl Template
	in := `{"id":42,"name":"n","category":"c","content":null,"created_at":"2025-12-01 10:00:00.25","updated_at":false}`
	if err := json.Unmarshal([]byte(in), &tpl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tpl.ID != "" || !tpl.UpdatedAt.IsZero() {
		t.Fatalf("template=%+v", tpl)
	}
	if want := time.Date(2025, 12, 1, 10, 0, 0, 25e7, time.UTC); !tpl.CreatedAt.Equal(want) || tpl.CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at=%v, want %v in UTC", tpl.CreatedAt, want)
	}

	out, err := json.Marshal(tpl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":42,"name":"n","category":"c","content":null,"created_at":"2025-12-01T10:00:00.25Z","updated_at":false}`
	if string(out) != want {
		t.Fatalf("marshal=%s\nwant   %s", out, want)
	}
}

func TestTemplate_RejectsNonObject(t *testing.T) {
	for _, in := range []string{`1`, `"x"`, `null`, `[]`} {
		var tpl Template
		if err := json.Unmarshal([]byte(in), &tpl); err == nil {
			t.Fatalf("unmarshal(%s) expected error", in)
		}
	}
}

func TestClone_DoesNotShareExtra(t *testing.T) {
	orig := Template{ID: "a", Extra: map[string]json.RawMessage{"owner": json.RawMessage(`"ops"`)}}
	cp := orig.Clone()
	cp.Extra["owner"][1] = 'x'
	cp.Extra["new"] = json.RawMessage(`1`)
	if string(orig.Extra["owner"]) != `"ops"` || len(orig.Extra) != 1 {
		t.Fatalf("original extra mutated: %v", orig.Extra)
	}
}
