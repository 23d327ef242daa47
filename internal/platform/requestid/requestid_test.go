package requestid

import (
	"context"
	"encoding/hex"
	"net/http/httptest"
	"testing"
)

func TestNew(t *testing.T) {
	id := New()
	if len(id) != 32 {
		t.Fatalf("New() len=%d, want 32", len(id))
	}
	if _, err := hex.DecodeString(id); err != nil {
		t.Fatalf("New()=%q not hex: %v", id, err)
	}
	if other := New(); other == id {
		t.Fatalf("New() returned the same id twice: %q", id)
	}
}

func TestFromRequest_PrefersContext(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.test/", nil)
	req.Header.Set(Header, "header-id")
	if got := FromRequest(req); got != "header-id" {
		t.Fatalf("FromRequest()=%q, want header-id", got)
	}

	req = req.WithContext(WithContext(context.Background(), "ctx-id"))
	if got := FromRequest(req); got != "ctx-id" {
		t.Fatalf("FromRequest()=%q, want ctx-id", got)
	}
}
