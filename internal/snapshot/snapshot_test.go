package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/univer-labs/plugins-api/internal/platform/objectstore"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects[key] = append([]byte(nil), data...)
	m.puts = append(m.puts, key)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return data, nil
}

func (m *memStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKeys(t *testing.T) {
	if got := LatestKey("snapshots"); got != "snapshots/latest.json" {
		t.Fatalf("LatestKey()=%q", got)
	}
	at := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	if got, want := VersionKey("snapshots", at), "snapshots/templates-20260304T050607.000000008Z.json"; got != want {
		t.Fatalf("VersionKey()=%q, want %q", got, want)
	}
}

func TestReplicator_LatestWins(t *testing.T) {
	store := newMemStore()
	r := NewReplicator(store, "snapshots", nil)

	r.Offer(context.Background(), []byte(`[]`))
	r.Offer(context.Background(), []byte(`[{"id":"a"}]`))
	r.Offer(context.Background(), []byte(`[{"id":"b"}]`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() err=%v", err)
	}

	// One versioned object plus latest: only the newest snapshot is uploaded.
	if got := store.putCount(); got != 2 {
		t.Fatalf("puts=%d, want 2", got)
	}
	if diff := cmp.Diff(`[{"id":"b"}]`, string(store.objects[LatestKey("snapshots")])); diff != "" {
		t.Fatalf("latest mismatch (-want +got):\n%s", diff)
	}
}

func TestReplicator_UploadsWhileRunning(t *testing.T) {
	store := newMemStore()
	r := NewReplicator(store, "p", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Offer(ctx, []byte(`[]`))
	waitFor(t, func() bool { return store.putCount() == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() err=%v", err)
	}
}

func TestReplicator_FailuresAreNotFatal(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("bucket unavailable")
	r := NewReplicator(store, "p", nil)

	r.Offer(context.Background(), []byte(`[]`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if got := store.putCount(); got != 0 {
		t.Fatalf("puts=%d, want 0", got)
	}
}

func TestPull(t *testing.T) {
	store := newMemStore()
	body := `[{"id":"x","name":"N","category":"C","content":{"a":1},"created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}]`
	store.objects[LatestKey("p")] = []byte(body)

	dest := filepath.Join(t.TempDir(), "restore", "templates_store.json")
	n, err := Pull(context.Background(), store, "p", "", dest)
	if err != nil {
		t.Fatalf("Pull() err=%v", err)
	}
	if n != 1 {
		t.Fatalf("Pull()=%d templates, want 1", n)
	}

	written, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if diff := cmp.Diff(body, string(written)); diff != "" {
		t.Fatalf("restored file mismatch (-want +got):\n%s", diff)
	}
}

func TestPull_RejectsCorruptSnapshot(t *testing.T) {
	store := newMemStore()
	store.objects["p/bad.json"] = []byte(`{"oops":`)
	dest := filepath.Join(t.TempDir(), "templates_store.json")

	if _, err := Pull(context.Background(), store, "p", "p/bad.json", dest); err == nil {
		t.Fatalf("expected error for corrupt snapshot")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination must not be created, stat err=%v", err)
	}
}

func TestPull_RejectsNonObjectElements(t *testing.T) {
	store := newMemStore()
	store.objects[LatestKey("p")] = []byte(`[{"id":"x","name":"N","category":"C","content":{}}, 7]`)
	dest := filepath.Join(t.TempDir(), "templates_store.json")

	if _, err := Pull(context.Background(), store, "p", "", dest); err == nil {
		t.Fatalf("expected error for snapshot with a non-object element")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination must not be created, stat err=%v", err)
	}
}

func TestPull_MissingSnapshot(t *testing.T) {
	_, err := Pull(context.Background(), newMemStore(), "p", "", filepath.Join(t.TempDir(), "x.json"))
	if !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Fatalf("err=%v, want ErrObjectNotFound", err)
	}
	if !strings.Contains(err.Error(), "download snapshot") {
		t.Fatalf("err=%q, want download context", err)
	}
}
