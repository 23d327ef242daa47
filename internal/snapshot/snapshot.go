// Package snapshot copies every saved version of the template store file to
// object storage and restores the latest copy on demand.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/univer-labs/plugins-api/internal/repo/jsonfile"
)

const contentType = "application/json"

// Store is the object storage the snapshots live in.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// LatestKey is the object that always holds the most recent snapshot.
func LatestKey(prefix string) string {
	return path.Join(prefix, "latest.json")
}

// VersionKey names the immutable copy taken at t.
func VersionKey(prefix string, t time.Time) string {
	return path.Join(prefix, "templates-"+t.UTC().Format("20060102T150405.000000000Z")+".json")
}

// Replicator uploads store snapshots in the background. Only the newest
// pending snapshot is kept; an older one still waiting is dropped.
type Replicator struct {
	store   Store
	prefix  string
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
	pending chan []byte
}

func NewReplicator(store Store, prefix string, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Replicator{
		store:   store,
		prefix:  prefix,
		logger:  logger,
		now:     time.Now,
		timeout: 30 * time.Second,
		pending: make(chan []byte, 1),
	}
}

// Offer queues data for upload without blocking. Its signature matches
// jsonfile.AfterSaveFunc.
func (r *Replicator) Offer(_ context.Context, data []byte) {
	for {
		select {
		case r.pending <- data:
			return
		default:
		}
		select {
		case <-r.pending:
		default:
		}
	}
}

// Run uploads offered snapshots until ctx is cancelled, then flushes the one
// still pending, if any.
func (r *Replicator) Run(ctx context.Context) error {
	for {
		select {
		case data := <-r.pending:
			r.upload(ctx, data)
		case <-ctx.Done():
			select {
			case data := <-r.pending:
				r.upload(ctx, data)
			default:
			}
			return nil
		}
	}
}

// upload outlives cancellation of ctx, bounded by the replicator timeout, so
// that a snapshot taken just before shutdown still lands.
func (r *Replicator) upload(ctx context.Context, data []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	versionKey := VersionKey(r.prefix, r.now())
	if err := r.store.Put(ctx, versionKey, data, contentType); err != nil {
		r.logger.WarnContext(ctx, "snapshot upload failed", "key", versionKey, "error", err)
		return
	}
	latestKey := LatestKey(r.prefix)
	if err := r.store.Put(ctx, latestKey, data, contentType); err != nil {
		r.logger.WarnContext(ctx, "snapshot upload failed", "key", latestKey, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "snapshot uploaded", "key", versionKey, "bytes", len(data))
}

// Pull downloads the snapshot under key (the latest one when key is empty),
// checks that it decodes as a template collection and atomically writes it
// to dest. It returns the number of templates restored.
func Pull(ctx context.Context, store Store, prefix, key, dest string) (int, error) {
	if key == "" {
		key = LatestKey(prefix)
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("download snapshot: %w", err)
	}
	items, err := jsonfile.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", key, err)
	}
	if err := jsonfile.WriteAtomic(dest, data); err != nil {
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	return len(items), nil
}
