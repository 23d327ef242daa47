// Package auditlog appends tamper-evident records of template changes and
// denied requests to PostgreSQL, and reads a template's history back.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

//go:embed schema.sql
var schemaSQL string

const insertEventSQL = `INSERT INTO audit_events (
	occurred_at, actor, action, resource_type, resource_id,
	request_id, ip, user_agent, payload, integrity_sha256
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING event_id`

const historySQL = `SELECT
	event_id, occurred_at, actor, action, resource_type, resource_id,
	COALESCE(request_id, ''), COALESCE(ip, ''), COALESCE(user_agent, ''),
	payload, integrity_sha256
FROM audit_events
WHERE resource_type = $1 AND resource_id = $2
ORDER BY occurred_at DESC, event_id DESC
LIMIT $3`

// Event is one audit row. ID and Integrity are filled in on rows read back
// from the database.
type Event struct {
	ID           int64
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	IP           net.IP
	UserAgent    string
	Payload      any
	Integrity    string
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Validate reports every required field that is blank.
func (e Event) Validate() error {
	var errs []error
	if e.OccurredAt.IsZero() {
		errs = append(errs, errors.New("OccurredAt is required"))
	}
	for _, f := range []struct{ name, value string }{
		{"Actor", e.Actor},
		{"Action", e.Action},
		{"ResourceType", e.ResourceType},
		{"ResourceID", e.ResourceID},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		}
	}
	return errors.Join(errs...)
}

// EnsureSchema creates the audit table when it does not exist yet.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Insert stores one event and returns its id.
func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}
	// Postgres keeps microseconds; store exactly what was hashed.
	event.OccurredAt = event.OccurredAt.UTC().Truncate(time.Microsecond)

	payloadJSON, err := canonicalPayload(event.Payload)
	if err != nil {
		return 0, err
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(ctx, insertEventSQL,
		event.OccurredAt,
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.ResourceType),
		strings.TrimSpace(event.ResourceID),
		nullString(event.RequestID),
		nullString(ipString(event.IP)),
		nullString(event.UserAgent),
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

// History returns up to limit events for one resource, newest first. The
// Payload of each event is its stored json.RawMessage.
func History(ctx context.Context, q Querier, resourceType, resourceID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.QueryContext(ctx, historySQL, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit history: %w", err)
	}
	return out, nil
}

func scanEvent(scan func(dest ...any) error) (Event, error) {
	var (
		e       Event
		ip      string
		payload []byte
	)
	err := scan(&e.ID, &e.OccurredAt, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.RequestID, &ip, &e.UserAgent, &payload, &e.Integrity)
	if err != nil {
		return Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	e.IP = net.ParseIP(ip)
	e.Payload = json.RawMessage(payload)
	return e, nil
}

// Verify recomputes the integrity hash of an event read back from the
// database and reports whether it still matches the stored one.
func Verify(e Event) (bool, error) {
	payloadJSON, err := canonicalPayload(e.Payload)
	if err != nil {
		return false, err
	}
	sum, err := ComputeIntegritySHA256(e, payloadJSON)
	if err != nil {
		return false, err
	}
	return sum == e.Integrity, nil
}

// ComputeIntegritySHA256 hashes the canonical JSON form of an event so that
// later edits to a stored row can be detected.
func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt   time.Time       `json:"occurred_at"`
		Actor        string          `json:"actor"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		ResourceID   string          `json:"resource_id"`
		RequestID    string          `json:"request_id,omitempty"`
		IP           string          `json:"ip,omitempty"`
		UserAgent    string          `json:"user_agent,omitempty"`
		Payload      json.RawMessage `json:"payload"`
	}

	blob, err := json.Marshal(integrityInput{
		OccurredAt:   event.OccurredAt.UTC().Truncate(time.Microsecond),
		Actor:        strings.TrimSpace(event.Actor),
		Action:       strings.TrimSpace(event.Action),
		ResourceType: strings.TrimSpace(event.ResourceType),
		ResourceID:   strings.TrimSpace(event.ResourceID),
		RequestID:    strings.TrimSpace(event.RequestID),
		IP:           ipString(event.IP),
		UserAgent:    strings.TrimSpace(event.UserAgent),
		Payload:      payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalPayload renders a payload with sorted keys and no insignificant
// whitespace, which is stable across a round trip through jsonb.
func canonicalPayload(payload any) ([]byte, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
