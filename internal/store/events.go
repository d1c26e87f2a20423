package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/terminal-coder/tc/internal/domain"
)

// AppendEvent writes one entry to the authoritative, append-only event log.
// This is distinct from the in-memory event bus (internal/eventbus): the
// log never drops an event, while the bus is a best-effort fan-out over it
// (spec §4.6).
func (r *Repository) AppendEvent(kind domain.EventKind, subject string, payload map[string]any, createdAt time.Time) (domain.Event, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, domain.NewError(domain.ErrInvariant, subject, err)
	}

	ev := domain.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Subject:   subject,
		Payload:   payload,
	}

	err = r.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO events (created_at, kind, subject, payload) VALUES (?, ?, ?, ?)`,
			createdAt, string(kind), subject, string(raw))
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, subject, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, subject, err)
		}
		ev.ID = id
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// EventFilter narrows a read_events query. A zero value matches everything.
type EventFilter struct {
	Subject string
	Since   time.Time
	Limit   int
}

// ReadEvents returns events matching the filter, ascending by id.
func (r *Repository) ReadEvents(f EventFilter) ([]domain.Event, error) {
	query := `SELECT id, created_at, kind, subject, payload FROM events WHERE 1=1`
	var args []any
	if f.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, f.Subject)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	query += ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, f.Subject, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var kind, payloadRaw string
		if err := rows.Scan(&ev.ID, &ev.CreatedAt, &kind, &ev.Subject, &payloadRaw); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, f.Subject, err)
		}
		ev.Kind = domain.EventKind(kind)
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
			return nil, domain.NewError(domain.ErrInvariant, f.Subject, err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}
