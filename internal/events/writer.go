package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends local lifecycle and sync events to the events table. The
// journal is device-local; it is never sent to the remote service.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Event is one journal row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Payload    string `json:"payload_json"`
}

// Transition describes one observed status change.
type Transition struct {
	EntityKind string
	EntityID   string
	ActorID    string
	From       string
	To         string
	Payload    EventPayload
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	return w.insert(ctx, evtType, Transition{EntityKind: entityKind, EntityID: entityID, ActorID: actorID, Payload: payload})
}

// AppendTransition records a status change as "<kind>.<to>".
func (w Writer) AppendTransition(ctx context.Context, t Transition) error {
	return w.insert(ctx, t.EntityKind+"."+t.To, t)
}

func (w Writer) insert(ctx context.Context, evtType string, t Transition) error {
	if w.DB == nil {
		return nil
	}
	payload := t.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ts := w.now().UTC().Format(time.RFC3339Nano)
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,from_status,to_status,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		ts, evtType, t.EntityKind, nullable(t.EntityID), t.ActorID, nullable(t.From), nullable(t.To), string(data))
	return err
}

// History returns the events for one entity, oldest first.
func (w Writer) History(ctx context.Context, entityKind, entityID string) ([]Event, error) {
	return w.query(ctx, `WHERE entity_kind=? AND entity_id=? ORDER BY id ASC`, entityKind, entityID)
}

// Latest returns up to n most recent events, newest first. Empty filters
// match everything.
func (w Writer) Latest(ctx context.Context, n int, evtType, entityKind, entityID string) ([]Event, error) {
	where := `WHERE (?='' OR type=?) AND (?='' OR entity_kind=?) AND (?='' OR entity_id=?) ORDER BY id DESC`
	args := []any{evtType, evtType, entityKind, entityKind, entityID, entityID}
	if n > 0 {
		where += ` LIMIT ?`
		args = append(args, n)
	}
	return w.query(ctx, where, args...)
}

// Truncate drops the whole journal.
func (w Writer) Truncate(ctx context.Context) error {
	if w.DB == nil {
		return nil
	}
	_, err := w.DB.ExecContext(ctx, `DELETE FROM events`)
	return err
}

func (w Writer) query(ctx context.Context, clause string, args ...any) ([]Event, error) {
	if w.DB == nil {
		return nil, nil
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,COALESCE(from_status,''),COALESCE(to_status,''),payload_json FROM events `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.FromStatus, &e.ToStatus, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
