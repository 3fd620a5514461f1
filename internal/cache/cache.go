// Package cache is the device-local persistent key/value layer that
// mirrors remote entity collections across restarts. Keys are written
// independently; there are no transactions spanning keys.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fieldline/internal/codec"
	"fieldline/internal/domain"
)

type Key string

const (
	KeyAgents              Key = "agents"
	KeySpecialties         Key = "agent_specialties"
	KeyTaskAssignments     Key = "task_assignments"
	KeyCleaningSessions    Key = "cleaning_sessions"
	KeyMaintenanceSessions Key = "maintenance_sessions"
	KeyTickets             Key = "tickets"
	KeyLastSync            Key = "last_sync"
)

// EntityKeys lists the per-collection keys (excluding KeyLastSync).
var EntityKeys = []Key{
	KeyAgents,
	KeySpecialties,
	KeyTaskAssignments,
	KeyCleaningSessions,
	KeyMaintenanceSessions,
	KeyTickets,
}

// KeyFor maps an entity kind to its collection key.
func KeyFor(kind domain.Kind) Key {
	switch kind {
	case domain.KindAgent:
		return KeyAgents
	case domain.KindSpecialty:
		return KeySpecialties
	case domain.KindTask:
		return KeyTaskAssignments
	case domain.KindCleaning:
		return KeyCleaningSessions
	case domain.KindMaintenance:
		return KeyMaintenanceSessions
	case domain.KindTicket:
		return KeyTickets
	}
	panic(fmt.Sprintf("cache: no key for kind %q", kind))
}

type Store interface {
	Put(ctx context.Context, key Key, payload []byte) error
	// Get reports ok=false when the key has never been written or was cleared.
	Get(ctx context.Context, key Key) (payload []byte, ok bool, err error)
	Delete(ctx context.Context, keys ...Key) error
}

// SQLite stores entries in the cache_entries table.
type SQLite struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s SQLite) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s SQLite) Put(ctx context.Context, key Key, payload []byte) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO cache_entries(key,payload,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		string(key), payload, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

func (s SQLite) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM cache_entries WHERE key=?`, string(key)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return payload, true, nil
}

func (s SQLite) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		marks[i] = "?"
		args[i] = string(k)
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE key IN (`+strings.Join(marks, ",")+`)`, args...)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// SaveCollection serialises items as an ordered list under key.
func SaveCollection[T any](ctx context.Context, s Store, key Key, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := codec.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// LoadCollection returns the cached list under key, or nil when absent.
func LoadCollection[T any](ctx context.Context, s Store, key Key) ([]T, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var items []T
	if err := codec.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

// MarkSynced advances the last_sync marker.
func MarkSynced(ctx context.Context, s Store, at time.Time) error {
	data, err := codec.Marshal(at.UTC())
	if err != nil {
		return err
	}
	return s.Put(ctx, KeyLastSync, data)
}

// LastSync returns the marker written by the most recent complete batch.
func LastSync(ctx context.Context, s Store) (time.Time, bool, error) {
	data, ok, err := s.Get(ctx, KeyLastSync)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	var at time.Time
	if err := codec.Unmarshal(data, &at); err != nil {
		return time.Time{}, false, fmt.Errorf("decode last_sync: %w", err)
	}
	return at, true, nil
}

// Clear removes the given keys; with no keys it removes every entity
// collection and the last_sync marker.
func Clear(ctx context.Context, s Store, keys ...Key) error {
	if len(keys) == 0 {
		keys = append(append([]Key{}, EntityKeys...), KeyLastSync)
	}
	return s.Delete(ctx, keys...)
}
