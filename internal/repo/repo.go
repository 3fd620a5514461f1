// Package repo exposes one repository per entity type. Every mutation goes
// to the remote service first; only a successful response touches the
// in-memory store and the cache, so a failed call leaves both exactly as
// they were.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"fieldline/internal/cache"
	"fieldline/internal/clock"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/gateway"
	"fieldline/internal/lifecycle"
	"fieldline/internal/session"
	"fieldline/internal/state"
)

var ErrNotFound = errors.New("not found")

// UnexpectedStatusError is returned when the service accepted a transition
// but answered with a different status than requested.
type UnexpectedStatusError struct {
	Kind domain.Kind
	ID   string
	Want domain.Status
	Got  domain.Status
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s %s: service returned status %s, expected %s", e.Kind, e.ID, e.Got, e.Want)
}

type Deps struct {
	Gateway *gateway.Client
	Cache   cache.Store
	Store   *state.Store
	Session *session.Holder
	Journal events.Writer
	Logger  *slog.Logger
	Clock   clock.Clock
	// DefaultProgress is reported for running sessions without a known
	// start or estimate; zero means lifecycle.DefaultProgress.
	DefaultProgress int
}

type Repos struct {
	Agents      *Agents
	Specialties *Specialties
	Tasks       *Tasks
	Cleaning    *CleaningSessions
	Maintenance *MaintenanceSessions
	Tickets     *Tickets
}

func New(d Deps) *Repos {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Session == nil {
		d.Session = &session.Holder{}
	}
	if d.Store == nil {
		d.Store = state.NewStore()
	}
	if d.DefaultProgress == 0 {
		d.DefaultProgress = lifecycle.DefaultProgress
	}
	deps := &d
	return &Repos{
		Agents:      &Agents{core: newCore(deps, domain.KindAgent, &d.Store.Agents, nil)},
		Specialties: &Specialties{core: newCore(deps, domain.KindSpecialty, &d.Store.Specialties, nil)},
		Tasks: &Tasks{core: newCore(deps, domain.KindTask, &d.Store.Tasks,
			func(t domain.TaskAssignment) domain.Status { return t.Status })},
		Cleaning: &CleaningSessions{core: newCore(deps, domain.KindCleaning, &d.Store.Cleaning,
			func(s domain.CleaningSession) domain.Status { return s.Status })},
		Maintenance: &MaintenanceSessions{core: newCore(deps, domain.KindMaintenance, &d.Store.Maintenance,
			func(s domain.MaintenanceSession) domain.Status { return s.Status })},
		Tickets: &Tickets{core: newCore(deps, domain.KindTicket, &d.Store.Tickets,
			func(t domain.Ticket) domain.Status { return t.Status })},
	}
}

// Each returns the repositories as a list for batch hydrate and pull.
func (r *Repos) Each() []Syncable {
	return []Syncable{r.Agents, r.Specialties, r.Tasks, r.Cleaning, r.Maintenance, r.Tickets}
}

// Syncable is what the sync controller drives.
type Syncable interface {
	Kind() domain.Kind
	Hydrate(ctx context.Context) error
	// Pull fetches the remote collection and replaces the local one
	// without touching the shared error.
	Pull(ctx context.Context) error
}

// core holds the plumbing shared by every repository.
type core[T domain.Entity] struct {
	d      *Deps
	kind   domain.Kind
	key    cache.Key
	coll   *state.Collection[T]
	status func(T) domain.Status

	// mu orders memory update and cache write per repository.
	mu sync.Mutex
}

func newCore[T domain.Entity](d *Deps, kind domain.Kind, coll *state.Collection[T], status func(T) domain.Status) core[T] {
	return core[T]{d: d, kind: kind, key: cache.KeyFor(kind), coll: coll, status: status}
}

func (c *core[T]) Kind() domain.Kind { return c.kind }

func (c *core[T]) List() []T { return c.coll.All() }

func (c *core[T]) GetByID(id string) (T, bool) { return c.coll.Get(id) }

func (c *core[T]) where(keep func(T) bool) []T {
	var out []T
	for _, it := range c.coll.All() {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// attempt starts an operation. Without an identity the operation is a
// silent no-op.
func (c *core[T]) attempt() (session.Identity, bool) {
	id, ok := c.d.Session.Current()
	if !ok {
		return session.Identity{}, false
	}
	c.d.Store.ClearError()
	return id, true
}

func (c *core[T]) fail(op, id string, err error) {
	c.d.Logger.Warn("repository operation failed", "op", op, "kind", string(c.kind), "id", id, "err", err)
	c.d.Store.SetError(err)
}

// send performs one remote mutation and upserts the returned entity.
func (c *core[T]) send(ctx context.Context, op, id string, call func(context.Context) (T, error)) (T, bool) {
	var zero T
	done := c.d.Store.Begin(c.kind)
	defer done()
	gen := c.d.Store.Generation()
	got, err := call(ctx)
	if err != nil {
		c.fail(op, id, err)
		return zero, false
	}
	if !c.commit(ctx, gen, func(items []T) []T { return upsert(items, got) }) {
		return zero, false
	}
	return got, true
}

// remove performs a remote delete and drops the entity locally.
func (c *core[T]) remove(ctx context.Context, op, id string, call func(context.Context) error) bool {
	done := c.d.Store.Begin(c.kind)
	defer done()
	gen := c.d.Store.Generation()
	if err := call(ctx); err != nil {
		c.fail(op, id, err)
		return false
	}
	return c.commit(ctx, gen, func(items []T) []T {
		out := items[:0:0]
		for _, it := range items {
			if it.EntityID() != id {
				out = append(out, it)
			}
		}
		return out
	})
}

// transition runs a guarded status change. guard produces the locally
// expected entity or refuses the move before any network call; the
// service response must land on status to.
func (c *core[T]) transition(ctx context.Context, op, id string, to domain.Status, guard func(T) (T, error), call func(context.Context, T) (T, error)) (T, bool) {
	var zero T
	ident, ok := c.attempt()
	if !ok {
		return zero, false
	}
	cur, found := c.coll.Get(id)
	if !found {
		c.fail(op, id, fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound))
		return zero, false
	}
	next, err := guard(cur)
	if err != nil {
		c.fail(op, id, err)
		return zero, false
	}
	got, ok := c.send(ctx, op, id, func(ctx context.Context) (T, error) {
		res, err := call(ctx, next)
		if err != nil {
			return res, err
		}
		if s := c.status(res); s != to {
			return res, &UnexpectedStatusError{Kind: c.kind, ID: id, Want: to, Got: s}
		}
		return res, nil
	})
	if ok {
		c.record(ctx, ident, id, c.status(cur), to, nil)
	}
	return got, ok
}

// commit applies fn to the collection and mirrors the result to the cache.
// Responses that arrive after an identity switch are dropped.
func (c *core[T]) commit(ctx context.Context, gen uint64, fn func([]T) []T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d.Store.Generation() != gen {
		c.d.Logger.Debug("discarding late response", "kind", string(c.kind))
		return false
	}
	items := c.coll.Apply(fn)
	if c.d.Cache == nil {
		return true
	}
	if err := cache.SaveCollection(ctx, c.d.Cache, c.key, items); err != nil {
		c.d.Logger.Warn("cache write failed", "key", string(c.key), "err", err)
	}
	return true
}

func (c *core[T]) record(ctx context.Context, ident session.Identity, id string, from, to domain.Status, payload events.EventPayload) {
	actor := ident.AgentID
	if actor == "" {
		actor = ident.UserID
	}
	err := c.d.Journal.AppendTransition(ctx, events.Transition{
		EntityKind: string(c.kind),
		EntityID:   id,
		ActorID:    actor,
		From:       string(from),
		To:         string(to),
		Payload:    payload,
	})
	if err != nil {
		c.d.Logger.Warn("journal append failed", "kind", string(c.kind), "id", id, "err", err)
	}
}

// Hydrate replaces the in-memory collection with the cached one.
func (c *core[T]) Hydrate(ctx context.Context) error {
	if c.d.Cache == nil {
		return nil
	}
	items, err := cache.LoadCollection[T](ctx, c.d.Cache, c.key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.coll.Replace(items)
	c.mu.Unlock()
	return nil
}

// pull replaces the collection with fetch's result. Unlike mutations, a
// cache write failure is returned so the caller can hold back last_sync.
func (c *core[T]) pull(ctx context.Context, fetch func(context.Context, session.Identity) ([]T, error)) error {
	ident, ok := c.d.Session.Current()
	if !ok {
		return nil
	}
	done := c.d.Store.Begin(c.kind)
	defer done()
	gen := c.d.Store.Generation()
	items, err := fetch(ctx, ident)
	if err != nil {
		c.fail("refresh", "", err)
		return fmt.Errorf("refresh %s: %w", c.kind, err)
	}
	if items == nil {
		items = []T{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d.Store.Generation() != gen {
		return nil
	}
	c.coll.Replace(items)
	if c.d.Cache == nil {
		return nil
	}
	if err := cache.SaveCollection(ctx, c.d.Cache, c.key, items); err != nil {
		c.d.Logger.Warn("cache write failed", "key", string(c.key), "err", err)
		return err
	}
	return nil
}

// refresh is the single-repository form of pull.
func (c *core[T]) refresh(ctx context.Context, fetch func(context.Context, session.Identity) ([]T, error)) bool {
	if _, ok := c.attempt(); !ok {
		return false
	}
	return c.pull(ctx, fetch) == nil
}

func upsert[T domain.Entity](items []T, item T) []T {
	for i, it := range items {
		if it.EntityID() == item.EntityID() {
			out := append([]T(nil), items...)
			out[i] = item
			return out
		}
	}
	return append(append([]T(nil), items...), item)
}

func ptr[T any](v T) *T { return &v }
