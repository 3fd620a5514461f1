// Package syncer hydrates the in-memory store from the device cache and
// refreshes it from the remote service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldline/internal/cache"
	"fieldline/internal/clock"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
	"fieldline/internal/session"
	"fieldline/internal/state"
)

// Journal event types written by the controller.
const (
	EventRefreshed       = "sync.refreshed"
	EventSessionSwitched = "session.switched"
)

type Controller struct {
	Repos   *repo.Repos
	Cache   cache.Store
	Store   *state.Store
	Session *session.Holder
	Journal events.Writer
	Logger  *slog.Logger
	Clock   clock.Clock

	// mu serialises whole-store operations (load, clear, identity switch).
	mu sync.Mutex
}

// Report summarises one refresh.
type Report struct {
	Refreshed []domain.Kind
	Failed    map[domain.Kind]error
	// LastSync is zero when the batch was incomplete and the marker was
	// not advanced.
	LastSync time.Time
}

func (r Report) OK() bool { return len(r.Failed) == 0 }

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c *Controller) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now()
	}
	return time.Now()
}

// Load hydrates every repository from the cache and then refreshes from
// the service. Hydrate failures are logged; a cold or corrupt cache only
// means the refresh starts from empty collections.
func (c *Controller) Load(ctx context.Context) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hydrate(ctx); err != nil {
		c.logger().Warn("cache hydrate incomplete", "err", err)
	}
	return c.refresh(ctx)
}

// Hydrate restores memory from the cache without network activity.
func (c *Controller) Hydrate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hydrate(ctx)
}

func (c *Controller) hydrate(ctx context.Context) error {
	var errs []error
	for _, r := range c.Repos.Each() {
		if err := r.Hydrate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("hydrate %s: %w", r.Kind(), err))
		}
	}
	if c.Cache != nil {
		if at, ok, err := cache.LastSync(ctx, c.Cache); err == nil && ok {
			c.Store.SetLastSync(at)
		}
	}
	return errors.Join(errs...)
}

// Refresh fetches every collection concurrently. A failing kind never
// cancels the others. last_sync advances only when every kind was fetched
// and saved.
func (c *Controller) Refresh(ctx context.Context) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) (Report, error) {
	rep := Report{Failed: map[domain.Kind]error{}}
	if _, ok := c.Session.Current(); !ok {
		return rep, nil
	}
	c.Store.ClearError()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, r := range c.Repos.Each() {
		g.Go(func() error {
			err := r.Pull(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed[r.Kind()] = err
			} else {
				rep.Refreshed = append(rep.Refreshed, r.Kind())
			}
			return nil
		})
	}
	_ = g.Wait()

	if !rep.OK() {
		errs := make([]error, 0, len(rep.Failed))
		for _, k := range domain.Kinds {
			if err, ok := rep.Failed[k]; ok {
				errs = append(errs, err)
			}
		}
		err := errors.Join(errs...)
		c.Store.SetError(err)
		c.logger().Warn("refresh incomplete", "failed", len(rep.Failed), "err", err)
		return rep, err
	}

	at := c.now().UTC()
	if c.Cache != nil {
		if err := cache.MarkSynced(ctx, c.Cache, at); err != nil {
			c.logger().Warn("last_sync write failed", "err", err)
			return rep, err
		}
	}
	c.Store.SetLastSync(at)
	rep.LastSync = at
	c.logger().Info("refresh complete", "kinds", len(rep.Refreshed))
	c.journal(ctx, EventRefreshed, events.EventPayload{"kinds": len(rep.Refreshed)})
	return rep, nil
}

// Clear wipes every cached collection, last_sync, the journal and memory.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clear(ctx)
}

func (c *Controller) clear(ctx context.Context) error {
	c.Store.Reset()
	var errs []error
	if c.Cache != nil {
		if err := cache.Clear(ctx, c.Cache); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Journal.Truncate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("truncate journal: %w", err))
	}
	return errors.Join(errs...)
}

// SwitchIdentity clears everything, signs in as id and loads. Cached data
// is device scoped, not partitioned per identity.
func (c *Controller) SwitchIdentity(ctx context.Context, id session.Identity) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.clear(ctx); err != nil {
		return Report{}, err
	}
	c.Session.Set(id)
	c.journal(ctx, EventSessionSwitched, events.EventPayload{"role": string(id.Role)})
	return c.refresh(ctx)
}

// SignOut drops the identity and all local data.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session.Clear()
	return c.clear(ctx)
}

// LastSync reads the persisted marker.
func (c *Controller) LastSync(ctx context.Context) (time.Time, bool, error) {
	if c.Cache == nil {
		t := c.Store.LastSync()
		return t, !t.IsZero(), nil
	}
	return cache.LastSync(ctx, c.Cache)
}

func (c *Controller) journal(ctx context.Context, evtType string, payload events.EventPayload) {
	actor := ""
	if id, ok := c.Session.Current(); ok {
		actor = id.UserID
	}
	if err := c.Journal.Append(ctx, evtType, "sync", "", actor, payload); err != nil {
		c.logger().Warn("journal append failed", "type", evtType, "err", err)
	}
}
