// Package app wires the workspace database, cache, repositories, sync
// controller and cleaning-flow runner into one runtime.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fieldline/internal/cache"
	"fieldline/internal/clock"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/events"
	"fieldline/internal/gateway"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
	"fieldline/internal/session"
	"fieldline/internal/state"
	"fieldline/internal/syncer"
	"fieldline/internal/workflow"
)

type Options struct {
	Workspace string
	// BaseURL overrides service.base_url from the config file.
	BaseURL string
	Config  *config.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	// OnSample receives elapsed values while a cleaning flow is timing.
	OnSample func(time.Duration)
}

type Runtime struct {
	Config  *config.Config
	DB      *sql.DB
	Cache   cache.SQLite
	Journal events.Writer
	Session *session.Holder
	Store   *state.Store
	Gateway *gateway.Client
	Repos   *repo.Repos
	Sync    *syncer.Controller
	Flows   *workflow.Runner
	Logger  *slog.Logger
	Clock   clock.Clock
}

// Open prepares the workspace and builds a signed-out runtime. The config
// file is optional; defaults apply when it is missing.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
			return nil, err
		}
	}
	if opts.BaseURL != "" {
		cfg.Service.BaseURL = opts.BaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	rt := &Runtime{
		Config:  cfg,
		DB:      conn,
		Cache:   cache.SQLite{DB: conn, Now: clk.Now},
		Journal: events.Writer{DB: conn, Now: clk.Now},
		Session: &session.Holder{},
		Store:   state.NewStore(),
		Logger:  logger,
		Clock:   clk,
	}
	rt.Gateway = gateway.New(cfg.Service.BaseURL, rt.Session)
	rt.Gateway.Timeout = cfg.Service.Timeout
	rt.Repos = repo.New(repo.Deps{
		Gateway:         rt.Gateway,
		Cache:           rt.Cache,
		Store:           rt.Store,
		Session:         rt.Session,
		Journal:         rt.Journal,
		Logger:          logger.With("component", "repo"),
		Clock:           clk,
		DefaultProgress: cfg.Progress.DefaultPercent,
	})
	rt.Sync = &syncer.Controller{
		Repos:   rt.Repos,
		Cache:   rt.Cache,
		Store:   rt.Store,
		Session: rt.Session,
		Journal: rt.Journal,
		Logger:  logger.With("component", "sync"),
		Clock:   clk,
	}
	rt.Flows = workflow.NewRunner(workflow.Options{
		Clock:          clk,
		SampleInterval: cfg.Workflow.SampleInterval,
		MinBefore:      cfg.Workflow.MinBeforePhotos,
		MinAfter:       cfg.Workflow.MinAfterPhotos,
		OnSample:       opts.OnSample,
		Logger:         logger.With("component", "workflow"),
	})
	return rt, nil
}

func (rt *Runtime) Close() error {
	if rt.DB == nil {
		return nil
	}
	return rt.DB.Close()
}

// Target drives cleaning flows through the task and cleaning repositories.
func (rt *Runtime) Target() workflow.Target {
	return workflow.Repos{Tasks: rt.Repos.Tasks, Cleaning: rt.Repos.Cleaning, Store: rt.Store}
}

// Authenticate signs in with token. When the token belongs to the user
// recorded by the last identity switch, the cache is hydrated as is;
// otherwise local data is cleared and reloaded for the new identity.
func (rt *Runtime) Authenticate(ctx context.Context, token string) (switched bool, err error) {
	id, err := session.Parse(token, rt.Clock.Now())
	if err != nil {
		return false, err
	}
	last, err := rt.Journal.Latest(ctx, 1, syncer.EventSessionSwitched, "", "")
	if err != nil {
		return false, err
	}
	if len(last) == 1 && last[0].ActorID == id.UserID {
		rt.Session.Set(id)
		if err := rt.Sync.Hydrate(ctx); err != nil {
			rt.Logger.Warn("cache hydrate incomplete", "err", err)
		}
		return false, nil
	}
	rep, err := rt.Sync.SwitchIdentity(ctx, id)
	if err != nil && rep.OK() {
		return true, err
	}
	// A partial refresh still leaves a signed-in runtime; the shared store
	// error carries the failure.
	return true, nil
}

// Identity returns the signed-in identity or session.ErrNoIdentity.
func (rt *Runtime) Identity() (session.Identity, error) {
	id, ok := rt.Session.Current()
	if !ok {
		return session.Identity{}, session.ErrNoIdentity
	}
	return id, nil
}

var ErrNotApplied = errors.New("operation not applied")

// Check turns a repository result into an error for command-line callers.
func (rt *Runtime) Check(ok bool) error {
	if ok {
		return nil
	}
	if err := rt.Store.Err(); err != nil {
		return err
	}
	return ErrNotApplied
}
