package app_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"fieldline/internal/app"
	"fieldline/internal/clock"
	"fieldline/internal/devserver"
	"fieldline/internal/domain"
	"fieldline/internal/session"
)

const secret = "app-secret"

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func token(t *testing.T, id session.Identity) string {
	t.Helper()
	tok, err := devserver.IssueToken(secret, id, time.Hour, t0)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestAuthenticateReusesCacheForSameUser(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(t0)
	srv := devserver.New(devserver.Config{Secret: secret, Clock: fake})
	srv.Seed(devserver.Seed{
		Agents: []domain.Agent{
			{ID: "agent-1", UserID: "user-1", AgentType: domain.AgentCleaning},
			{ID: "agent-2", UserID: "user-2", AgentType: domain.AgentCleaning},
		},
		Tasks: []domain.TaskAssignment{
			{ID: "task-1", AgentID: "agent-1", Title: "Turnover", Status: domain.StatusAssigned},
			{ID: "task-2", AgentID: "agent-2", Title: "Linen", Status: domain.StatusAssigned},
		},
	})
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	workspace := t.TempDir()

	open := func() *app.Runtime {
		rt, err := app.Open(app.Options{Workspace: workspace, BaseURL: hs.URL, Clock: fake})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { rt.Close() })
		return rt
	}

	first := open()
	if _, err := first.Identity(); !errors.Is(err, session.ErrNoIdentity) {
		t.Fatalf("fresh runtime should be signed out")
	}
	agent1 := token(t, session.Identity{UserID: "user-1", AgentID: "agent-1", Role: session.RoleAgent})
	switched, err := first.Authenticate(ctx, agent1)
	if err != nil || !switched {
		t.Fatalf("first sign-in: switched=%v err=%v", switched, err)
	}
	if first.Store.Tasks.Len() != 1 {
		t.Fatalf("expected agent-1 tasks loaded")
	}
	first.Close()

	second := open()
	hs.Close()
	switched, err = second.Authenticate(ctx, agent1)
	if err != nil || switched {
		t.Fatalf("same user should hydrate: switched=%v err=%v", switched, err)
	}
	if task, ok := second.Store.Tasks.Get("task-1"); !ok || task.Title != "Turnover" {
		t.Fatalf("cache not hydrated offline")
	}
}

func TestAuthenticateSwitchClearsPreviousData(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(t0)
	srv := devserver.New(devserver.Config{Secret: secret, Clock: fake})
	srv.Seed(devserver.Seed{
		Tasks: []domain.TaskAssignment{
			{ID: "task-1", AgentID: "agent-1", Title: "Turnover", Status: domain.StatusAssigned},
			{ID: "task-2", AgentID: "agent-2", Title: "Linen", Status: domain.StatusAssigned},
		},
	})
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	rt, err := app.Open(app.Options{Workspace: t.TempDir(), BaseURL: hs.URL, Clock: fake})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if _, err := rt.Authenticate(ctx, token(t, session.Identity{UserID: "user-1", AgentID: "agent-1"})); err != nil {
		t.Fatal(err)
	}
	switched, err := rt.Authenticate(ctx, token(t, session.Identity{UserID: "user-2", AgentID: "agent-2"}))
	if err != nil || !switched {
		t.Fatalf("switch: %v %v", switched, err)
	}
	if _, ok := rt.Store.Tasks.Get("task-1"); ok {
		t.Fatalf("previous identity's task survived the switch")
	}
	if _, ok := rt.Store.Tasks.Get("task-2"); !ok {
		t.Fatalf("new identity's task missing")
	}

	if _, err := rt.Authenticate(ctx, "not-a-token"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCheckReportsStoreError(t *testing.T) {
	rt, err := app.Open(app.Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	if err := rt.Check(true); err != nil {
		t.Fatalf("ok result: %v", err)
	}
	if err := rt.Check(false); !errors.Is(err, app.ErrNotApplied) {
		t.Fatalf("expected ErrNotApplied, got %v", err)
	}
	rt.Store.SetError(errors.New("boom"))
	if err := rt.Check(false); err == nil || err.Error() != "boom" {
		t.Fatalf("expected store error, got %v", err)
	}
}
