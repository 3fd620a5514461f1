package workflow_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"fieldline/internal/clock"
	"fieldline/internal/devserver"
	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/repo"
	"fieldline/internal/session"
	"fieldline/internal/state"
	"fieldline/internal/workflow"
)

func TestGuidedFlowDrivesTaskThroughService(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(t0)
	srv := devserver.New(devserver.Config{Secret: "wf-secret", Clock: fake})
	srv.Seed(devserver.Seed{
		Tasks: []domain.TaskAssignment{{ID: "task-1", AgentID: "agent-1", Title: "Turnover", Status: domain.StatusAssigned}},
	})
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	holder := &session.Holder{}
	id := session.Identity{UserID: "user-1", AgentID: "agent-1", Role: session.RoleAgent}
	tok, err := devserver.IssueToken("wf-secret", id, time.Hour, t0)
	if err != nil {
		t.Fatal(err)
	}
	id.Token = tok
	holder.Set(id)

	store := state.NewStore()
	repos := repo.New(repo.Deps{Gateway: gateway.New(hs.URL, holder), Store: store, Session: holder, Clock: fake})
	if err := repos.Tasks.Pull(ctx); err != nil {
		t.Fatalf("pull: %v", err)
	}
	target := workflow.Repos{Tasks: repos.Tasks, Cleaning: repos.Cleaning, Store: store}

	runner := workflow.NewRunner(workflow.Options{Clock: fake})
	w, err := runner.Open(taskRef, target)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Next()
	if err := w.StartCleaning(ctx); !errors.Is(err, workflow.ErrNoPhotos) {
		t.Fatalf("expected ErrNoPhotos, got %v", err)
	}
	if task, _ := repos.Tasks.GetByID("task-1"); task.Status != domain.StatusAssigned || task.StartedAt != nil {
		t.Fatalf("guard must not touch the task: %+v", task)
	}

	_ = w.AddBeforePhoto(photo("b1"))
	if err := w.StartCleaning(ctx); err != nil {
		t.Fatalf("start cleaning: %v", err)
	}
	task, _ := repos.Tasks.GetByID("task-1")
	if task.Status != domain.StatusInProgress || task.StartedAt == nil {
		t.Fatalf("task not started: %+v", task)
	}

	fake.Advance(20 * time.Minute)
	if err := w.FinishCleaning(); err != nil {
		t.Fatal(err)
	}
	_ = w.AddAfterPhoto(photo("a1"))
	if err := w.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	task, _ = repos.Tasks.GetByID("task-1")
	if task.Status != domain.StatusCompleted || task.CompletedAt == nil {
		t.Fatalf("task not completed: %+v", task)
	}
}

func TestReposTargetReportsStoreError(t *testing.T) {
	store := state.NewStore()
	holder := &session.Holder{}
	holder.Set(session.Identity{UserID: "user-1", AgentID: "agent-1", Role: session.RoleAgent, Token: "x"})
	repos := repo.New(repo.Deps{Gateway: gateway.New("http://127.0.0.1:1", holder), Store: store, Session: holder})
	target := workflow.Repos{Tasks: repos.Tasks, Cleaning: repos.Cleaning, Store: store}

	// Unknown ids fail locally with the repository's not-found error.
	err := target.Start(context.Background(), domain.WorkRef{Kind: domain.KindCleaning, ID: "nope"})
	if !errors.Is(err, repo.ErrNotFound) || store.Err() == nil {
		t.Fatalf("expected not-found store error, got %v", err)
	}

	holder.Clear()
	store.ClearError()
	if err := target.Complete(context.Background(), taskRef); !errors.Is(err, workflow.ErrNotApplied) {
		t.Fatalf("expected ErrNotApplied without identity, got %v", err)
	}
}
