package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/lifecycle"
)

var t0 = time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)

func TestEnsureTransitionTable(t *testing.T) {
	cases := []struct {
		kind     domain.Kind
		from, to domain.Status
		ok       bool
	}{
		{domain.KindTask, domain.StatusAssigned, domain.StatusInProgress, true},
		{domain.KindTask, domain.StatusAssigned, domain.StatusCompleted, false},
		{domain.KindTask, domain.StatusInProgress, domain.StatusPaused, true},
		{domain.KindTask, domain.StatusPaused, domain.StatusInProgress, true},
		{domain.KindTask, domain.StatusPaused, domain.StatusCompleted, false},
		{domain.KindTask, domain.StatusAssigned, domain.StatusCancelled, true},
		{domain.KindTask, domain.StatusCompleted, domain.StatusInProgress, false},
		{domain.KindCleaning, domain.StatusPlanned, domain.StatusInProgress, true},
		{domain.KindCleaning, domain.StatusPlanned, domain.StatusCompleted, false},
		{domain.KindCleaning, domain.StatusInProgress, domain.StatusPaused, false},
		{domain.KindMaintenance, domain.StatusInProgress, domain.StatusCancelled, true},
		{domain.KindTicket, domain.StatusOpen, domain.StatusAssigned, true},
		{domain.KindTicket, domain.StatusOpen, domain.StatusResolved, false},
		{domain.KindTicket, domain.StatusAssigned, domain.StatusInProgress, true},
		{domain.KindTicket, domain.StatusInProgress, domain.StatusResolved, true},
		{domain.KindTicket, domain.StatusResolved, domain.StatusClosed, true},
		{domain.KindTicket, domain.StatusResolved, domain.StatusCancelled, false},
		{domain.KindTicket, domain.StatusClosed, domain.StatusOpen, false},
		{domain.KindAgent, domain.StatusOpen, domain.StatusClosed, false},
	}
	for _, c := range cases {
		err := lifecycle.EnsureTransition(c.kind, c.from, c.to)
		if (err == nil) != c.ok {
			t.Fatalf("%s %s -> %s: err=%v, want ok=%v", c.kind, c.from, c.to, err, c.ok)
		}
		if err != nil {
			var te *lifecycle.TransitionError
			if !errors.As(err, &te) || te.From != c.from || te.To != c.to {
				t.Fatalf("expected TransitionError, got %v", err)
			}
		}
	}
}

func TestTerminalStatusesWrapErrTerminal(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusCompleted, domain.StatusCancelled, domain.StatusClosed} {
		err := lifecycle.EnsureTransition(domain.KindTicket, s, domain.StatusInProgress)
		if !errors.Is(err, lifecycle.ErrTerminal) {
			t.Fatalf("%s: expected ErrTerminal, got %v", s, err)
		}
	}
	if err := lifecycle.EnsureTransition(domain.KindTask, domain.StatusAssigned, domain.StatusCompleted); errors.Is(err, lifecycle.ErrTerminal) {
		t.Fatalf("assigned is not terminal")
	}
}

func TestTaskStartCompleteKeepsStartedAt(t *testing.T) {
	task := domain.TaskAssignment{ID: "t1", Status: domain.StatusAssigned}
	task, err := lifecycle.ApplyTask(task, domain.StatusInProgress, t0)
	if err != nil {
		t.Fatal(err)
	}
	if task.StartedAt == nil || !task.StartedAt.Equal(t0) {
		t.Fatalf("startedAt not set: %+v", task.StartedAt)
	}
	task, _ = lifecycle.ApplyTask(task, domain.StatusPaused, t0.Add(10*time.Minute))
	task, _ = lifecycle.ApplyTask(task, domain.StatusInProgress, t0.Add(20*time.Minute))
	task, err = lifecycle.ApplyTask(task, domain.StatusCompleted, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !task.StartedAt.Equal(t0) {
		t.Fatalf("resume moved startedAt to %v", task.StartedAt)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("completedAt not set")
	}
}

func TestRejectedTransitionLeavesEntityUnchanged(t *testing.T) {
	task := domain.TaskAssignment{ID: "t1", Status: domain.StatusAssigned}
	got, err := lifecycle.ApplyTask(task, domain.StatusCompleted, t0)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got.Status != domain.StatusAssigned || got.CompletedAt != nil {
		t.Fatalf("entity changed on rejected transition: %+v", got)
	}
}

func TestSessionCompletionDerivesDuration(t *testing.T) {
	s := domain.CleaningSession{ID: "c1", Status: domain.StatusPlanned, EstimatedDuration: 60}
	s, _ = lifecycle.ApplyCleaning(s, domain.StatusInProgress, t0)
	s, err := lifecycle.ApplyCleaning(s, domain.StatusCompleted, t0.Add(47*time.Minute+20*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if s.EndTime == nil || s.ActualDuration == nil || *s.ActualDuration != 47 {
		t.Fatalf("unexpected completion %+v", s)
	}
}

func TestTicketFlow(t *testing.T) {
	k := domain.Ticket{ID: "k1", Status: domain.StatusOpen}
	if _, err := lifecycle.ApplyTicket(k, domain.StatusAssigned, t0); err == nil {
		t.Fatalf("assignment without agent must fail")
	}
	k, err := lifecycle.AssignTicket(k, "agent-1", t0)
	if err != nil || k.AgentID == nil || *k.AgentID != "agent-1" || k.AssignedAt == nil {
		t.Fatalf("assign: %+v %v", k, err)
	}
	k, _ = lifecycle.ApplyTicket(k, domain.StatusInProgress, t0.Add(time.Minute))
	k, err = lifecycle.ResolveTicket(k, "fixed", t0.Add(time.Hour))
	if err != nil || k.Resolution == nil || *k.Resolution != "fixed" || k.ResolvedAt == nil {
		t.Fatalf("resolve: %+v %v", k, err)
	}
	k, err = lifecycle.ApplyTicket(k, domain.StatusClosed, t0.Add(2*time.Hour))
	if err != nil || k.ClosedAt == nil {
		t.Fatalf("close: %+v %v", k, err)
	}
}

func TestProgress(t *testing.T) {
	now := t0.Add(30 * time.Minute)
	start := t0
	cases := []struct {
		name   string
		status domain.Status
		start  *time.Time
		est    int
		want   int
	}{
		{"half way", domain.StatusInProgress, &start, 60, 50},
		{"completed ignores timing", domain.StatusCompleted, &start, 60, 100},
		{"clamped high", domain.StatusInProgress, &start, 10, 95},
		{"clamped low", domain.StatusInProgress, &now, 60, 5},
		{"unknown start", domain.StatusInProgress, nil, 60, 25},
		{"unknown estimate", domain.StatusInProgress, &start, 0, 25},
		{"planned", domain.StatusPlanned, nil, 60, 0},
		{"cancelled", domain.StatusCancelled, &start, 60, 0},
	}
	for _, c := range cases {
		if got := lifecycle.Progress(c.status, c.start, c.est, now); got != c.want {
			t.Fatalf("%s: got %d want %d", c.name, got, c.want)
		}
	}
	if got := lifecycle.ProgressWith(40, domain.StatusInProgress, nil, 0, now); got != 40 {
		t.Fatalf("custom fallback: got %d", got)
	}
}
