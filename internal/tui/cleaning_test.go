package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fieldline/internal/clock"
	"fieldline/internal/domain"
	"fieldline/internal/workflow"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type stubTarget struct {
	mu       sync.Mutex
	calls    []string
	startErr error
}

func (s *stubTarget) Start(_ context.Context, ref domain.WorkRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.calls = append(s.calls, "start:"+ref.ID)
	return nil
}

func (s *stubTarget) Complete(_ context.Context, ref domain.WorkRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "complete:"+ref.ID)
	return nil
}

func newModel(t *testing.T, target workflow.Target) (Cleaning, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(t0)
	feed := NewSampleFeed()
	runner := workflow.NewRunner(workflow.Options{Clock: fake, OnSample: feed.Push})
	flow, err := runner.Open(domain.WorkRef{Kind: domain.KindTask, ID: "task-1"}, target)
	if err != nil {
		t.Fatal(err)
	}
	return NewCleaning(context.Background(), flow, "Turnover flat 3", feed, fake.Now), fake
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func typeText(m Cleaning, s string) Cleaning {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Cleaning)
}

func press(m Cleaning, msg tea.Msg) (Cleaning, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Cleaning), cmd
}

// runTransition executes the command batch from ctrl+s and feeds the
// transition result back into the model.
func runTransition(t *testing.T, m Cleaning, cmd tea.Cmd) (Cleaning, tea.Cmd) {
	t.Helper()
	if !m.busy {
		t.Fatalf("model should be busy while the transition runs")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected batch command")
	}
	for _, c := range batch {
		if msg, ok := c().(transitionMsg); ok {
			return press(m, msg)
		}
	}
	t.Fatalf("no transition message in batch")
	return m, nil
}

func TestCleaningFlowThroughKeys(t *testing.T) {
	target := &stubTarget{}
	m, fake := newModel(t, target)

	m, _ = press(m, key(tea.KeyEnter))
	if m.flow.Step() != workflow.StepBeforePhotos {
		t.Fatalf("enter should leave instructions, got %s", m.flow.Step())
	}

	m, _ = press(m, key(tea.KeyEnter))
	if m.err == nil {
		t.Fatalf("empty photo path should be refused")
	}
	m = typeText(m, "/sdcard/before-1.jpg")
	m, _ = press(m, key(tea.KeyEnter))
	if got := m.flow.View().Before; len(got) != 1 || got[0].URI != "/sdcard/before-1.jpg" || got[0].ID == "" {
		t.Fatalf("photo not added: %+v", got)
	}
	if m.input.Value() != "" {
		t.Fatalf("input should reset after adding")
	}

	m, cmd := press(m, key(tea.KeyCtrlS))
	m, _ = runTransition(t, m, cmd)
	if m.err != nil || m.flow.Step() != workflow.StepCleaning {
		t.Fatalf("start cleaning failed: %v step=%s", m.err, m.flow.Step())
	}

	fake.Advance(time.Second)
	msg := m.feed.wait()()
	if d, ok := msg.(SampleMsg); !ok || time.Duration(d) != time.Second {
		t.Fatalf("unexpected sample %v", msg)
	}
	m, _ = press(m, msg)
	if !strings.Contains(m.View(), "00:00:01") {
		t.Fatalf("timer not rendered:\n%s", m.View())
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if m.flow.Step() != workflow.StepAfterPhotos || m.flow.Sampling() {
		t.Fatalf("d should finish cleaning")
	}

	m, cmd = press(m, key(tea.KeyCtrlS))
	m, _ = runTransition(t, m, cmd)
	if !errors.Is(m.err, workflow.ErrNoPhotos) || m.Completed() {
		t.Fatalf("complete without after photo must fail, got %v", m.err)
	}

	m = typeText(m, "/sdcard/after-1.jpg")
	m, _ = press(m, key(tea.KeyEnter))
	m, cmd = press(m, key(tea.KeyCtrlS))
	m, quit := runTransition(t, m, cmd)
	if !m.Completed() || quit == nil {
		t.Fatalf("expected completion and quit, err=%v", m.err)
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
	if strings.Join(target.calls, ",") != "start:task-1,complete:task-1" {
		t.Fatalf("target calls %v", target.calls)
	}
}

func TestEscAbandonsFlow(t *testing.T) {
	target := &stubTarget{}
	m, fake := newModel(t, target)
	m, _ = press(m, key(tea.KeyEnter))
	m = typeText(m, "/sdcard/b.jpg")
	m, _ = press(m, key(tea.KeyEnter))
	m, cmd := press(m, key(tea.KeyCtrlS))
	m, _ = runTransition(t, m, cmd)

	m, cmd = press(m, key(tea.KeyEsc))
	if !m.Abandoned() || cmd == nil {
		t.Fatalf("esc should abandon and quit")
	}
	if fake.ActiveTickers() != 0 {
		t.Fatalf("sampler left running after abandon")
	}
	if len(target.calls) != 1 {
		t.Fatalf("abandon must not complete: %v", target.calls)
	}
}

func TestStartFailureIsShown(t *testing.T) {
	target := &stubTarget{startErr: errors.New("backend unavailable")}
	m, _ := newModel(t, target)
	m, _ = press(m, key(tea.KeyEnter))
	m = typeText(m, "/sdcard/b.jpg")
	m, _ = press(m, key(tea.KeyEnter))
	m, cmd := press(m, key(tea.KeyCtrlS))
	m, _ = runTransition(t, m, cmd)
	if m.flow.Step() != workflow.StepBeforePhotos {
		t.Fatalf("failed start must keep before_photos")
	}
	if !strings.Contains(m.View(), "backend unavailable") {
		t.Fatalf("error not rendered:\n%s", m.View())
	}
	m, _ = press(m, key(tea.KeyCtrlD))
	if len(m.flow.View().Before) != 0 {
		t.Fatalf("ctrl+d should remove the last photo")
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(time.Hour + 2*time.Minute + 3500*time.Millisecond); got != "01:02:03" {
		t.Fatalf("formatElapsed = %s", got)
	}
}
