package repo_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fieldline/internal/cache"
	"fieldline/internal/clock"
	"fieldline/internal/db"
	"fieldline/internal/devserver"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/gateway"
	"fieldline/internal/lifecycle"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
	"fieldline/internal/session"
	"fieldline/internal/state"
)

const secret = "repo-test-secret"

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repos   *repo.Repos
	store   *state.Store
	cache   cache.SQLite
	journal events.Writer
	holder  *session.Holder
	server  *devserver.Server
	clock   *clock.FakeClock
	// fail makes every API call answer 500 when set.
	fail  atomic.Bool
	calls atomic.Int32
}

func newFixture(t *testing.T, seed devserver.Seed) *fixture {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &fixture{clock: clock.Fake(t0), holder: &session.Holder{}, store: state.NewStore()}
	f.server = devserver.New(devserver.Config{Secret: secret, Clock: f.clock})
	f.server.Seed(seed)
	handler := f.server.Handler()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			f.calls.Add(1)
		}
		if f.fail.Load() {
			http.Error(w, `{"error":{"code":"internal_error","message":"backend unavailable"}}`, http.StatusInternalServerError)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(hs.Close)

	f.cache = cache.SQLite{DB: conn}
	f.journal = events.Writer{DB: conn, Now: f.clock.Now}
	f.repos = repo.New(repo.Deps{
		Gateway: gateway.New(hs.URL, f.holder),
		Cache:   f.cache,
		Store:   f.store,
		Session: f.holder,
		Journal: f.journal,
		Clock:   f.clock,
	})
	return f
}

func (f *fixture) signIn(t *testing.T, id session.Identity) {
	t.Helper()
	tok, err := devserver.IssueToken(secret, id, time.Hour, t0)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	id.Token = tok
	f.holder.Set(id)
}

var agent = session.Identity{UserID: "user-1", AgentID: "agent-1", Role: session.RoleAgent}
var manager = session.Identity{UserID: "mgr-1", Role: session.RoleManager}

func baseSeed() devserver.Seed {
	return devserver.Seed{
		Agents: []domain.Agent{
			{ID: "agent-1", UserID: "user-1", ManagerID: "mgr-1", AgentType: domain.AgentCleaning, Availability: domain.Available},
			{ID: "agent-2", UserID: "user-2", ManagerID: "mgr-1", AgentType: domain.AgentMaintenance, Availability: domain.Offline},
		},
		Tasks: []domain.TaskAssignment{
			{ID: "task-1", AgentID: "agent-1", Title: "Turnover flat 3", Status: domain.StatusAssigned, Type: domain.TaskCleaning},
			{ID: "task-2", AgentID: "agent-1", Title: "Restock linen", Status: domain.StatusAssigned, Type: domain.TaskLaundry},
		},
		Cleaning: []domain.CleaningSession{
			{ID: "c1", AgentID: "agent-1", PropertyID: "p1", ScheduledDate: t0, EstimatedDuration: 60, Status: domain.StatusPlanned},
		},
		Maintenance: []domain.MaintenanceSession{
			{ID: "m1", AgentID: "agent-1", PropertyID: "p1", TicketID: "k2", ScheduledDate: t0, Status: domain.StatusPlanned},
		},
		Tickets: []domain.Ticket{
			{ID: "k1", PropertyID: "p1", Title: "Broken shutter", Status: domain.StatusOpen},
			{ID: "k2", PropertyID: "p1", AgentID: ptr("agent-1"), Title: "Leaking tap", Status: domain.StatusAssigned},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func pullAll(t *testing.T, f *fixture) {
	t.Helper()
	for _, r := range f.repos.Each() {
		if err := r.Pull(context.Background()); err != nil {
			t.Fatalf("pull %s: %v", r.Kind(), err)
		}
	}
}

func TestStartCompleteScenario(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	started, ok := f.repos.Tasks.Start(ctx, "task-1")
	if !ok {
		t.Fatalf("start failed: %v", f.store.Err())
	}
	if started.Status != domain.StatusInProgress || started.StartedAt == nil {
		t.Fatalf("unexpected started task %+v", started)
	}
	f.clock.Advance(45 * time.Minute)
	done, ok := f.repos.Tasks.Complete(ctx, "task-1")
	if !ok {
		t.Fatalf("complete failed: %v", f.store.Err())
	}
	if done.Status != domain.StatusCompleted || done.CompletedAt == nil || !done.StartedAt.Equal(*started.StartedAt) {
		t.Fatalf("unexpected completed task %+v", done)
	}

	inMem, _ := f.repos.Tasks.GetByID("task-1")
	if inMem.Status != domain.StatusCompleted {
		t.Fatalf("memory not updated: %+v", inMem)
	}
	cached, err := cache.LoadCollection[domain.TaskAssignment](ctx, f.cache, cache.KeyTaskAssignments)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(cached), []string{"task-1", "task-2"}) || cached[0].Status != domain.StatusCompleted {
		t.Fatalf("cache not mirrored: %+v", cached)
	}

	hist, err := f.journal.History(ctx, "task", "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].ToStatus != "in_progress" || hist[1].ToStatus != "completed" {
		t.Fatalf("unexpected journal %+v", hist)
	}
	for _, e := range hist {
		if err := lifecycle.EnsureTransition(domain.KindTask, domain.Status(e.FromStatus), domain.Status(e.ToStatus)); err != nil {
			t.Fatalf("journal holds an invalid path: %v", err)
		}
	}
}

func TestNetworkFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	before := f.repos.Tasks.List()
	beforeCache, _, _ := f.cache.Get(ctx, cache.KeyTaskAssignments)

	f.fail.Store(true)
	if _, ok := f.repos.Tasks.Start(ctx, "task-1"); ok {
		t.Fatalf("expected failure")
	}
	if f.store.Err() == nil {
		t.Fatalf("expected shared error to be set")
	}
	var apiErr *gateway.APIError
	if !errors.As(f.store.Err(), &apiErr) || apiErr.Message != "backend unavailable" {
		t.Fatalf("unexpected error %v", f.store.Err())
	}
	if !reflect.DeepEqual(before, f.repos.Tasks.List()) {
		t.Fatalf("memory changed on failure")
	}
	afterCache, _, _ := f.cache.Get(ctx, cache.KeyTaskAssignments)
	if !reflect.DeepEqual(beforeCache, afterCache) {
		t.Fatalf("cache changed on failure")
	}
	if f.store.Pending(domain.KindTask) {
		t.Fatalf("operation still marked in flight")
	}

	f.fail.Store(false)
	if _, ok := f.repos.Tasks.Start(ctx, "task-1"); !ok {
		t.Fatalf("retry failed: %v", f.store.Err())
	}
	if f.store.Err() != nil {
		t.Fatalf("retry should clear the shared error")
	}
}

func TestNoIdentityIsSilentNoOp(t *testing.T) {
	f := newFixture(t, baseSeed())
	ctx := context.Background()
	f.store.Tasks.Replace([]domain.TaskAssignment{{ID: "task-1", AgentID: "agent-1", Status: domain.StatusAssigned}})
	if _, ok := f.repos.Tasks.Start(ctx, "task-1"); ok {
		t.Fatalf("expected no-op")
	}
	if f.repos.Tickets.Refresh(ctx) {
		t.Fatalf("refresh without identity must report false")
	}
	if f.calls.Load() != 0 {
		t.Fatalf("no request should reach the network, got %d", f.calls.Load())
	}
	if f.store.Err() != nil {
		t.Fatalf("no-op must not record an error")
	}
}

func TestGuardViolationSkipsNetwork(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()
	calls := f.calls.Load()

	if _, ok := f.repos.Tasks.Complete(ctx, "task-2"); ok {
		t.Fatalf("assigned -> completed must be refused")
	}
	var te *lifecycle.TransitionError
	if !errors.As(f.store.Err(), &te) {
		t.Fatalf("expected TransitionError, got %v", f.store.Err())
	}
	if _, ok := f.repos.Tasks.Start(ctx, "missing"); ok || !errors.Is(f.store.Err(), repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", f.store.Err())
	}
	bad := domain.Availability("napping")
	if _, ok := f.repos.Agents.SetAvailability(ctx, bad); ok {
		t.Fatalf("unknown availability must be refused")
	}
	if _, ok := f.repos.Tasks.Create(ctx, gateway.TaskInput{AgentID: "agent-1", Title: "x", CleaningSessionID: ptr("c1"), TicketID: ptr("k1")}); ok {
		t.Fatalf("multiple links must be refused")
	}
	if f.calls.Load() != calls {
		t.Fatalf("guard violations reached the network")
	}
}

func TestPauseResumeCancel(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	first, ok := f.repos.Tasks.Start(ctx, "task-2")
	if !ok {
		t.Fatalf("start: %v", f.store.Err())
	}
	f.clock.Advance(10 * time.Minute)
	if got, ok := f.repos.Tasks.Pause(ctx, "task-2"); !ok || got.Status != domain.StatusPaused {
		t.Fatalf("pause: %+v %v", got, f.store.Err())
	}
	f.clock.Advance(10 * time.Minute)
	resumed, ok := f.repos.Tasks.Resume(ctx, "task-2")
	if !ok || !resumed.StartedAt.Equal(*first.StartedAt) {
		t.Fatalf("resume: %+v %v", resumed, f.store.Err())
	}
	if got, ok := f.repos.Tasks.Cancel(ctx, "task-2"); !ok || got.Status != domain.StatusCancelled {
		t.Fatalf("cancel: %+v %v", got, f.store.Err())
	}
	if _, ok := f.repos.Tasks.Resume(ctx, "task-2"); ok || !errors.Is(f.store.Err(), lifecycle.ErrTerminal) {
		t.Fatalf("cancelled task must be terminal, got %v", f.store.Err())
	}
}

func TestCleaningSessionProgress(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	if pct, _ := f.repos.Cleaning.Progress("c1", f.clock.Now()); pct != 0 {
		t.Fatalf("planned progress = %d", pct)
	}
	if _, ok := f.repos.Cleaning.Start(ctx, "c1"); !ok {
		t.Fatalf("start: %v", f.store.Err())
	}
	f.clock.Advance(30 * time.Minute)
	if pct, _ := f.repos.Cleaning.Progress("c1", f.clock.Now()); pct != 50 {
		t.Fatalf("progress after 30/60 = %d", pct)
	}
	done, ok := f.repos.Cleaning.Complete(ctx, "c1")
	if !ok || done.ActualDuration == nil || *done.ActualDuration != 30 {
		t.Fatalf("complete: %+v %v", done, f.store.Err())
	}
	if pct, _ := f.repos.Cleaning.Progress("c1", f.clock.Now().Add(5*time.Hour)); pct != 100 {
		t.Fatalf("completed progress = %d", pct)
	}
}

func TestMaintenanceAndTickets(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	if got := f.repos.Maintenance.ForTicket("k2"); len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("ForTicket: %+v", got)
	}
	if _, ok := f.repos.Tickets.Accept(ctx, "k2"); !ok {
		t.Fatalf("accept: %v", f.store.Err())
	}
	if _, ok := f.repos.Maintenance.Start(ctx, "m1"); !ok {
		t.Fatalf("start maintenance: %v", f.store.Err())
	}
	if _, ok := f.repos.Maintenance.Cancel(ctx, "m1"); !ok {
		t.Fatalf("cancel maintenance: %v", f.store.Err())
	}
	k, ok := f.repos.Tickets.Resolve(ctx, "k2", "replaced washer")
	if !ok || k.Status != domain.StatusResolved || *k.Resolution != "replaced washer" {
		t.Fatalf("resolve: %+v %v", k, f.store.Err())
	}
	if _, ok := f.repos.Tickets.Resolve(ctx, "k2", ""); ok {
		t.Fatalf("empty resolution must be refused")
	}
}

func TestManagerAssignsTicketAndManagesAgents(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, manager)
	ctx := context.Background()
	if err := f.repos.Agents.Pull(ctx); err != nil {
		t.Fatalf("pull agents: %v", err)
	}
	if got := f.repos.Agents.ByManager("mgr-1"); len(got) != 2 {
		t.Fatalf("ByManager: %+v", got)
	}
	f.store.Tickets.Replace(f.server.Snapshot().Tickets)
	k, ok := f.repos.Tickets.Assign(ctx, "k1", "agent-2")
	if !ok || k.Status != domain.StatusAssigned || k.AgentID == nil || *k.AgentID != "agent-2" {
		t.Fatalf("assign: %+v %v", k, f.store.Err())
	}

	created, ok := f.repos.Agents.Create(ctx, gateway.AgentInput{UserID: "user-3", AgentType: domain.AgentLaundry})
	if !ok {
		t.Fatalf("create agent: %v", f.store.Err())
	}
	if got := f.repos.Agents.List(); len(got) != 3 || got[2].ID != created.ID {
		t.Fatalf("new agent must be appended: %+v", got)
	}
	if !f.repos.Agents.Delete(ctx, created.ID) {
		t.Fatalf("delete agent: %v", f.store.Err())
	}
	if _, found := f.repos.Agents.GetByID(created.ID); found {
		t.Fatalf("agent still present after delete")
	}
}

func TestAgentProfileUpdates(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	if p, ok := f.repos.Agents.Profile(); !ok || p.ID != "agent-1" {
		t.Fatalf("profile: %+v", p)
	}
	a, ok := f.repos.Agents.SetAvailability(ctx, domain.OnMission)
	if !ok || a.Availability != domain.OnMission {
		t.Fatalf("availability: %+v %v", a, f.store.Err())
	}
	a, ok = f.repos.Agents.UpdateLocation(ctx, 48.86, 2.35)
	if !ok || a.CurrentLocation == nil || !a.CurrentLocation.CapturedAt.Equal(t0) {
		t.Fatalf("location: %+v %v", a, f.store.Err())
	}
	sp, ok := f.repos.Specialties.Create(ctx, gateway.SpecialtyInput{Name: "deep clean", Certified: true})
	if !ok || sp.AgentID != "agent-1" {
		t.Fatalf("specialty: %+v %v", sp, f.store.Err())
	}
	if got := f.repos.Specialties.ForAgent("agent-1"); len(got) != 1 {
		t.Fatalf("ForAgent: %+v", got)
	}
	if !f.repos.Specialties.Delete(ctx, sp.ID) {
		t.Fatalf("delete specialty: %v", f.store.Err())
	}
}

func TestLateResponseAfterResetIsDropped(t *testing.T) {
	f := newFixture(t, baseSeed())
	f.signIn(t, agent)
	pullAll(t, f)
	ctx := context.Background()

	gate := make(chan struct{})
	entered := make(chan struct{})
	f.repos = repo.New(repo.Deps{
		Gateway: &gateway.Client{
			BaseURL:    "http://fieldline.invalid",
			Session:    f.holder,
			HTTPClient: &http.Client{Transport: blockingTransport{entered: entered, gate: gate}},
		},
		Store:   f.store,
		Session: f.holder,
		Clock:   f.clock,
	})
	result := make(chan bool, 1)
	go func() {
		_, ok := f.repos.Tasks.Start(ctx, "task-1")
		result <- ok
	}()
	<-entered
	f.store.Reset()
	close(gate)
	if <-result {
		t.Fatalf("late response should be discarded")
	}
	if f.store.Tasks.Len() != 0 {
		t.Fatalf("late response repopulated the store")
	}
}

type blockingTransport struct {
	entered chan struct{}
	gate    chan struct{}
}

func (b blockingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	close(b.entered)
	<-b.gate
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteString(`{"id":"task-1","agentId":"agent-1","status":"in_progress"}`)
	resp := rec.Result()
	resp.Request = r
	return resp, nil
}

func ids[T domain.Entity](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.EntityID()
	}
	return out
}
