package selectors_test

import (
	"testing"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/selectors"
)

var now = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func agents() []domain.Agent {
	return []domain.Agent{
		{ID: "a1", UserID: "u1", User: &domain.UserRef{Name: "Nadia Rahim", Email: "nadia@example.com"}, AgentType: domain.AgentCleaning, Availability: domain.Available, IsActive: true},
		{ID: "a2", UserID: "u2", User: &domain.UserRef{Name: "Omar Haddad", Email: "omar@example.com"}, AgentType: domain.AgentMaintenance, Availability: domain.Busy, IsActive: true},
		{ID: "a3", UserID: "u3", AgentType: domain.AgentCleaning, Availability: domain.Offline},
	}
}

func tasks() []domain.TaskAssignment {
	return []domain.TaskAssignment{
		{ID: "t1", AgentID: "a1", Title: "Turnover", Notes: "Check the BALCONY", Status: domain.StatusAssigned, Priority: domain.PriorityHigh, Type: domain.TaskCleaning, DueDate: ptr(now.Add(-time.Hour)), PropertyID: ptr("p1")},
		{ID: "t2", AgentID: "a1", Title: "Linen", Status: domain.StatusCompleted, Priority: domain.PriorityLow, Type: domain.TaskLaundry, DueDate: ptr(now.Add(-2 * time.Hour))},
		{ID: "t3", AgentID: "a2", Title: "Boiler", Status: domain.StatusInProgress, Priority: domain.PriorityHigh, Type: domain.TaskMaintenance, DueDate: ptr(now.Add(time.Hour))},
		{ID: "t4", AgentID: "a2", Title: "Keys", Status: domain.StatusCancelled, Priority: domain.PriorityMedium, Type: domain.TaskConcierge, DueDate: ptr(now.Add(-time.Minute))},
	}
}

func ids[T domain.Entity](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.EntityID()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilterAgents(t *testing.T) {
	cases := []struct {
		name string
		f    selectors.AgentFilter
		want []string
	}{
		{"all", selectors.AgentFilter{}, []string{"a1", "a2", "a3"}},
		{"type", selectors.AgentFilter{Types: []domain.AgentType{domain.AgentCleaning}}, []string{"a1", "a3"}},
		{"availability", selectors.AgentFilter{Availability: []domain.Availability{domain.Busy, domain.Offline}}, []string{"a2", "a3"}},
		{"active", selectors.AgentFilter{ActiveOnly: true, Types: []domain.AgentType{domain.AgentCleaning}}, []string{"a1"}},
		{"query email", selectors.AgentFilter{Query: "OMAR@"}, []string{"a2"}},
	}
	for _, tc := range cases {
		got := ids(selectors.FilterAgents(agents(), tc.f))
		if !equal(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
	if got := ids(selectors.SearchAgents(agents(), "  nadia ")); !equal(got, []string{"a1"}) {
		t.Fatalf("search: %v", got)
	}
}

func TestFilterTasks(t *testing.T) {
	cases := []struct {
		name string
		f    selectors.TaskFilter
		want []string
	}{
		{"status", selectors.TaskFilter{Statuses: []domain.Status{domain.StatusAssigned, domain.StatusInProgress}}, []string{"t1", "t3"}},
		{"priority", selectors.TaskFilter{Priorities: []domain.Priority{domain.PriorityHigh}}, []string{"t1", "t3"}},
		{"agent and type", selectors.TaskFilter{AgentID: "a1", Types: []domain.TaskType{domain.TaskLaundry}}, []string{"t2"}},
		{"property", selectors.TaskFilter{PropertyID: "p1"}, []string{"t1"}},
		{"notes search", selectors.TaskFilter{Query: "balcony"}, []string{"t1"}},
	}
	for _, tc := range cases {
		if got := ids(selectors.FilterTasks(tasks(), tc.f)); !equal(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterTicketsAndSessions(t *testing.T) {
	tickets := []domain.Ticket{
		{ID: "k1", PropertyID: "p1", Title: "Leak", Status: domain.StatusOpen, Priority: domain.PriorityUrgent},
		{ID: "k2", PropertyID: "p2", AgentID: ptr("a2"), Title: "Shutter", Status: domain.StatusResolved, Resolution: ptr("replaced motor")},
	}
	if got := ids(selectors.FilterTickets(tickets, selectors.TicketFilter{Query: "MOTOR"})); !equal(got, []string{"k2"}) {
		t.Fatalf("resolution search: %v", got)
	}
	if got := ids(selectors.FilterTickets(tickets, selectors.TicketFilter{AgentID: "a2"})); !equal(got, []string{"k2"}) {
		t.Fatalf("agent filter: %v", got)
	}
	if got := ids(selectors.FilterTickets(tickets, selectors.TicketFilter{Priorities: []domain.Priority{domain.PriorityUrgent}})); !equal(got, []string{"k1"}) {
		t.Fatalf("priority filter: %v", got)
	}

	cleaning := []domain.CleaningSession{
		{ID: "c1", AgentID: "a1", PropertyID: "p1", ScheduledDate: now.Add(-24 * time.Hour), Status: domain.StatusCompleted},
		{ID: "c2", AgentID: "a1", PropertyID: "p2", ScheduledDate: now, Status: domain.StatusPlanned, Notes: "Guests arrive at 4"},
	}
	window := selectors.SessionFilter{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
	if got := ids(selectors.FilterCleaning(cleaning, window)); !equal(got, []string{"c2"}) {
		t.Fatalf("date window: %v", got)
	}
	if got := ids(selectors.FilterCleaning(cleaning, selectors.SessionFilter{Query: "guests"})); !equal(got, []string{"c2"}) {
		t.Fatalf("notes search: %v", got)
	}
	maint := []domain.MaintenanceSession{{ID: "m1", PropertyID: "p1", Status: domain.StatusInProgress}}
	if got := selectors.FilterMaintenance(maint, selectors.SessionFilter{Statuses: []domain.Status{domain.StatusPlanned}}); len(got) != 0 {
		t.Fatalf("status filter: %v", ids(got))
	}
}

func TestOverdueIsLiteral(t *testing.T) {
	got := ids(selectors.Overdue(tasks(), now))
	if !equal(got, []string{"t1", "t4"}) {
		t.Fatalf("overdue = %v", got)
	}
}

func TestStats(t *testing.T) {
	as := selectors.AgentStats(agents())
	if as.Total != 3 || as.Active != 2 || as.ByType[domain.AgentCleaning] != 2 || as.ByAvailability[domain.Offline] != 1 {
		t.Fatalf("agent stats %+v", as)
	}

	ts := selectors.TaskStats(tasks(), now)
	if ts.Total != 4 || ts.Overdue != 2 || ts.ByStatus[domain.StatusCompleted] != 1 || ts.ByPriority[domain.PriorityHigh] != 2 || ts.CompletionRate != 25 {
		t.Fatalf("task stats %+v", ts)
	}
	if empty := selectors.TaskStats(nil, now); empty.Total != 0 || empty.CompletionRate != 0 {
		t.Fatalf("empty stats %+v", empty)
	}

	ks := selectors.TicketStats([]domain.Ticket{
		{ID: "k1", Status: domain.StatusOpen},
		{ID: "k2", Status: domain.StatusInProgress, AgentID: ptr("a1")},
		{ID: "k3", Status: domain.StatusResolved, AgentID: ptr("a1")},
		{ID: "k4", Status: domain.StatusClosed, AgentID: ptr("a2")},
	})
	if ks.Total != 4 || ks.Open != 2 || ks.Unassigned != 1 || ks.ByStatus[domain.StatusClosed] != 1 {
		t.Fatalf("ticket stats %+v", ks)
	}

	ss := selectors.SessionStats(
		[]domain.CleaningSession{
			{ID: "c1", Status: domain.StatusCompleted, ActualDuration: ptr(40)},
			{ID: "c2", Status: domain.StatusCompleted, ActualDuration: ptr(60)},
			{ID: "c3", Status: domain.StatusPlanned},
		},
		[]domain.MaintenanceSession{{ID: "m1", Status: domain.StatusCancelled}},
	)
	if ss.Cleaning.Total != 3 || ss.Cleaning.ActualMinutes != 100 || ss.Cleaning.AvgActualMinutes != 50 {
		t.Fatalf("cleaning stats %+v", ss.Cleaning)
	}
	if ss.Maintenance.Total != 1 || ss.Maintenance.ByStatus[domain.StatusCancelled] != 1 || ss.Maintenance.AvgActualMinutes != 0 {
		t.Fatalf("maintenance stats %+v", ss.Maintenance)
	}
}

func TestWorkItemsAgenda(t *testing.T) {
	items := selectors.WorkItems(
		[]domain.TaskAssignment{{ID: "t1", Title: "Turnover", DueDate: ptr(now.Add(2 * time.Hour))}},
		[]domain.CleaningSession{
			{ID: "c1", PropertyID: "p1", ScheduledDate: now.Add(time.Hour)},
			{ID: "c0", PropertyID: "p9", ScheduledDate: now.Add(-30 * time.Hour)},
		},
		[]domain.MaintenanceSession{{ID: "m1", PropertyID: "p1", ScheduledDate: now.Add(time.Hour)}},
		[]domain.Ticket{{ID: "k1", Title: "Leak", ReportedAt: now.Add(-time.Hour)}},
	)
	var got []string
	for _, it := range items {
		got = append(got, string(it.Kind())+":"+it.EntityID())
	}
	want := []string{"cleaning:c0", "ticket:k1", "cleaning:c1", "maintenance:m1", "task:t1"}
	if !equal(got, want) {
		t.Fatalf("agenda %v want %v", got, want)
	}

	for _, it := range items {
		switch w := it.(type) {
		case *domain.TaskAssignment, *domain.CleaningSession, *domain.MaintenanceSession, *domain.Ticket:
		default:
			t.Fatalf("unexpected work item %T", w)
		}
	}

	today := selectors.Today(items, now)
	if len(today) != 4 {
		t.Fatalf("today = %d items", len(today))
	}
	if domain.RefOf(today[0]) != (domain.WorkRef{Kind: domain.KindTicket, ID: "k1"}) {
		t.Fatalf("first today item %+v", domain.RefOf(today[0]))
	}
}

func TestSelectorsDoNotMutateInput(t *testing.T) {
	in := tasks()
	_ = selectors.FilterTasks(in, selectors.TaskFilter{Statuses: []domain.Status{domain.StatusCompleted}})
	_ = selectors.Overdue(in, now)
	if got := ids(in); !equal(got, []string{"t1", "t2", "t3", "t4"}) {
		t.Fatalf("input reordered: %v", got)
	}
}
