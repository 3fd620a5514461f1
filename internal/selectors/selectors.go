// Package selectors derives filtered views and counts from entity
// collections. Every function is pure: results are recomputed from the
// slices passed in and the inputs are never modified.
package selectors

import (
	"slices"
	"strings"
	"time"

	"fieldline/internal/domain"
)

type AgentFilter struct {
	Types        []domain.AgentType
	Availability []domain.Availability
	ActiveOnly   bool
	Query        string
}

type TaskFilter struct {
	Statuses   []domain.Status
	Priorities []domain.Priority
	Types      []domain.TaskType
	AgentID    string
	PropertyID string
	Query      string
}

type TicketFilter struct {
	Statuses   []domain.Status
	Priorities []domain.Priority
	AgentID    string
	PropertyID string
	Query      string
}

// SessionFilter bounds ScheduledDate to [From, To) when set.
type SessionFilter struct {
	Statuses   []domain.Status
	AgentID    string
	PropertyID string
	From, To   time.Time
	Query      string
}

func FilterAgents(agents []domain.Agent, f AgentFilter) []domain.Agent {
	return keep(agents, func(a domain.Agent) bool {
		return member(f.Types, a.AgentType) &&
			member(f.Availability, a.Availability) &&
			(!f.ActiveOnly || a.IsActive) &&
			agentMatches(a, f.Query)
	})
}

// SearchAgents matches q against the agent's name, email and user id.
func SearchAgents(agents []domain.Agent, q string) []domain.Agent {
	return keep(agents, func(a domain.Agent) bool { return agentMatches(a, q) })
}

func agentMatches(a domain.Agent, q string) bool {
	fields := []string{a.UserID}
	if a.User != nil {
		fields = append(fields, a.User.Name, a.User.Email)
	}
	return matches(q, fields...)
}

func FilterTasks(tasks []domain.TaskAssignment, f TaskFilter) []domain.TaskAssignment {
	return keep(tasks, func(t domain.TaskAssignment) bool {
		return member(f.Statuses, t.Status) &&
			member(f.Priorities, t.Priority) &&
			member(f.Types, t.Type) &&
			(f.AgentID == "" || t.AgentID == f.AgentID) &&
			(f.PropertyID == "" || (t.PropertyID != nil && *t.PropertyID == f.PropertyID)) &&
			matches(f.Query, t.Title, t.Description, t.Notes)
	})
}

func FilterTickets(tickets []domain.Ticket, f TicketFilter) []domain.Ticket {
	return keep(tickets, func(t domain.Ticket) bool {
		return member(f.Statuses, t.Status) &&
			member(f.Priorities, t.Priority) &&
			(f.AgentID == "" || (t.AgentID != nil && *t.AgentID == f.AgentID)) &&
			(f.PropertyID == "" || t.PropertyID == f.PropertyID) &&
			matches(f.Query, t.Title, t.Description, t.Category, deref(t.Resolution))
	})
}

func FilterCleaning(sessions []domain.CleaningSession, f SessionFilter) []domain.CleaningSession {
	return keep(sessions, func(s domain.CleaningSession) bool {
		return f.match(s.Status, s.AgentID, s.PropertyID, s.ScheduledDate, s.Notes)
	})
}

func FilterMaintenance(sessions []domain.MaintenanceSession, f SessionFilter) []domain.MaintenanceSession {
	return keep(sessions, func(s domain.MaintenanceSession) bool {
		return f.match(s.Status, s.AgentID, s.PropertyID, s.ScheduledDate, s.Notes)
	})
}

func (f SessionFilter) match(status domain.Status, agentID, propertyID string, at time.Time, notes string) bool {
	return member(f.Statuses, status) &&
		(f.AgentID == "" || agentID == f.AgentID) &&
		(f.PropertyID == "" || propertyID == f.PropertyID) &&
		(f.From.IsZero() || !at.Before(f.From)) &&
		(f.To.IsZero() || at.Before(f.To)) &&
		matches(f.Query, notes)
}

// Overdue returns tasks whose due date has passed and that are not
// completed. Cancelled tasks with a past due date are included.
func Overdue(tasks []domain.TaskAssignment, now time.Time) []domain.TaskAssignment {
	return keep(tasks, func(t domain.TaskAssignment) bool { return isOverdue(t, now) })
}

func isOverdue(t domain.TaskAssignment, now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != domain.StatusCompleted
}

// WorkItems merges every kind of work into one agenda ordered by
// scheduled time, then kind, then id.
func WorkItems(tasks []domain.TaskAssignment, cleaning []domain.CleaningSession, maintenance []domain.MaintenanceSession, tickets []domain.Ticket) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(tasks)+len(cleaning)+len(maintenance)+len(tickets))
	for i := range tasks {
		t := tasks[i]
		out = append(out, &t)
	}
	for i := range cleaning {
		s := cleaning[i]
		out = append(out, &s)
	}
	for i := range maintenance {
		s := maintenance[i]
		out = append(out, &s)
	}
	for i := range tickets {
		t := tickets[i]
		out = append(out, &t)
	}
	slices.SortStableFunc(out, func(a, b domain.WorkItem) int {
		if c := a.ScheduledFor().Compare(b.ScheduledFor()); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Kind()), string(b.Kind())); c != 0 {
			return c
		}
		return strings.Compare(a.EntityID(), b.EntityID())
	})
	return out
}

// Today keeps items scheduled on now's calendar day in now's location.
func Today(items []domain.WorkItem, now time.Time) []domain.WorkItem {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	return keep(items, func(w domain.WorkItem) bool {
		at := w.ScheduledFor()
		return !at.Before(start) && at.Before(end)
	})
}

func keep[T any](items []T, ok func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if ok(it) {
			out = append(out, it)
		}
	}
	return out
}

// member reports whether v is in set; an empty set matches everything.
func member[T comparable](set []T, v T) bool {
	return len(set) == 0 || slices.Contains(set, v)
}

// matches is a case-insensitive substring test over fields. An empty
// query matches.
func matches(q string, fields ...string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
