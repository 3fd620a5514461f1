package selectors

import (
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/lifecycle"
)

type AgentCounts struct {
	Total          int                         `json:"total"`
	Active         int                         `json:"active"`
	ByType         map[domain.AgentType]int    `json:"byType"`
	ByAvailability map[domain.Availability]int `json:"byAvailability"`
}

func AgentStats(agents []domain.Agent) AgentCounts {
	c := AgentCounts{
		Total:          len(agents),
		ByType:         countBy(agents, func(a domain.Agent) domain.AgentType { return a.AgentType }),
		ByAvailability: countBy(agents, func(a domain.Agent) domain.Availability { return a.Availability }),
	}
	for _, a := range agents {
		if a.IsActive {
			c.Active++
		}
	}
	return c
}

type TaskCounts struct {
	Total      int                     `json:"total"`
	ByStatus   map[domain.Status]int   `json:"byStatus"`
	ByPriority map[domain.Priority]int `json:"byPriority"`
	ByType     map[domain.TaskType]int `json:"byType"`
	Overdue    int                     `json:"overdue"`
	// CompletionRate is completed/total in percent, 0 for no tasks.
	CompletionRate int `json:"completionRate"`
}

func TaskStats(tasks []domain.TaskAssignment, now time.Time) TaskCounts {
	c := TaskCounts{
		Total:      len(tasks),
		ByStatus:   countBy(tasks, func(t domain.TaskAssignment) domain.Status { return t.Status }),
		ByPriority: countBy(tasks, func(t domain.TaskAssignment) domain.Priority { return t.Priority }),
		ByType:     countBy(tasks, func(t domain.TaskAssignment) domain.TaskType { return t.Type }),
	}
	for _, t := range tasks {
		if isOverdue(t, now) {
			c.Overdue++
		}
	}
	if c.Total > 0 {
		c.CompletionRate = c.ByStatus[domain.StatusCompleted] * 100 / c.Total
	}
	return c
}

type TicketCounts struct {
	Total      int                     `json:"total"`
	ByStatus   map[domain.Status]int   `json:"byStatus"`
	ByPriority map[domain.Priority]int `json:"byPriority"`
	// Open counts tickets not yet in a terminal or resolved state.
	Open       int `json:"open"`
	Unassigned int `json:"unassigned"`
}

func TicketStats(tickets []domain.Ticket) TicketCounts {
	c := TicketCounts{
		Total:      len(tickets),
		ByStatus:   countBy(tickets, func(t domain.Ticket) domain.Status { return t.Status }),
		ByPriority: countBy(tickets, func(t domain.Ticket) domain.Priority { return t.Priority }),
	}
	for _, t := range tickets {
		if t.Status != domain.StatusResolved && !lifecycle.IsTerminal(t.Status) {
			c.Open++
		}
		if t.AgentID == nil || *t.AgentID == "" {
			c.Unassigned++
		}
	}
	return c
}

type SessionCounts struct {
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"byStatus"`
	// ActualMinutes sums recorded durations of completed sessions.
	ActualMinutes    int `json:"actualMinutes"`
	AvgActualMinutes int `json:"avgActualMinutes"`
}

type SessionSummary struct {
	Cleaning    SessionCounts `json:"cleaning"`
	Maintenance SessionCounts `json:"maintenance"`
}

func SessionStats(cleaning []domain.CleaningSession, maintenance []domain.MaintenanceSession) SessionSummary {
	return SessionSummary{
		Cleaning: sessionCounts(cleaning, func(s domain.CleaningSession) (domain.Status, *int) {
			return s.Status, s.ActualDuration
		}),
		Maintenance: sessionCounts(maintenance, func(s domain.MaintenanceSession) (domain.Status, *int) {
			return s.Status, s.ActualDuration
		}),
	}
}

func sessionCounts[T any](items []T, fields func(T) (domain.Status, *int)) SessionCounts {
	c := SessionCounts{
		Total: len(items),
		ByStatus: countBy(items, func(it T) domain.Status {
			s, _ := fields(it)
			return s
		}),
	}
	timed := 0
	for _, it := range items {
		s, d := fields(it)
		if s == domain.StatusCompleted && d != nil {
			c.ActualMinutes += *d
			timed++
		}
	}
	if timed > 0 {
		c.AvgActualMinutes = c.ActualMinutes / timed
	}
	return c
}

func countBy[T any, K comparable](items []T, key func(T) K) map[K]int {
	out := make(map[K]int)
	for _, it := range items {
		out[key(it)]++
	}
	return out
}
