// Package lifecycle encodes the status graph shared by tasks, sessions and
// tickets, the side effects each transition carries, and the derived
// progress of running sessions.
package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"fieldline/internal/domain"
)

var ErrTerminal = errors.New("status is terminal")

// TransitionError reports a move the graph does not allow.
type TransitionError struct {
	Kind domain.Kind
	From domain.Status
	To   domain.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Kind, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	if IsTerminal(e.From) {
		return ErrTerminal
	}
	return nil
}

// IsTerminal reports statuses with no outgoing transitions.
func IsTerminal(s domain.Status) bool {
	switch s {
	case domain.StatusCompleted, domain.StatusCancelled, domain.StatusClosed:
		return true
	}
	return false
}

// EnsureTransition returns a *TransitionError when kind cannot move from
// one status to the other.
func EnsureTransition(kind domain.Kind, from, to domain.Status) error {
	var ok bool
	switch kind {
	case domain.KindTask:
		ok = taskTransition(from, to)
	case domain.KindCleaning, domain.KindMaintenance:
		ok = sessionTransition(from, to)
	case domain.KindTicket:
		ok = ticketTransition(from, to)
	}
	if !ok {
		return &TransitionError{Kind: kind, From: from, To: to}
	}
	return nil
}

func taskTransition(from, to domain.Status) bool {
	switch from {
	case domain.StatusAssigned:
		return to == domain.StatusInProgress || to == domain.StatusCancelled
	case domain.StatusInProgress:
		return to == domain.StatusCompleted || to == domain.StatusPaused || to == domain.StatusCancelled
	case domain.StatusPaused:
		return to == domain.StatusInProgress
	}
	return false
}

func sessionTransition(from, to domain.Status) bool {
	switch from {
	case domain.StatusPlanned:
		return to == domain.StatusInProgress || to == domain.StatusCancelled
	case domain.StatusInProgress:
		return to == domain.StatusCompleted || to == domain.StatusCancelled
	}
	return false
}

func ticketTransition(from, to domain.Status) bool {
	switch from {
	case domain.StatusOpen:
		return to == domain.StatusAssigned || to == domain.StatusCancelled
	case domain.StatusAssigned:
		return to == domain.StatusInProgress || to == domain.StatusResolved || to == domain.StatusCancelled
	case domain.StatusInProgress:
		return to == domain.StatusResolved || to == domain.StatusCancelled
	case domain.StatusResolved:
		return to == domain.StatusClosed
	}
	return false
}

// ApplyTask moves t to status `to`. A resumed task keeps its first
// startedAt.
func ApplyTask(t domain.TaskAssignment, to domain.Status, now time.Time) (domain.TaskAssignment, error) {
	if err := EnsureTransition(domain.KindTask, t.Status, to); err != nil {
		return t, err
	}
	t.Status = to
	switch to {
	case domain.StatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = timePtr(now)
		}
	case domain.StatusCompleted:
		t.CompletedAt = timePtr(now)
	}
	t.UpdatedAt = now
	return t, nil
}

func ApplyCleaning(s domain.CleaningSession, to domain.Status, now time.Time) (domain.CleaningSession, error) {
	if err := EnsureTransition(domain.KindCleaning, s.Status, to); err != nil {
		return s, err
	}
	s.Status = to
	applySession(&s.StartTime, &s.EndTime, &s.ActualDuration, to, now)
	s.UpdatedAt = now
	return s, nil
}

func ApplyMaintenance(s domain.MaintenanceSession, to domain.Status, now time.Time) (domain.MaintenanceSession, error) {
	if err := EnsureTransition(domain.KindMaintenance, s.Status, to); err != nil {
		return s, err
	}
	s.Status = to
	applySession(&s.StartTime, &s.EndTime, &s.ActualDuration, to, now)
	s.UpdatedAt = now
	return s, nil
}

func applySession(start, end **time.Time, actual **int, to domain.Status, now time.Time) {
	switch to {
	case domain.StatusInProgress:
		if *start == nil {
			*start = timePtr(now)
		}
	case domain.StatusCompleted:
		*end = timePtr(now)
		if *start != nil {
			mins := int(math.Round(now.Sub(**start).Minutes()))
			*actual = &mins
		}
	}
}

// AssignTicket hands an open ticket to an agent.
func AssignTicket(t domain.Ticket, agentID string, now time.Time) (domain.Ticket, error) {
	if agentID == "" {
		return t, errors.New("ticket assignment requires an agent")
	}
	if err := EnsureTransition(domain.KindTicket, t.Status, domain.StatusAssigned); err != nil {
		return t, err
	}
	t.Status = domain.StatusAssigned
	t.AgentID = &agentID
	t.AssignedAt = timePtr(now)
	t.UpdatedAt = now
	return t, nil
}

// ResolveTicket records the resolution text with the transition.
func ResolveTicket(t domain.Ticket, resolution string, now time.Time) (domain.Ticket, error) {
	t, err := ApplyTicket(t, domain.StatusResolved, now)
	if err != nil {
		return t, err
	}
	t.Resolution = &resolution
	return t, nil
}

// ApplyTicket covers every ticket move except assignment, which needs an
// agent (see AssignTicket).
func ApplyTicket(t domain.Ticket, to domain.Status, now time.Time) (domain.Ticket, error) {
	if to == domain.StatusAssigned {
		if t.AgentID == nil {
			return t, errors.New("ticket assignment requires an agent")
		}
		return AssignTicket(t, *t.AgentID, now)
	}
	if err := EnsureTransition(domain.KindTicket, t.Status, to); err != nil {
		return t, err
	}
	t.Status = to
	switch to {
	case domain.StatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = timePtr(now)
		}
	case domain.StatusResolved:
		t.ResolvedAt = timePtr(now)
	case domain.StatusClosed:
		t.ClosedAt = timePtr(now)
	}
	t.UpdatedAt = now
	return t, nil
}

// DefaultProgress is reported for running sessions whose start or
// estimate is unknown.
const DefaultProgress = 25

// Progress derives completion percent for a session at now.
func Progress(status domain.Status, start *time.Time, estimatedMinutes int, now time.Time) int {
	return ProgressWith(DefaultProgress, status, start, estimatedMinutes, now)
}

// ProgressWith is Progress with a configurable fallback for running
// sessions.
func ProgressWith(fallback int, status domain.Status, start *time.Time, estimatedMinutes int, now time.Time) int {
	switch status {
	case domain.StatusCompleted:
		return 100
	case domain.StatusInProgress:
		if start == nil || estimatedMinutes <= 0 {
			return fallback
		}
		pct := int(math.Round(now.Sub(*start).Minutes() / float64(estimatedMinutes) * 100))
		return min(95, max(5, pct))
	}
	return 0
}

func CleaningProgress(s domain.CleaningSession, now time.Time) int {
	return Progress(s.Status, s.StartTime, s.EstimatedDuration, now)
}

func MaintenanceProgress(s domain.MaintenanceSession, now time.Time) int {
	return Progress(s.Status, s.StartTime, s.EstimatedDuration, now)
}

func timePtr(t time.Time) *time.Time { return &t }
