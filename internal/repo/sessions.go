package repo

import (
	"context"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/lifecycle"
	"fieldline/internal/session"
)

type CleaningSessions struct {
	core[domain.CleaningSession]
}

func (r *CleaningSessions) ForProperty(propertyID string) []domain.CleaningSession {
	return r.where(func(s domain.CleaningSession) bool { return s.PropertyID == propertyID })
}

// Progress is recomputed on every call; it is never stored.
func (r *CleaningSessions) Progress(id string, now time.Time) (int, bool) {
	s, ok := r.coll.Get(id)
	if !ok {
		return 0, false
	}
	return lifecycle.ProgressWith(r.d.DefaultProgress, s.Status, s.StartTime, s.EstimatedDuration, now), true
}

func (r *CleaningSessions) Update(ctx context.Context, id string, patch gateway.SessionPatch) (domain.CleaningSession, bool) {
	if patch.Status != nil {
		return r.setStatus(ctx, "update", id, *patch.Status, patch)
	}
	if _, ok := r.attempt(); !ok {
		return domain.CleaningSession{}, false
	}
	return r.send(ctx, "update", id, func(ctx context.Context) (domain.CleaningSession, error) {
		return r.d.Gateway.UpdateCleaningSession(ctx, id, patch)
	})
}

func (r *CleaningSessions) Start(ctx context.Context, id string) (domain.CleaningSession, bool) {
	return r.transition(ctx, "start", id, domain.StatusInProgress, r.guard(domain.StatusInProgress),
		func(ctx context.Context, _ domain.CleaningSession) (domain.CleaningSession, error) {
			return r.d.Gateway.StartCleaningSession(ctx, id)
		})
}

func (r *CleaningSessions) Complete(ctx context.Context, id string) (domain.CleaningSession, bool) {
	return r.transition(ctx, "complete", id, domain.StatusCompleted, r.guard(domain.StatusCompleted),
		func(ctx context.Context, _ domain.CleaningSession) (domain.CleaningSession, error) {
			return r.d.Gateway.CompleteCleaningSession(ctx, id)
		})
}

func (r *CleaningSessions) Cancel(ctx context.Context, id string) (domain.CleaningSession, bool) {
	return r.setStatus(ctx, "cancel", id, domain.StatusCancelled, gateway.SessionPatch{})
}

func (r *CleaningSessions) setStatus(ctx context.Context, op, id string, to domain.Status, patch gateway.SessionPatch) (domain.CleaningSession, bool) {
	return r.transition(ctx, op, id, to, r.guard(to),
		func(ctx context.Context, next domain.CleaningSession) (domain.CleaningSession, error) {
			patch.Status = &next.Status
			patch.StartTime, patch.EndTime, patch.ActualDuration = next.StartTime, next.EndTime, next.ActualDuration
			return r.d.Gateway.UpdateCleaningSession(ctx, id, patch)
		})
}

func (r *CleaningSessions) guard(to domain.Status) func(domain.CleaningSession) (domain.CleaningSession, error) {
	return func(s domain.CleaningSession) (domain.CleaningSession, error) {
		return lifecycle.ApplyCleaning(s, to, r.d.Clock.Now())
	}
}

func (r *CleaningSessions) Refresh(ctx context.Context) bool { return r.refresh(ctx, r.fetch) }

func (r *CleaningSessions) Pull(ctx context.Context) error { return r.pull(ctx, r.fetch) }

func (r *CleaningSessions) fetch(ctx context.Context, ident session.Identity) ([]domain.CleaningSession, error) {
	if ident.IsManager() {
		return r.coll.All(), nil
	}
	return r.d.Gateway.MyCleaningSessions(ctx)
}

type MaintenanceSessions struct {
	core[domain.MaintenanceSession]
}

func (r *MaintenanceSessions) ForProperty(propertyID string) []domain.MaintenanceSession {
	return r.where(func(s domain.MaintenanceSession) bool { return s.PropertyID == propertyID })
}

func (r *MaintenanceSessions) ForTicket(ticketID string) []domain.MaintenanceSession {
	return r.where(func(s domain.MaintenanceSession) bool { return s.TicketID == ticketID })
}

func (r *MaintenanceSessions) Progress(id string, now time.Time) (int, bool) {
	s, ok := r.coll.Get(id)
	if !ok {
		return 0, false
	}
	return lifecycle.ProgressWith(r.d.DefaultProgress, s.Status, s.StartTime, s.EstimatedDuration, now), true
}

func (r *MaintenanceSessions) Update(ctx context.Context, id string, patch gateway.SessionPatch) (domain.MaintenanceSession, bool) {
	if patch.Status != nil {
		return r.setStatus(ctx, "update", id, *patch.Status, patch)
	}
	if _, ok := r.attempt(); !ok {
		return domain.MaintenanceSession{}, false
	}
	return r.send(ctx, "update", id, func(ctx context.Context) (domain.MaintenanceSession, error) {
		return r.d.Gateway.UpdateMaintenanceSession(ctx, id, patch)
	})
}

func (r *MaintenanceSessions) Start(ctx context.Context, id string) (domain.MaintenanceSession, bool) {
	return r.transition(ctx, "start", id, domain.StatusInProgress, r.guard(domain.StatusInProgress),
		func(ctx context.Context, _ domain.MaintenanceSession) (domain.MaintenanceSession, error) {
			return r.d.Gateway.StartMaintenanceSession(ctx, id)
		})
}

func (r *MaintenanceSessions) Complete(ctx context.Context, id string) (domain.MaintenanceSession, bool) {
	return r.transition(ctx, "complete", id, domain.StatusCompleted, r.guard(domain.StatusCompleted),
		func(ctx context.Context, _ domain.MaintenanceSession) (domain.MaintenanceSession, error) {
			return r.d.Gateway.CompleteMaintenanceSession(ctx, id)
		})
}

func (r *MaintenanceSessions) Cancel(ctx context.Context, id string) (domain.MaintenanceSession, bool) {
	return r.setStatus(ctx, "cancel", id, domain.StatusCancelled, gateway.SessionPatch{})
}

func (r *MaintenanceSessions) setStatus(ctx context.Context, op, id string, to domain.Status, patch gateway.SessionPatch) (domain.MaintenanceSession, bool) {
	return r.transition(ctx, op, id, to, r.guard(to),
		func(ctx context.Context, next domain.MaintenanceSession) (domain.MaintenanceSession, error) {
			patch.Status = &next.Status
			patch.StartTime, patch.EndTime, patch.ActualDuration = next.StartTime, next.EndTime, next.ActualDuration
			return r.d.Gateway.UpdateMaintenanceSession(ctx, id, patch)
		})
}

func (r *MaintenanceSessions) guard(to domain.Status) func(domain.MaintenanceSession) (domain.MaintenanceSession, error) {
	return func(s domain.MaintenanceSession) (domain.MaintenanceSession, error) {
		return lifecycle.ApplyMaintenance(s, to, r.d.Clock.Now())
	}
}

func (r *MaintenanceSessions) Refresh(ctx context.Context) bool { return r.refresh(ctx, r.fetch) }

func (r *MaintenanceSessions) Pull(ctx context.Context) error { return r.pull(ctx, r.fetch) }

func (r *MaintenanceSessions) fetch(ctx context.Context, ident session.Identity) ([]domain.MaintenanceSession, error) {
	if ident.IsManager() {
		return r.coll.All(), nil
	}
	return r.d.Gateway.MyMaintenanceSessions(ctx)
}
