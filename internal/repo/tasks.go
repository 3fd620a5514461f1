package repo

import (
	"context"
	"errors"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/lifecycle"
	"fieldline/internal/session"
)

type Tasks struct {
	core[domain.TaskAssignment]
}

func (r *Tasks) ForProperty(propertyID string) []domain.TaskAssignment {
	return r.where(func(t domain.TaskAssignment) bool {
		return t.PropertyID != nil && *t.PropertyID == propertyID
	})
}

func (r *Tasks) ForAgent(agentID string) []domain.TaskAssignment {
	return r.where(func(t domain.TaskAssignment) bool { return t.AgentID == agentID })
}

func (r *Tasks) Create(ctx context.Context, in gateway.TaskInput) (domain.TaskAssignment, bool) {
	if _, ok := r.attempt(); !ok {
		return domain.TaskAssignment{}, false
	}
	draft := domain.TaskAssignment{
		CleaningSessionID:    in.CleaningSessionID,
		MaintenanceSessionID: in.MaintenanceSessionID,
		TicketID:             in.TicketID,
	}
	if err := draft.Validate(); err != nil {
		r.fail("create", "", err)
		return domain.TaskAssignment{}, false
	}
	if strings.TrimSpace(in.Title) == "" || in.AgentID == "" {
		r.fail("create", "", errors.New("task requires an agent and a title"))
		return domain.TaskAssignment{}, false
	}
	return r.send(ctx, "create", "", func(ctx context.Context) (domain.TaskAssignment, error) {
		return r.d.Gateway.CreateTask(ctx, in)
	})
}

// Update edits task fields. A status in the patch must be a legal move
// from the current one.
func (r *Tasks) Update(ctx context.Context, id string, patch gateway.TaskPatch) (domain.TaskAssignment, bool) {
	if patch.Status != nil {
		to := *patch.Status
		return r.transition(ctx, "update", id, to,
			func(t domain.TaskAssignment) (domain.TaskAssignment, error) {
				return lifecycle.ApplyTask(t, to, r.d.Clock.Now())
			},
			func(ctx context.Context, next domain.TaskAssignment) (domain.TaskAssignment, error) {
				patch.StartedAt, patch.CompletedAt = next.StartedAt, next.CompletedAt
				return r.d.Gateway.UpdateTask(ctx, id, patch)
			})
	}
	if _, ok := r.attempt(); !ok {
		return domain.TaskAssignment{}, false
	}
	return r.send(ctx, "update", id, func(ctx context.Context) (domain.TaskAssignment, error) {
		return r.d.Gateway.UpdateTask(ctx, id, patch)
	})
}

func (r *Tasks) Delete(ctx context.Context, id string) bool {
	if _, ok := r.attempt(); !ok {
		return false
	}
	return r.remove(ctx, "delete", id, func(ctx context.Context) error {
		return r.d.Gateway.DeleteTask(ctx, id)
	})
}

func (r *Tasks) Start(ctx context.Context, id string) (domain.TaskAssignment, bool) {
	return r.transition(ctx, "start", id, domain.StatusInProgress, r.guard(domain.StatusInProgress),
		func(ctx context.Context, _ domain.TaskAssignment) (domain.TaskAssignment, error) {
			return r.d.Gateway.StartTask(ctx, id)
		})
}

func (r *Tasks) Complete(ctx context.Context, id string) (domain.TaskAssignment, bool) {
	return r.transition(ctx, "complete", id, domain.StatusCompleted, r.guard(domain.StatusCompleted),
		func(ctx context.Context, _ domain.TaskAssignment) (domain.TaskAssignment, error) {
			return r.d.Gateway.CompleteTask(ctx, id)
		})
}

func (r *Tasks) Pause(ctx context.Context, id string) (domain.TaskAssignment, bool) {
	return r.setStatus(ctx, "pause", id, domain.StatusPaused)
}

func (r *Tasks) Resume(ctx context.Context, id string) (domain.TaskAssignment, bool) {
	return r.setStatus(ctx, "resume", id, domain.StatusInProgress)
}

func (r *Tasks) Cancel(ctx context.Context, id string) (domain.TaskAssignment, bool) {
	return r.setStatus(ctx, "cancel", id, domain.StatusCancelled)
}

func (r *Tasks) setStatus(ctx context.Context, op, id string, to domain.Status) (domain.TaskAssignment, bool) {
	return r.transition(ctx, op, id, to, r.guard(to),
		func(ctx context.Context, next domain.TaskAssignment) (domain.TaskAssignment, error) {
			return r.d.Gateway.UpdateTask(ctx, id, gateway.TaskPatch{
				Status:      &next.Status,
				StartedAt:   next.StartedAt,
				CompletedAt: next.CompletedAt,
			})
		})
}

func (r *Tasks) guard(to domain.Status) func(domain.TaskAssignment) (domain.TaskAssignment, error) {
	return func(t domain.TaskAssignment) (domain.TaskAssignment, error) {
		return lifecycle.ApplyTask(t, to, r.d.Clock.Now())
	}
}

func (r *Tasks) Refresh(ctx context.Context) bool { return r.refresh(ctx, r.fetch) }

func (r *Tasks) Pull(ctx context.Context) error { return r.pull(ctx, r.fetch) }

func (r *Tasks) fetch(ctx context.Context, ident session.Identity) ([]domain.TaskAssignment, error) {
	if ident.IsManager() {
		return r.coll.All(), nil
	}
	return r.d.Gateway.MyTasks(ctx)
}
