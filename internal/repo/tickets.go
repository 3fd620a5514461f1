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

type Tickets struct {
	core[domain.Ticket]
}

func (r *Tickets) ForProperty(propertyID string) []domain.Ticket {
	return r.where(func(t domain.Ticket) bool { return t.PropertyID == propertyID })
}

func (r *Tickets) Create(ctx context.Context, in gateway.TicketInput) (domain.Ticket, bool) {
	if _, ok := r.attempt(); !ok {
		return domain.Ticket{}, false
	}
	if strings.TrimSpace(in.Title) == "" || in.PropertyID == "" {
		r.fail("create", "", errors.New("ticket requires a property and a title"))
		return domain.Ticket{}, false
	}
	return r.send(ctx, "create", "", func(ctx context.Context) (domain.Ticket, error) {
		return r.d.Gateway.CreateTicket(ctx, in)
	})
}

// Update edits ticket fields. Status changes go through the same guards
// as the dedicated transitions.
func (r *Tickets) Update(ctx context.Context, id string, patch gateway.TicketPatch) (domain.Ticket, bool) {
	if patch.Status != nil {
		to := *patch.Status
		return r.transition(ctx, "update", id, to,
			func(t domain.Ticket) (domain.Ticket, error) {
				if patch.AgentID != nil {
					t.AgentID = patch.AgentID
				}
				if to == domain.StatusResolved && patch.Resolution != nil {
					return lifecycle.ResolveTicket(t, *patch.Resolution, r.d.Clock.Now())
				}
				return lifecycle.ApplyTicket(t, to, r.d.Clock.Now())
			},
			func(ctx context.Context, next domain.Ticket) (domain.Ticket, error) {
				return r.d.Gateway.UpdateTicket(ctx, id, withTimestamps(patch, next))
			})
	}
	if _, ok := r.attempt(); !ok {
		return domain.Ticket{}, false
	}
	return r.send(ctx, "update", id, func(ctx context.Context) (domain.Ticket, error) {
		return r.d.Gateway.UpdateTicket(ctx, id, patch)
	})
}

// Assign hands an open ticket to agentID.
func (r *Tickets) Assign(ctx context.Context, id, agentID string) (domain.Ticket, bool) {
	return r.transition(ctx, "assign", id, domain.StatusAssigned,
		func(t domain.Ticket) (domain.Ticket, error) {
			return lifecycle.AssignTicket(t, agentID, r.d.Clock.Now())
		},
		func(ctx context.Context, next domain.Ticket) (domain.Ticket, error) {
			return r.d.Gateway.UpdateTicket(ctx, id, withTimestamps(gateway.TicketPatch{AgentID: next.AgentID}, next))
		})
}

// Accept is the assigned agent taking the ticket into work.
func (r *Tickets) Accept(ctx context.Context, id string) (domain.Ticket, bool) {
	return r.transition(ctx, "accept", id, domain.StatusInProgress, r.guard(domain.StatusInProgress),
		func(ctx context.Context, _ domain.Ticket) (domain.Ticket, error) {
			return r.d.Gateway.AcceptTicket(ctx, id)
		})
}

func (r *Tickets) Resolve(ctx context.Context, id, resolution string) (domain.Ticket, bool) {
	return r.transition(ctx, "resolve", id, domain.StatusResolved,
		func(t domain.Ticket) (domain.Ticket, error) {
			if strings.TrimSpace(resolution) == "" {
				return t, errors.New("resolution is required")
			}
			return lifecycle.ResolveTicket(t, resolution, r.d.Clock.Now())
		},
		func(ctx context.Context, next domain.Ticket) (domain.Ticket, error) {
			return r.d.Gateway.UpdateTicket(ctx, id, withTimestamps(gateway.TicketPatch{Resolution: next.Resolution}, next))
		})
}

func (r *Tickets) Close(ctx context.Context, id string) (domain.Ticket, bool) {
	return r.setStatus(ctx, "close", id, domain.StatusClosed)
}

func (r *Tickets) Cancel(ctx context.Context, id string) (domain.Ticket, bool) {
	return r.setStatus(ctx, "cancel", id, domain.StatusCancelled)
}

func (r *Tickets) setStatus(ctx context.Context, op, id string, to domain.Status) (domain.Ticket, bool) {
	return r.transition(ctx, op, id, to, r.guard(to),
		func(ctx context.Context, next domain.Ticket) (domain.Ticket, error) {
			return r.d.Gateway.UpdateTicket(ctx, id, withTimestamps(gateway.TicketPatch{}, next))
		})
}

func (r *Tickets) guard(to domain.Status) func(domain.Ticket) (domain.Ticket, error) {
	return func(t domain.Ticket) (domain.Ticket, error) {
		return lifecycle.ApplyTicket(t, to, r.d.Clock.Now())
	}
}

func withTimestamps(p gateway.TicketPatch, next domain.Ticket) gateway.TicketPatch {
	p.Status = ptr(next.Status)
	p.AssignedAt, p.StartedAt = next.AssignedAt, next.StartedAt
	p.ResolvedAt, p.ClosedAt = next.ResolvedAt, next.ClosedAt
	return p
}

func (r *Tickets) Refresh(ctx context.Context) bool { return r.refresh(ctx, r.fetch) }

func (r *Tickets) Pull(ctx context.Context) error { return r.pull(ctx, r.fetch) }

func (r *Tickets) fetch(ctx context.Context, ident session.Identity) ([]domain.Ticket, error) {
	if ident.IsManager() {
		return r.coll.All(), nil
	}
	return r.d.Gateway.MyTickets(ctx)
}
