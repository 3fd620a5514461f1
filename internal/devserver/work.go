package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/lifecycle"
	"fieldline/internal/session"
	"fieldline/internal/state"
)

type taskCreateInput struct {
	Body gateway.TaskInput
}

type taskUpdateInput struct {
	ID   string `path:"id"`
	Body gateway.TaskPatch
}

type sessionUpdateInput struct {
	ID   string `path:"id"`
	Body gateway.SessionPatch
}

type ticketCreateInput struct {
	Body gateway.TicketInput
}

type ticketUpdateInput struct {
	ID   string `path:"id"`
	Body gateway.TicketPatch
}

func (s *Server) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/api/task-assignments",
		Summary:       "Create task assignment",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *taskCreateInput) (*output[domain.TaskAssignment], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := in.Body
		if !visible(p, b.AgentID) {
			return nil, handleError(fmt.Errorf("agent %s: %w", b.AgentID, errNotFound))
		}
		if strings.TrimSpace(b.Title) == "" {
			return nil, handleError(errors.New("title is required"))
		}
		now := s.now()
		t := domain.TaskAssignment{
			ID:                   uuid.NewString(),
			AgentID:              b.AgentID,
			Title:                b.Title,
			Description:          b.Description,
			Type:                 b.Type,
			Priority:             b.Priority,
			Status:               domain.StatusAssigned,
			EstimatedDuration:    b.EstimatedDuration,
			Notes:                b.Notes,
			DueDate:              b.DueDate,
			AssignedAt:           &now,
			PropertyID:           b.PropertyID,
			ReservationID:        b.ReservationID,
			CleaningSessionID:    b.CleaningSessionID,
			MaintenanceSessionID: b.MaintenanceSessionID,
			TicketID:             b.TicketID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if t.Type == "" {
			t.Type = domain.TaskOther
		}
		if t.Priority == "" {
			t.Priority = domain.PriorityMedium
		}
		if err := t.Validate(); err != nil {
			return nil, handleError(err)
		}
		return reply(insert(s, &s.data.Tasks, t)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/api/task-assignments/{id}",
		Summary:     "Update task assignment",
	}, func(ctx context.Context, in *taskUpdateInput) (*output[domain.TaskAssignment], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := mutate(s, &s.data.Tasks, in.ID, func(t domain.TaskAssignment) (domain.TaskAssignment, error) {
			if !visible(p, t.AgentID) {
				return t, fmt.Errorf("%s: %w", t.ID, errNotFound)
			}
			return applyTaskPatch(t, in.Body, s.now())
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/api/task-assignments/{id}",
		Summary:     "Delete task assignment",
	}, func(ctx context.Context, in *idPath) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		t, ok := s.data.Tasks.Get(in.ID)
		if !ok || !visible(p, t.AgentID) {
			return nil, handleError(fmt.Errorf("%s: %w", in.ID, errNotFound))
		}
		s.data.Tasks.Remove(in.ID)
		return nil, nil
	})

	for _, action := range []struct {
		name string
		to   domain.Status
	}{{"start", domain.StatusInProgress}, {"complete", domain.StatusCompleted}} {
		huma.Register(api, huma.Operation{
			OperationID: action.name + "-task",
			Method:      http.MethodPost,
			Path:        "/api/task-assignments/{id}/" + action.name,
			Summary:     strings.ToUpper(action.name[:1]) + action.name[1:] + " task assignment",
		}, func(ctx context.Context, in *idPath) (*output[domain.TaskAssignment], error) {
			p, authErr := principalFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			t, err := mutate(s, &s.data.Tasks, in.ID, func(t domain.TaskAssignment) (domain.TaskAssignment, error) {
				if !visible(p, t.AgentID) {
					return t, fmt.Errorf("%s: %w", t.ID, errNotFound)
				}
				return lifecycle.ApplyTask(t, action.to, s.now())
			})
			if err != nil {
				return nil, handleError(err)
			}
			return reply(t), nil
		})
	}
}

func applyTaskPatch(t domain.TaskAssignment, b gateway.TaskPatch, now time.Time) (domain.TaskAssignment, error) {
	if b.Title != nil {
		t.Title = *b.Title
	}
	if b.Description != nil {
		t.Description = *b.Description
	}
	if b.Priority != nil {
		t.Priority = *b.Priority
	}
	if b.EstimatedDuration != nil {
		t.EstimatedDuration = *b.EstimatedDuration
	}
	if b.Notes != nil {
		t.Notes = *b.Notes
	}
	if b.DueDate != nil {
		t.DueDate = b.DueDate
	}
	t.UpdatedAt = now
	if b.Status != nil && *b.Status != t.Status {
		return lifecycle.ApplyTask(t, *b.Status, now)
	}
	return t, nil
}

func (s *Server) registerSessions(api huma.API) {
	registerSession(s, api, "cleaning", &s.data.Cleaning,
		func(c domain.CleaningSession) string { return c.AgentID },
		lifecycle.ApplyCleaning,
		func(c *domain.CleaningSession) *string { return &c.Notes })
	registerSession(s, api, "maintenance", &s.data.Maintenance,
		func(m domain.MaintenanceSession) string { return m.AgentID },
		lifecycle.ApplyMaintenance,
		func(m *domain.MaintenanceSession) *string { return &m.Notes })
}

// registerSession wires PATCH, start and complete for one session kind.
func registerSession[T domain.Entity](
	s *Server, api huma.API, kind string, coll *state.Collection[T],
	owner func(T) string,
	apply func(T, domain.Status, time.Time) (T, error),
	notes func(*T) *string,
) {
	base := "/api/" + kind + "-sessions/{id}"
	load := func(p session.Identity, id string, fn func(T) (T, error)) (T, error) {
		return mutate(s, coll, id, func(cur T) (T, error) {
			if !visible(p, owner(cur)) {
				return cur, fmt.Errorf("%s: %w", id, errNotFound)
			}
			return fn(cur)
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "update-" + kind + "-session",
		Method:      http.MethodPatch,
		Path:        base,
		Summary:     "Update " + kind + " session",
	}, func(ctx context.Context, in *sessionUpdateInput) (*output[T], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := load(p, in.ID, func(cur T) (T, error) {
			if in.Body.Notes != nil {
				*notes(&cur) = *in.Body.Notes
			}
			if in.Body.Status != nil {
				return apply(cur, *in.Body.Status, s.now())
			}
			return cur, nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(out), nil
	})

	for _, action := range []struct {
		name string
		to   domain.Status
	}{{"start", domain.StatusInProgress}, {"complete", domain.StatusCompleted}} {
		huma.Register(api, huma.Operation{
			OperationID: action.name + "-" + kind + "-session",
			Method:      http.MethodPost,
			Path:        base + "/" + action.name,
			Summary:     strings.ToUpper(action.name[:1]) + action.name[1:] + " " + kind + " session",
		}, func(ctx context.Context, in *idPath) (*output[T], error) {
			p, authErr := principalFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			out, err := load(p, in.ID, func(cur T) (T, error) {
				return apply(cur, action.to, s.now())
			})
			if err != nil {
				return nil, handleError(err)
			}
			return reply(out), nil
		})
	}
}

func (s *Server) registerTickets(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/api/tickets",
		Summary:       "Report ticket",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *ticketCreateInput) (*output[domain.Ticket], error) {
		if _, authErr := principalFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		b := in.Body
		if b.PropertyID == "" || strings.TrimSpace(b.Title) == "" {
			return nil, handleError(errors.New("propertyId and title are required"))
		}
		now := s.now()
		t := domain.Ticket{
			ID:          uuid.NewString(),
			PropertyID:  b.PropertyID,
			Title:       b.Title,
			Description: b.Description,
			Category:    b.Category,
			Status:      domain.StatusOpen,
			Priority:    b.Priority,
			ReportedAt:  now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if t.Priority == "" {
			t.Priority = domain.PriorityMedium
		}
		return reply(insert(s, &s.data.Tickets, t)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-ticket",
		Method:      http.MethodPatch,
		Path:        "/api/tickets/{id}",
		Summary:     "Update ticket",
	}, func(ctx context.Context, in *ticketUpdateInput) (*output[domain.Ticket], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := mutate(s, &s.data.Tickets, in.ID, func(t domain.Ticket) (domain.Ticket, error) {
			if !visible(p, deref(t.AgentID)) {
				return t, fmt.Errorf("%s: %w", t.ID, errNotFound)
			}
			return applyTicketPatch(p, t, in.Body, s.now())
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-ticket",
		Method:      http.MethodPost,
		Path:        "/api/tickets/{id}/accept",
		Summary:     "Accept assigned ticket",
	}, func(ctx context.Context, in *idPath) (*output[domain.Ticket], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := mutate(s, &s.data.Tickets, in.ID, func(t domain.Ticket) (domain.Ticket, error) {
			if !visible(p, deref(t.AgentID)) {
				return t, fmt.Errorf("%s: %w", t.ID, errNotFound)
			}
			return lifecycle.ApplyTicket(t, domain.StatusInProgress, s.now())
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})
}

func applyTicketPatch(p session.Identity, t domain.Ticket, b gateway.TicketPatch, now time.Time) (domain.Ticket, error) {
	if b.Title != nil {
		t.Title = *b.Title
	}
	if b.Description != nil {
		t.Description = *b.Description
	}
	if b.Priority != nil {
		t.Priority = *b.Priority
	}
	if b.AgentID != nil && deref(t.AgentID) != *b.AgentID {
		if err := requireManager(p); err != nil {
			return t, err
		}
		if b.Status == nil || *b.Status != domain.StatusAssigned {
			t.AgentID = b.AgentID
		}
	}
	t.UpdatedAt = now
	if b.Status == nil || *b.Status == t.Status {
		return t, nil
	}
	switch *b.Status {
	case domain.StatusAssigned:
		if b.AgentID == nil {
			return t, errors.New("agentId is required to assign a ticket")
		}
		return lifecycle.AssignTicket(t, *b.AgentID, now)
	case domain.StatusResolved:
		if b.Resolution == nil || strings.TrimSpace(*b.Resolution) == "" {
			return t, errors.New("resolution is required")
		}
		return lifecycle.ResolveTicket(t, *b.Resolution, now)
	}
	return lifecycle.ApplyTicket(t, *b.Status, now)
}
