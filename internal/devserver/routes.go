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
	"fieldline/internal/session"
	"fieldline/internal/state"
)

func (s *Server) now() time.Time { return s.clock.Now().UTC() }

func requireManager(p session.Identity) error {
	if !p.IsManager() {
		return newAPIError(http.StatusForbidden, "forbidden", "manager role required")
	}
	return nil
}

// visible reports whether p may see work owned by agentID.
func visible(p session.Identity, agentID string) bool {
	return p.IsManager() || (p.AgentID != "" && p.AgentID == agentID)
}

// mutate loads id from coll, applies fn and stores the result.
func mutate[T domain.Entity](s *Server, coll *state.Collection[T], id string, fn func(T) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	cur, ok := coll.Get(id)
	if !ok {
		return zero, fmt.Errorf("%s: %w", id, errNotFound)
	}
	next, err := fn(cur)
	if err != nil {
		return zero, err
	}
	coll.Upsert(next)
	return next, nil
}

func insert[T domain.Entity](s *Server, coll *state.Collection[T], item T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll.Upsert(item)
	return item
}

func (s *Server) mine(p session.Identity) func(agentID string) bool {
	return func(agentID string) bool { return p.AgentID != "" && agentID == p.AgentID }
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := []T{}
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

type agentCreateInput struct {
	Body gateway.AgentInput
}

type agentUpdateInput struct {
	ID   string `path:"id"`
	Body gateway.AgentPatch
}

type profileInput struct {
	Body gateway.ProfilePatch
}

func (s *Server) registerAgents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/api/agents",
		Summary:     "List agents",
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Agent], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireManager(p); err != nil {
			return nil, handleError(err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return reply(orEmpty(s.data.Agents.All())), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-agent",
		Method:        http.MethodPost,
		Path:          "/api/agents",
		Summary:       "Create agent",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *agentCreateInput) (*output[domain.Agent], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireManager(p); err != nil {
			return nil, handleError(err)
		}
		b := in.Body
		if b.UserID == "" || b.AgentType == "" {
			return nil, handleError(errors.New("userId and agentType are required"))
		}
		if b.Availability == "" {
			b.Availability = domain.Offline
		}
		if !b.Availability.Valid() {
			return nil, handleError(fmt.Errorf("unknown availability %q", b.Availability))
		}
		now := s.now()
		a := domain.Agent{
			ID:             uuid.NewString(),
			UserID:         b.UserID,
			ManagerID:      b.ManagerID,
			AgentType:      b.AgentType,
			Availability:   b.Availability,
			Specialties:    b.Specialties,
			Certifications: b.Certifications,
			ServiceZones:   b.ServiceZones,
			WorkingHours:   b.WorkingHours,
			HourlyRate:     b.HourlyRate,
			IsActive:       b.IsActive == nil || *b.IsActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if a.ManagerID == "" {
			a.ManagerID = p.UserID
		}
		return reply(insert(s, &s.data.Agents, a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-agent",
		Method:      http.MethodPut,
		Path:        "/api/agents/{id}",
		Summary:     "Update agent",
	}, func(ctx context.Context, in *agentUpdateInput) (*output[domain.Agent], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireManager(p); err != nil {
			return nil, handleError(err)
		}
		a, err := mutate(s, &s.data.Agents, in.ID, func(a domain.Agent) (domain.Agent, error) {
			return applyAgentPatch(a, in.Body, s.now())
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-agent",
		Method:      http.MethodDelete,
		Path:        "/api/agents/{id}",
		Summary:     "Delete agent",
	}, func(ctx context.Context, in *idPath) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireManager(p); err != nil {
			return nil, handleError(err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, removed := s.data.Agents.Remove(in.ID); !removed {
			return nil, handleError(fmt.Errorf("%s: %w", in.ID, errNotFound))
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-profile",
		Method:      http.MethodGet,
		Path:        "/api/agents/my-profile",
		Summary:     "Current agent profile",
	}, func(ctx context.Context, _ *struct{}) (*output[domain.Agent], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.profileLocked(p)
		if !ok {
			return nil, handleError(fmt.Errorf("agent profile: %w", errNotFound))
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-my-profile",
		Method:      http.MethodPatch,
		Path:        "/api/agents/my-profile",
		Summary:     "Update current agent profile",
	}, func(ctx context.Context, in *profileInput) (*output[domain.Agent], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s.mu.Lock()
		a, ok := s.profileLocked(p)
		s.mu.Unlock()
		if !ok {
			return nil, handleError(fmt.Errorf("agent profile: %w", errNotFound))
		}
		a, err := mutate(s, &s.data.Agents, a.ID, func(a domain.Agent) (domain.Agent, error) {
			if v := in.Body.Availability; v != nil {
				if !v.Valid() {
					return a, fmt.Errorf("unknown availability %q", *v)
				}
				a.Availability = *v
			}
			if in.Body.CurrentLocation != nil {
				a.CurrentLocation = in.Body.CurrentLocation
			}
			if in.Body.ServiceZones != nil {
				a.ServiceZones = in.Body.ServiceZones
			}
			if in.Body.WorkingHours != nil {
				a.WorkingHours = in.Body.WorkingHours
			}
			a.UpdatedAt = s.now()
			return a, nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	registerMine(s, api, "my-tasks", &s.data.Tasks, func(t domain.TaskAssignment) string { return t.AgentID })
	registerMine(s, api, "my-cleaning-sessions", &s.data.Cleaning, func(c domain.CleaningSession) string { return c.AgentID })
	registerMine(s, api, "my-maintenance-sessions", &s.data.Maintenance, func(m domain.MaintenanceSession) string { return m.AgentID })
	registerMine(s, api, "my-tickets", &s.data.Tickets, func(t domain.Ticket) string { return deref(t.AgentID) })
	registerMine(s, api, "my-specialties", &s.data.Specialties, func(sp domain.AgentSpecialty) string { return sp.AgentID })
}

func registerMine[T domain.Entity](s *Server, api huma.API, name string, coll *state.Collection[T], owner func(T) string) {
	huma.Register(api, huma.Operation{
		OperationID: name,
		Method:      http.MethodGet,
		Path:        "/api/agents/" + name,
		Summary:     "List " + strings.ReplaceAll(strings.TrimPrefix(name, "my-"), "-", " ") + " of the current agent",
	}, func(ctx context.Context, _ *struct{}) (*output[[]T], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		mine := s.mine(p)
		s.mu.Lock()
		defer s.mu.Unlock()
		return reply(filter(coll.All(), func(it T) bool { return mine(owner(it)) })), nil
	})
}

func (s *Server) profileLocked(p session.Identity) (domain.Agent, bool) {
	for _, a := range s.data.Agents.All() {
		if (p.AgentID != "" && a.ID == p.AgentID) || (p.AgentID == "" && a.UserID == p.UserID) {
			return a, true
		}
	}
	return domain.Agent{}, false
}

func applyAgentPatch(a domain.Agent, b gateway.AgentPatch, now time.Time) (domain.Agent, error) {
	if b.ManagerID != nil {
		a.ManagerID = *b.ManagerID
	}
	if b.AgentType != nil {
		a.AgentType = *b.AgentType
	}
	if b.Availability != nil {
		if !b.Availability.Valid() {
			return a, fmt.Errorf("unknown availability %q", *b.Availability)
		}
		a.Availability = *b.Availability
	}
	if b.Specialties != nil {
		a.Specialties = b.Specialties
	}
	if b.Certifications != nil {
		a.Certifications = b.Certifications
	}
	if b.ServiceZones != nil {
		a.ServiceZones = b.ServiceZones
	}
	if b.WorkingHours != nil {
		a.WorkingHours = b.WorkingHours
	}
	if b.HourlyRate != nil {
		a.HourlyRate = *b.HourlyRate
	}
	if b.IsActive != nil {
		a.IsActive = *b.IsActive
	}
	a.UpdatedAt = now
	return a, nil
}

type specialtyCreateInput struct {
	Body gateway.SpecialtyInput
}

type specialtyUpdateInput struct {
	ID   string `path:"id"`
	Body gateway.SpecialtyPatch
}

func (s *Server) registerSpecialties(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-specialty",
		Method:        http.MethodPost,
		Path:          "/api/agent-specialties",
		Summary:       "Create agent specialty",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *specialtyCreateInput) (*output[domain.AgentSpecialty], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !visible(p, in.Body.AgentID) {
			return nil, handleError(fmt.Errorf("agent %s: %w", in.Body.AgentID, errNotFound))
		}
		if strings.TrimSpace(in.Body.Name) == "" {
			return nil, handleError(errors.New("name is required"))
		}
		sp := domain.AgentSpecialty{
			ID:        uuid.NewString(),
			AgentID:   in.Body.AgentID,
			Name:      in.Body.Name,
			Certified: in.Body.Certified,
			Level:     in.Body.Level,
			CreatedAt: s.now(),
		}
		return reply(insert(s, &s.data.Specialties, sp)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-specialty",
		Method:      http.MethodPatch,
		Path:        "/api/agent-specialties/{id}",
		Summary:     "Update agent specialty",
	}, func(ctx context.Context, in *specialtyUpdateInput) (*output[domain.AgentSpecialty], error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := mutate(s, &s.data.Specialties, in.ID, func(sp domain.AgentSpecialty) (domain.AgentSpecialty, error) {
			if !visible(p, sp.AgentID) {
				return sp, fmt.Errorf("%s: %w", sp.ID, errNotFound)
			}
			if in.Body.Name != nil {
				sp.Name = *in.Body.Name
			}
			if in.Body.Certified != nil {
				sp.Certified = *in.Body.Certified
			}
			if in.Body.Level != nil {
				sp.Level = *in.Body.Level
			}
			return sp, nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-specialty",
		Method:      http.MethodDelete,
		Path:        "/api/agent-specialties/{id}",
		Summary:     "Delete agent specialty",
	}, func(ctx context.Context, in *idPath) (*struct{}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		sp, ok := s.data.Specialties.Get(in.ID)
		if !ok || !visible(p, sp.AgentID) {
			return nil, handleError(fmt.Errorf("%s: %w", in.ID, errNotFound))
		}
		s.data.Specialties.Remove(in.ID)
		return nil, nil
	})
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
