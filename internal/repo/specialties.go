package repo

import (
	"context"
	"errors"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/session"
)

type Specialties struct {
	core[domain.AgentSpecialty]
}

func (r *Specialties) ForAgent(agentID string) []domain.AgentSpecialty {
	return r.where(func(s domain.AgentSpecialty) bool { return s.AgentID == agentID })
}

func (r *Specialties) Create(ctx context.Context, in gateway.SpecialtyInput) (domain.AgentSpecialty, bool) {
	ident, ok := r.attempt()
	if !ok {
		return domain.AgentSpecialty{}, false
	}
	if in.AgentID == "" {
		in.AgentID = ident.AgentID
	}
	if strings.TrimSpace(in.Name) == "" || in.AgentID == "" {
		r.fail("create", "", errors.New("specialty requires an agent and a name"))
		return domain.AgentSpecialty{}, false
	}
	return r.send(ctx, "create", "", func(ctx context.Context) (domain.AgentSpecialty, error) {
		return r.d.Gateway.CreateSpecialty(ctx, in)
	})
}

func (r *Specialties) Update(ctx context.Context, id string, patch gateway.SpecialtyPatch) (domain.AgentSpecialty, bool) {
	if _, ok := r.attempt(); !ok {
		return domain.AgentSpecialty{}, false
	}
	return r.send(ctx, "update", id, func(ctx context.Context) (domain.AgentSpecialty, error) {
		return r.d.Gateway.UpdateSpecialty(ctx, id, patch)
	})
}

func (r *Specialties) Delete(ctx context.Context, id string) bool {
	if _, ok := r.attempt(); !ok {
		return false
	}
	return r.remove(ctx, "delete", id, func(ctx context.Context) error {
		return r.d.Gateway.DeleteSpecialty(ctx, id)
	})
}

func (r *Specialties) Refresh(ctx context.Context) bool { return r.refresh(ctx, r.fetch) }

func (r *Specialties) Pull(ctx context.Context) error { return r.pull(ctx, r.fetch) }

// The service only exposes the signed-in agent's specialties; managers
// keep whatever was cached.
func (r *Specialties) fetch(ctx context.Context, ident session.Identity) ([]domain.AgentSpecialty, error) {
	if ident.IsManager() {
		return r.coll.All(), nil
	}
	return r.d.Gateway.MySpecialties(ctx)
}
