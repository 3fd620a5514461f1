package repo

import (
	"context"
	"fmt"

	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/session"
)

type Agents struct {
	core[domain.Agent]
}

// ByManager lists agents managed by managerID.
func (r *Agents) ByManager(managerID string) []domain.Agent {
	return r.where(func(a domain.Agent) bool { return a.ManagerID == managerID })
}

// Profile returns the signed-in agent's own record.
func (r *Agents) Profile() (domain.Agent, bool) {
	ident, ok := r.d.Session.Current()
	if !ok {
		return domain.Agent{}, false
	}
	for _, a := range r.coll.All() {
		if (ident.AgentID != "" && a.ID == ident.AgentID) || (ident.AgentID == "" && a.UserID == ident.UserID) {
			return a, true
		}
	}
	return domain.Agent{}, false
}

func (r *Agents) Create(ctx context.Context, in gateway.AgentInput) (domain.Agent, bool) {
	if _, ok := r.attempt(); !ok {
		return domain.Agent{}, false
	}
	if in.Availability != "" && !in.Availability.Valid() {
		r.fail("create", "", fmt.Errorf("unknown availability %q", in.Availability))
		return domain.Agent{}, false
	}
	return r.send(ctx, "create", "", func(ctx context.Context) (domain.Agent, error) {
		return r.d.Gateway.CreateAgent(ctx, in)
	})
}

func (r *Agents) Update(ctx context.Context, id string, patch gateway.AgentPatch) (domain.Agent, bool) {
	if _, ok := r.attempt(); !ok {
		return domain.Agent{}, false
	}
	if patch.Availability != nil && !patch.Availability.Valid() {
		r.fail("update", id, fmt.Errorf("unknown availability %q", *patch.Availability))
		return domain.Agent{}, false
	}
	return r.send(ctx, "update", id, func(ctx context.Context) (domain.Agent, error) {
		return r.d.Gateway.UpdateAgent(ctx, id, patch)
	})
}

func (r *Agents) Delete(ctx context.Context, id string) bool {
	if _, ok := r.attempt(); !ok {
		return false
	}
	return r.remove(ctx, "delete", id, func(ctx context.Context) error {
		return r.d.Gateway.DeleteAgent(ctx, id)
	})
}

func (r *Agents) UpdateProfile(ctx context.Context, patch gateway.ProfilePatch) (domain.Agent, bool) {
	if _, ok := r.attempt(); !ok {
		return domain.Agent{}, false
	}
	if patch.Availability != nil && !patch.Availability.Valid() {
		r.fail("update_profile", "", fmt.Errorf("unknown availability %q", *patch.Availability))
		return domain.Agent{}, false
	}
	if l := patch.CurrentLocation; l != nil && (l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180) {
		r.fail("update_profile", "", fmt.Errorf("location out of range: %v,%v", l.Lat, l.Lon))
		return domain.Agent{}, false
	}
	return r.send(ctx, "update_profile", "", func(ctx context.Context) (domain.Agent, error) {
		return r.d.Gateway.UpdateMyProfile(ctx, patch)
	})
}

func (r *Agents) SetAvailability(ctx context.Context, a domain.Availability) (domain.Agent, bool) {
	return r.UpdateProfile(ctx, gateway.ProfilePatch{Availability: &a})
}

// UpdateLocation reports the device position, stamped with the clock.
func (r *Agents) UpdateLocation(ctx context.Context, lat, lon float64) (domain.Agent, bool) {
	loc := domain.GeoLocation{Lat: lat, Lon: lon, CapturedAt: r.d.Clock.Now().UTC()}
	return r.UpdateProfile(ctx, gateway.ProfilePatch{CurrentLocation: &loc})
}

// Refresh reloads agents from the service.
func (r *Agents) Refresh(ctx context.Context) bool { return r.refresh(ctx, r.fetch) }

func (r *Agents) Pull(ctx context.Context) error { return r.pull(ctx, r.fetch) }

// Managers see every agent they own; agents only see their own profile.
func (r *Agents) fetch(ctx context.Context, ident session.Identity) ([]domain.Agent, error) {
	if ident.IsManager() {
		return r.d.Gateway.ListAgents(ctx)
	}
	p, err := r.d.Gateway.MyProfile(ctx)
	if err != nil {
		return nil, err
	}
	return []domain.Agent{p}, nil
}
