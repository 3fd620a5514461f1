package workflow

import (
	"context"
	"errors"
	"fmt"

	"fieldline/internal/domain"
	"fieldline/internal/repo"
	"fieldline/internal/state"
)

// ErrNotApplied is returned when a repository declined a transition
// without recording an error, which only happens with no signed-in
// identity.
var ErrNotApplied = errors.New("transition not applied")

// Repos drives tasks and cleaning sessions through their repositories.
type Repos struct {
	Tasks    *repo.Tasks
	Cleaning *repo.CleaningSessions
	Store    *state.Store
}

func (r Repos) Start(ctx context.Context, ref domain.WorkRef) error {
	switch ref.Kind {
	case domain.KindTask:
		_, ok := r.Tasks.Start(ctx, ref.ID)
		return r.result(ok)
	case domain.KindCleaning:
		_, ok := r.Cleaning.Start(ctx, ref.ID)
		return r.result(ok)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedKind, ref.Kind)
}

func (r Repos) Complete(ctx context.Context, ref domain.WorkRef) error {
	switch ref.Kind {
	case domain.KindTask:
		_, ok := r.Tasks.Complete(ctx, ref.ID)
		return r.result(ok)
	case domain.KindCleaning:
		_, ok := r.Cleaning.Complete(ctx, ref.ID)
		return r.result(ok)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedKind, ref.Kind)
}

func (r Repos) result(ok bool) error {
	if ok {
		return nil
	}
	if err := r.Store.Err(); err != nil {
		return err
	}
	return ErrNotApplied
}
