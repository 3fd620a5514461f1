// Package workflow runs the guided cleaning flow: instructions, before
// photos, a timed cleaning phase, after photos, and completion of the
// underlying task or cleaning session.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"fieldline/internal/clock"
	"fieldline/internal/domain"
)

type Step string

const (
	StepInstructions Step = "instructions"
	StepBeforePhotos Step = "before_photos"
	StepCleaning     Step = "cleaning"
	StepAfterPhotos  Step = "after_photos"
	StepCompleted    Step = "completed"
)

var (
	ErrNoPhotos        = errors.New("not enough photos")
	ErrWrongStep       = errors.New("action not allowed in current step")
	ErrFlowActive      = errors.New("another cleaning flow is already open")
	ErrClosed          = errors.New("cleaning flow is closed")
	ErrUnsupportedKind = errors.New("guided flow only runs on tasks and cleaning sessions")
	ErrPhotoNotFound   = errors.New("photo not found")
)

// StepError reports an action attempted outside the step that allows it.
type StepError struct {
	Action string
	Step   Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s not allowed in step %s", e.Action, e.Step)
}

func (e *StepError) Unwrap() error { return ErrWrongStep }

// Target moves the entity behind a flow through its lifecycle.
type Target interface {
	Start(ctx context.Context, ref domain.WorkRef) error
	Complete(ctx context.Context, ref domain.WorkRef) error
}

type Options struct {
	Clock          clock.Clock
	SampleInterval time.Duration
	MinBefore      int
	MinAfter       int
	// OnSample receives each elapsed value computed while cleaning. It runs
	// on the sampler goroutine and must not call back into the workflow.
	OnSample func(elapsed time.Duration)
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = time.Second
	}
	if o.MinBefore < 1 {
		o.MinBefore = 1
	}
	if o.MinAfter < 1 {
		o.MinAfter = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Runner allows at most one open flow at a time.
type Runner struct {
	opts Options

	mu     sync.Mutex
	active *Workflow
}

func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts.withDefaults()}
}

// Open starts a flow for ref in the instructions step.
func (r *Runner) Open(ref domain.WorkRef, target Target) (*Workflow, error) {
	if ref.Kind != domain.KindTask && ref.Kind != domain.KindCleaning {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, ref.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrFlowActive, r.active.ref.Kind, r.active.ref.ID)
	}
	w := &Workflow{
		ref:    ref,
		target: target,
		opts:   r.opts,
		runner: r,
		step:   StepInstructions,
	}
	r.active = w
	r.opts.Logger.Info("cleaning flow opened", "kind", ref.Kind, "id", ref.ID)
	return w, nil
}

func (r *Runner) Active() (*Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != nil
}

func (r *Runner) release(w *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == w {
		r.active = nil
	}
}

type PhotoRef struct {
	ID      string    `json:"id"`
	URI     string    `json:"uri"`
	TakenAt time.Time `json:"takenAt"`
}

// Camera is the device camera. The flow only keeps the returned reference.
type Camera interface {
	Capture(ctx context.Context) (PhotoRef, error)
}

type CameraFunc func(ctx context.Context) (PhotoRef, error)

func (f CameraFunc) Capture(ctx context.Context) (PhotoRef, error) { return f(ctx) }

// View is a point-in-time copy of a flow for display.
type View struct {
	Ref       domain.WorkRef
	Step      Step
	Before    []PhotoRef
	After     []PhotoRef
	StartTime time.Time
	Elapsed   time.Duration
	Sampling  bool
	Closed    bool
}

// Workflow is one open flow. It is never cached nor sent to the service.
type Workflow struct {
	ref    domain.WorkRef
	target Target
	opts   Options
	runner *Runner

	// op serialises transitions so target calls run without holding mu.
	op sync.Mutex

	mu        sync.Mutex
	step      Step
	before    []PhotoRef
	after     []PhotoRef
	startTime time.Time
	elapsed   time.Duration
	sampler   *sampler
	closed    bool
}

func (w *Workflow) Ref() domain.WorkRef { return w.ref }

func (w *Workflow) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return View{
		Ref:       w.ref,
		Step:      w.step,
		Before:    slices.Clone(w.before),
		After:     slices.Clone(w.after),
		StartTime: w.startTime,
		Elapsed:   w.elapsed,
		Sampling:  w.sampler != nil,
		Closed:    w.closed,
	}
}

// Elapsed is the value last computed by the sampler, or the value frozen
// when cleaning finished.
func (w *Workflow) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

func (w *Workflow) Sampling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sampler != nil
}

// checkLocked requires an open flow in step. Callers hold mu.
func (w *Workflow) checkLocked(action string, step Step) error {
	if w.closed {
		return ErrClosed
	}
	if w.step != step {
		return &StepError{Action: action, Step: w.step}
	}
	return nil
}

// Next leaves the instructions screen.
func (w *Workflow) Next() error {
	w.op.Lock()
	defer w.op.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkLocked("next", StepInstructions); err != nil {
		return err
	}
	w.step = StepBeforePhotos
	return nil
}

func (w *Workflow) AddBeforePhoto(p PhotoRef) error {
	return w.addPhoto("add before photo", StepBeforePhotos, &w.before, p)
}

func (w *Workflow) AddAfterPhoto(p PhotoRef) error {
	return w.addPhoto("add after photo", StepAfterPhotos, &w.after, p)
}

func (w *Workflow) CaptureBefore(ctx context.Context, cam Camera) (PhotoRef, error) {
	return w.capture(ctx, cam, w.AddBeforePhoto)
}

func (w *Workflow) CaptureAfter(ctx context.Context, cam Camera) (PhotoRef, error) {
	return w.capture(ctx, cam, w.AddAfterPhoto)
}

func (w *Workflow) capture(ctx context.Context, cam Camera, add func(PhotoRef) error) (PhotoRef, error) {
	p, err := cam.Capture(ctx)
	if err != nil {
		return PhotoRef{}, fmt.Errorf("capture photo: %w", err)
	}
	if p.TakenAt.IsZero() {
		p.TakenAt = w.opts.Clock.Now()
	}
	if err := add(p); err != nil {
		return PhotoRef{}, err
	}
	return p, nil
}

func (w *Workflow) addPhoto(action string, step Step, list *[]PhotoRef, p PhotoRef) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkLocked(action, step); err != nil {
		return err
	}
	*list = append(*list, p)
	return nil
}

// RemovePhoto drops a photo from the list being collected in the current
// step.
func (w *Workflow) RemovePhoto(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	var list *[]PhotoRef
	switch w.step {
	case StepBeforePhotos:
		list = &w.before
	case StepAfterPhotos:
		list = &w.after
	default:
		return &StepError{Action: "remove photo", Step: w.step}
	}
	i := slices.IndexFunc(*list, func(p PhotoRef) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
	}
	*list = slices.Delete(*list, i, i+1)
	return nil
}

// StartCleaning starts the underlying entity and the elapsed-time sampler.
// The step stays before_photos if the guard or the target call fails.
func (w *Workflow) StartCleaning(ctx context.Context) error {
	w.op.Lock()
	defer w.op.Unlock()

	w.mu.Lock()
	if err := w.checkLocked("start cleaning", StepBeforePhotos); err != nil {
		w.mu.Unlock()
		return err
	}
	if len(w.before) < w.opts.MinBefore {
		n := len(w.before)
		w.mu.Unlock()
		return fmt.Errorf("%w: %d before photo(s), need %d", ErrNoPhotos, n, w.opts.MinBefore)
	}
	w.mu.Unlock()

	if err := w.target.Start(ctx, w.ref); err != nil {
		return fmt.Errorf("start %s %s: %w", w.ref.Kind, w.ref.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		// Abandoned while the start call was in flight.
		return ErrClosed
	}
	w.step = StepCleaning
	w.startTime = w.opts.Clock.Now()
	w.elapsed = 0
	w.sampler = startSampler(w.opts.Clock, w.opts.SampleInterval, w.sample)
	w.opts.Logger.Info("cleaning started", "kind", w.ref.Kind, "id", w.ref.ID)
	return nil
}

func (w *Workflow) sample(time.Time) {
	w.mu.Lock()
	if w.sampler == nil {
		w.mu.Unlock()
		return
	}
	w.elapsed = w.opts.Clock.Now().Sub(w.startTime)
	elapsed := w.elapsed
	w.mu.Unlock()
	if w.opts.OnSample != nil {
		w.opts.OnSample(elapsed)
	}
}

// FinishCleaning stops the sampler and moves to after_photos. The last
// sampled elapsed value is kept.
func (w *Workflow) FinishCleaning() error {
	w.op.Lock()
	defer w.op.Unlock()
	w.mu.Lock()
	if err := w.checkLocked("finish cleaning", StepCleaning); err != nil {
		w.mu.Unlock()
		return err
	}
	s := w.detachLocked()
	w.step = StepAfterPhotos
	w.mu.Unlock()
	s.stop()
	return nil
}

// Complete completes the underlying entity and closes the flow.
func (w *Workflow) Complete(ctx context.Context) error {
	w.op.Lock()
	defer w.op.Unlock()

	w.mu.Lock()
	if err := w.checkLocked("complete", StepAfterPhotos); err != nil {
		w.mu.Unlock()
		return err
	}
	if len(w.after) < w.opts.MinAfter {
		n := len(w.after)
		w.mu.Unlock()
		return fmt.Errorf("%w: %d after photo(s), need %d", ErrNoPhotos, n, w.opts.MinAfter)
	}
	w.mu.Unlock()

	if err := w.target.Complete(ctx, w.ref); err != nil {
		return fmt.Errorf("complete %s %s: %w", w.ref.Kind, w.ref.ID, err)
	}

	w.mu.Lock()
	w.step = StepCompleted
	w.closeLocked()
	w.mu.Unlock()
	w.runner.release(w)
	w.opts.Logger.Info("cleaning flow completed", "kind", w.ref.Kind, "id", w.ref.ID)
	return nil
}

// Abandon discards the flow from any step. Captured photos are lost and
// the underlying entity is left as it is. Safe to call more than once.
func (w *Workflow) Abandon() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	s := w.detachLocked()
	step := w.step
	w.closeLocked()
	w.mu.Unlock()

	s.stop()
	w.runner.release(w)
	w.opts.Logger.Info("cleaning flow abandoned", "kind", w.ref.Kind, "id", w.ref.ID, "step", step)
}

func (w *Workflow) detachLocked() *sampler {
	s := w.sampler
	w.sampler = nil
	return s
}

func (w *Workflow) closeLocked() {
	w.closed = true
	w.before = nil
	w.after = nil
}
