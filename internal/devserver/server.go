// Package devserver is an in-memory stand-in for the remote Agent/Task
// service. It speaks the same routes and session-cookie auth as the real
// service and applies the shared lifecycle rules, so the client stack can
// be exercised end to end without a backend.
package devserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fieldline/internal/clock"
	"fieldline/internal/domain"
	"fieldline/internal/lifecycle"
	"fieldline/internal/state"
)

var errNotFound = errors.New("not found")

type Config struct {
	Secret string
	Clock  clock.Clock
	Logger *slog.Logger
}

// Server holds the service data. All handlers serialise on mu.
type Server struct {
	secret string
	clock  clock.Clock
	logger *slog.Logger

	mu   sync.Mutex
	data *state.Store
}

// Seed is initial data loaded with Server.Seed. Seed files use the wire
// field names (see LoadSeed).
type Seed struct {
	Agents      []domain.Agent              `json:"agents"`
	Specialties []domain.AgentSpecialty     `json:"specialties"`
	Tasks       []domain.TaskAssignment     `json:"tasks"`
	Cleaning    []domain.CleaningSession    `json:"cleaningSessions"`
	Maintenance []domain.MaintenanceSession `json:"maintenanceSessions"`
	Tickets     []domain.Ticket             `json:"tickets"`
}

func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{secret: cfg.Secret, clock: cfg.Clock, logger: cfg.Logger, data: state.NewStore()}
}

// Seed replaces the server data.
func (s *Server) Seed(seed Seed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Agents.Replace(seed.Agents)
	s.data.Specialties.Replace(seed.Specialties)
	s.data.Tasks.Replace(seed.Tasks)
	s.data.Cleaning.Replace(seed.Cleaning)
	s.data.Maintenance.Replace(seed.Maintenance)
	s.data.Tickets.Replace(seed.Tickets)
}

// Snapshot returns a copy of the server data.
func (s *Server) Snapshot() Seed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Seed{
		Agents:      s.data.Agents.All(),
		Specialties: s.data.Specialties.All(),
		Tasks:       s.data.Tasks.All(),
		Cleaning:    s.data.Cleaning.All(),
		Maintenance: s.data.Maintenance.All(),
		Tickets:     s.data.Tickets.All(),
	}
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.authMiddleware)
	hcfg := huma.DefaultConfig("Fieldline dev service", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api)
	s.registerAgents(api)
	s.registerSpecialties(api)
	s.registerTasks(api)
	s.registerSessions(api)
	s.registerTickets(api)
	return router
}

type apiErrorBody struct {
	Code    string `json:"code" example:"conflict"`
	Message string `json:"message" example:"invalid task status transition assigned -> completed"`
}

// apiError is the error envelope returned by handlers.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error())
	}
	if errors.Is(err, errNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	}
	if errors.Is(err, domain.ErrMultipleLinks) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error())
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error")
	}
}

type output[T any] struct {
	Body T
}

func reply[T any](v T) *output[T] { return &output[T]{Body: v} }

type idPath struct {
	ID string `path:"id"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}
