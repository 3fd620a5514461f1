// Package gateway is the HTTP client for the remote Agent/Task service.
// It performs no retries and no request deduplication; callers decide
// what a failure means.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/session"
)

// CookieName is the session cookie the service authenticates.
const CookieName = "session"

// Client talks to the service. Token is used when Session holds no
// identity.
type Client struct {
	BaseURL    string
	Token      string
	Session    *session.Holder
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client without a request timeout.
func New(baseURL string, holder *session.Holder) *Client {
	return &Client{BaseURL: baseURL, Session: holder}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Agents

func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var resp []domain.Agent
	err := c.do(ctx, http.MethodGet, "api/agents", nil, &resp)
	return resp, err
}

func (c *Client) CreateAgent(ctx context.Context, in AgentInput) (domain.Agent, error) {
	var resp domain.Agent
	err := c.do(ctx, http.MethodPost, "api/agents", in, &resp)
	return resp, err
}

func (c *Client) UpdateAgent(ctx context.Context, id string, in AgentPatch) (domain.Agent, error) {
	var resp domain.Agent
	err := c.do(ctx, http.MethodPut, idPath("api/agents", id), in, &resp)
	return resp, err
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, idPath("api/agents", id), nil, nil)
}

func (c *Client) MyProfile(ctx context.Context) (domain.Agent, error) {
	var resp domain.Agent
	err := c.do(ctx, http.MethodGet, "api/agents/my-profile", nil, &resp)
	return resp, err
}

func (c *Client) UpdateMyProfile(ctx context.Context, in ProfilePatch) (domain.Agent, error) {
	var resp domain.Agent
	err := c.do(ctx, http.MethodPatch, "api/agents/my-profile", in, &resp)
	return resp, err
}

func (c *Client) MyTasks(ctx context.Context) ([]domain.TaskAssignment, error) {
	var resp []domain.TaskAssignment
	err := c.do(ctx, http.MethodGet, "api/agents/my-tasks", nil, &resp)
	return resp, err
}

func (c *Client) MyCleaningSessions(ctx context.Context) ([]domain.CleaningSession, error) {
	var resp []domain.CleaningSession
	err := c.do(ctx, http.MethodGet, "api/agents/my-cleaning-sessions", nil, &resp)
	return resp, err
}

func (c *Client) MyMaintenanceSessions(ctx context.Context) ([]domain.MaintenanceSession, error) {
	var resp []domain.MaintenanceSession
	err := c.do(ctx, http.MethodGet, "api/agents/my-maintenance-sessions", nil, &resp)
	return resp, err
}

func (c *Client) MyTickets(ctx context.Context) ([]domain.Ticket, error) {
	var resp []domain.Ticket
	err := c.do(ctx, http.MethodGet, "api/agents/my-tickets", nil, &resp)
	return resp, err
}

func (c *Client) MySpecialties(ctx context.Context) ([]domain.AgentSpecialty, error) {
	var resp []domain.AgentSpecialty
	err := c.do(ctx, http.MethodGet, "api/agents/my-specialties", nil, &resp)
	return resp, err
}

// Specialties

func (c *Client) CreateSpecialty(ctx context.Context, in SpecialtyInput) (domain.AgentSpecialty, error) {
	var resp domain.AgentSpecialty
	err := c.do(ctx, http.MethodPost, "api/agent-specialties", in, &resp)
	return resp, err
}

func (c *Client) UpdateSpecialty(ctx context.Context, id string, in SpecialtyPatch) (domain.AgentSpecialty, error) {
	var resp domain.AgentSpecialty
	err := c.do(ctx, http.MethodPatch, idPath("api/agent-specialties", id), in, &resp)
	return resp, err
}

func (c *Client) DeleteSpecialty(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, idPath("api/agent-specialties", id), nil, nil)
}

// Task assignments

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (domain.TaskAssignment, error) {
	var resp domain.TaskAssignment
	err := c.do(ctx, http.MethodPost, "api/task-assignments", in, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, in TaskPatch) (domain.TaskAssignment, error) {
	var resp domain.TaskAssignment
	err := c.do(ctx, http.MethodPatch, idPath("api/task-assignments", id), in, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, idPath("api/task-assignments", id), nil, nil)
}

func (c *Client) StartTask(ctx context.Context, id string) (domain.TaskAssignment, error) {
	var resp domain.TaskAssignment
	err := c.do(ctx, http.MethodPost, idPath("api/task-assignments", id)+"/start", nil, &resp)
	return resp, err
}

func (c *Client) CompleteTask(ctx context.Context, id string) (domain.TaskAssignment, error) {
	var resp domain.TaskAssignment
	err := c.do(ctx, http.MethodPost, idPath("api/task-assignments", id)+"/complete", nil, &resp)
	return resp, err
}

// Cleaning sessions

func (c *Client) UpdateCleaningSession(ctx context.Context, id string, in SessionPatch) (domain.CleaningSession, error) {
	var resp domain.CleaningSession
	err := c.do(ctx, http.MethodPatch, idPath("api/cleaning-sessions", id), in, &resp)
	return resp, err
}

func (c *Client) StartCleaningSession(ctx context.Context, id string) (domain.CleaningSession, error) {
	var resp domain.CleaningSession
	err := c.do(ctx, http.MethodPost, idPath("api/cleaning-sessions", id)+"/start", nil, &resp)
	return resp, err
}

func (c *Client) CompleteCleaningSession(ctx context.Context, id string) (domain.CleaningSession, error) {
	var resp domain.CleaningSession
	err := c.do(ctx, http.MethodPost, idPath("api/cleaning-sessions", id)+"/complete", nil, &resp)
	return resp, err
}

// Maintenance sessions

func (c *Client) UpdateMaintenanceSession(ctx context.Context, id string, in SessionPatch) (domain.MaintenanceSession, error) {
	var resp domain.MaintenanceSession
	err := c.do(ctx, http.MethodPatch, idPath("api/maintenance-sessions", id), in, &resp)
	return resp, err
}

func (c *Client) StartMaintenanceSession(ctx context.Context, id string) (domain.MaintenanceSession, error) {
	var resp domain.MaintenanceSession
	err := c.do(ctx, http.MethodPost, idPath("api/maintenance-sessions", id)+"/start", nil, &resp)
	return resp, err
}

func (c *Client) CompleteMaintenanceSession(ctx context.Context, id string) (domain.MaintenanceSession, error) {
	var resp domain.MaintenanceSession
	err := c.do(ctx, http.MethodPost, idPath("api/maintenance-sessions", id)+"/complete", nil, &resp)
	return resp, err
}

// Tickets

func (c *Client) CreateTicket(ctx context.Context, in TicketInput) (domain.Ticket, error) {
	var resp domain.Ticket
	err := c.do(ctx, http.MethodPost, "api/tickets", in, &resp)
	return resp, err
}

func (c *Client) UpdateTicket(ctx context.Context, id string, in TicketPatch) (domain.Ticket, error) {
	var resp domain.Ticket
	err := c.do(ctx, http.MethodPatch, idPath("api/tickets", id), in, &resp)
	return resp, err
}

func (c *Client) AcceptTicket(ctx context.Context, id string) (domain.Ticket, error) {
	var resp domain.Ticket
	err := c.do(ctx, http.MethodPost, idPath("api/tickets", id)+"/accept", nil, &resp)
	return resp, err
}

func (c *Client) token() string {
	if c.Session != nil {
		if id, ok := c.Session.Current(); ok {
			return id.Token
		}
	}
	return c.Token
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(b), Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
		}
	}
	return nil
}

// errorMessage pulls a human message out of an error body. Validation and
// authorization failures are not told apart.
func errorMessage(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		if nested, ok := fields["error"].(map[string]any); ok {
			fields = nested
		}
		for _, k := range []string{"detail", "message", "error", "title"} {
			if s, ok := fields[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}
	return strings.TrimSpace(string(body))
}

func idPath(collection, id string) string {
	return collection + "/" + url.PathEscape(id)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
