package domain

import (
	"errors"
	"time"
)

// Entity is anything held in a cached collection.
type Entity interface {
	EntityID() string
}

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// GeoLocation is a position fix reported by an agent device.
type GeoLocation struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ShiftWindow is one recurring working-hours slot, Start/End as "15:04".
type ShiftWindow struct {
	Day   time.Weekday `json:"day"`
	Start string       `json:"start"`
	End   string       `json:"end"`
}

type Agent struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	User            *UserRef      `json:"user,omitempty"`
	ManagerID       string        `json:"managerId"`
	AgentType       AgentType     `json:"agentType"`
	Availability    Availability  `json:"availability"`
	Specialties     []string      `json:"specialties,omitempty"`
	Certifications  []string      `json:"certifications,omitempty"`
	ServiceZones    []string      `json:"serviceZones,omitempty"`
	CurrentLocation *GeoLocation  `json:"currentLocation,omitempty"`
	WorkingHours    []ShiftWindow `json:"workingHours,omitempty"`
	HourlyRate      float64       `json:"hourlyRate"`
	IsActive        bool          `json:"isActive"`
	CompletedTasks  int           `json:"completedTasks"`
	AverageRating   float64       `json:"averageRating"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (a Agent) EntityID() string { return a.ID }

// DisplayName falls back to the user id when no name is known.
func (a Agent) DisplayName() string {
	if a.User != nil && a.User.Name != "" {
		return a.User.Name
	}
	return a.UserID
}

type AgentSpecialty struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Name      string    `json:"name"`
	Certified bool      `json:"certified"`
	Level     string    `json:"level,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s AgentSpecialty) EntityID() string { return s.ID }

type TaskAssignment struct {
	ID                   string     `json:"id"`
	AgentID              string     `json:"agentId"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Type                 TaskType   `json:"type"`
	Priority             Priority   `json:"priority"`
	Status               Status     `json:"status"`
	EstimatedDuration    int        `json:"estimatedDuration,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	DueDate              *time.Time `json:"dueDate,omitempty"`
	AssignedAt           *time.Time `json:"assignedAt,omitempty"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	PropertyID           *string    `json:"propertyId,omitempty"`
	ReservationID        *string    `json:"reservationId,omitempty"`
	CleaningSessionID    *string    `json:"cleaningSessionId,omitempty"`
	MaintenanceSessionID *string    `json:"maintenanceSessionId,omitempty"`
	TicketID             *string    `json:"ticketId,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

func (t TaskAssignment) EntityID() string { return t.ID }

var ErrMultipleLinks = errors.New("task links more than one session or ticket")

// Validate checks the link invariant: a task derives from at most one
// session or ticket.
func (t TaskAssignment) Validate() error {
	n := 0
	for _, l := range []*string{t.CleaningSessionID, t.MaintenanceSessionID, t.TicketID} {
		if l != nil && *l != "" {
			n++
		}
	}
	if n > 1 {
		return ErrMultipleLinks
	}
	return nil
}

type CleaningSession struct {
	ID                string     `json:"id"`
	AgentID           string     `json:"agentId"`
	PropertyID        string     `json:"propertyId"`
	ScheduledDate     time.Time  `json:"scheduledDate"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	EstimatedDuration int        `json:"estimatedDuration,omitempty"`
	ActualDuration    *int       `json:"actualDuration,omitempty"`
	Status            Status     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (s CleaningSession) EntityID() string { return s.ID }

type MaintenanceSession struct {
	ID                string     `json:"id"`
	AgentID           string     `json:"agentId"`
	PropertyID        string     `json:"propertyId"`
	TicketID          string     `json:"ticketId,omitempty"`
	ScheduledDate     time.Time  `json:"scheduledDate"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	EstimatedDuration int        `json:"estimatedDuration,omitempty"`
	ActualDuration    *int       `json:"actualDuration,omitempty"`
	Status            Status     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (s MaintenanceSession) EntityID() string { return s.ID }

type Ticket struct {
	ID          string     `json:"id"`
	PropertyID  string     `json:"propertyId"`
	AgentID     *string    `json:"agentId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	ReportedAt  time.Time  `json:"reportedAt"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	Resolution  *string    `json:"resolution,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Ticket) EntityID() string { return t.ID }
