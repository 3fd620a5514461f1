package gateway

import (
	"time"

	"fieldline/internal/domain"
)

// Request payloads carry only client-mutable fields. Identifiers and
// creation timestamps are assigned by the service.

type AgentInput struct {
	UserID         string               `json:"userId"`
	ManagerID      string               `json:"managerId,omitempty"`
	AgentType      domain.AgentType     `json:"agentType"`
	Availability   domain.Availability  `json:"availability,omitempty"`
	Specialties    []string             `json:"specialties,omitempty"`
	Certifications []string             `json:"certifications,omitempty"`
	ServiceZones   []string             `json:"serviceZones,omitempty"`
	WorkingHours   []domain.ShiftWindow `json:"workingHours,omitempty"`
	HourlyRate     float64              `json:"hourlyRate,omitempty"`
	IsActive       *bool                `json:"isActive,omitempty"`
}

type AgentPatch struct {
	ManagerID      *string              `json:"managerId,omitempty"`
	AgentType      *domain.AgentType    `json:"agentType,omitempty"`
	Availability   *domain.Availability `json:"availability,omitempty"`
	Specialties    []string             `json:"specialties,omitempty"`
	Certifications []string             `json:"certifications,omitempty"`
	ServiceZones   []string             `json:"serviceZones,omitempty"`
	WorkingHours   []domain.ShiftWindow `json:"workingHours,omitempty"`
	HourlyRate     *float64             `json:"hourlyRate,omitempty"`
	IsActive       *bool                `json:"isActive,omitempty"`
}

// ProfilePatch is what an agent may change on their own profile.
type ProfilePatch struct {
	Availability    *domain.Availability `json:"availability,omitempty"`
	CurrentLocation *domain.GeoLocation  `json:"currentLocation,omitempty"`
	ServiceZones    []string             `json:"serviceZones,omitempty"`
	WorkingHours    []domain.ShiftWindow `json:"workingHours,omitempty"`
}

type SpecialtyInput struct {
	AgentID   string `json:"agentId"`
	Name      string `json:"name"`
	Certified bool   `json:"certified,omitempty"`
	Level     string `json:"level,omitempty"`
}

type SpecialtyPatch struct {
	Name      *string `json:"name,omitempty"`
	Certified *bool   `json:"certified,omitempty"`
	Level     *string `json:"level,omitempty"`
}

type TaskInput struct {
	AgentID              string          `json:"agentId"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	Type                 domain.TaskType `json:"type,omitempty"`
	Priority             domain.Priority `json:"priority,omitempty"`
	EstimatedDuration    int             `json:"estimatedDuration,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	DueDate              *time.Time      `json:"dueDate,omitempty"`
	PropertyID           *string         `json:"propertyId,omitempty"`
	ReservationID        *string         `json:"reservationId,omitempty"`
	CleaningSessionID    *string         `json:"cleaningSessionId,omitempty"`
	MaintenanceSessionID *string         `json:"maintenanceSessionId,omitempty"`
	TicketID             *string         `json:"ticketId,omitempty"`
}

// TaskPatch timestamps are the client's view of the transition side
// effects; the service may stamp its own instead.
type TaskPatch struct {
	Title             *string          `json:"title,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Priority          *domain.Priority `json:"priority,omitempty"`
	Status            *domain.Status   `json:"status,omitempty"`
	EstimatedDuration *int             `json:"estimatedDuration,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	DueDate           *time.Time       `json:"dueDate,omitempty"`
	StartedAt         *time.Time       `json:"startedAt,omitempty"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
}

type SessionPatch struct {
	Status         *domain.Status `json:"status,omitempty"`
	Notes          *string        `json:"notes,omitempty"`
	StartTime      *time.Time     `json:"startTime,omitempty"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	ActualDuration *int           `json:"actualDuration,omitempty"`
}

type TicketInput struct {
	PropertyID  string          `json:"propertyId"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Priority    domain.Priority `json:"priority,omitempty"`
}

type TicketPatch struct {
	AgentID     *string          `json:"agentId,omitempty"`
	Status      *domain.Status   `json:"status,omitempty"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Priority    *domain.Priority `json:"priority,omitempty"`
	Resolution  *string          `json:"resolution,omitempty"`
	AssignedAt  *time.Time       `json:"assignedAt,omitempty"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	ResolvedAt  *time.Time       `json:"resolvedAt,omitempty"`
	ClosedAt    *time.Time       `json:"closedAt,omitempty"`
}
