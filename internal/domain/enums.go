package domain

type Kind string

const (
	KindAgent       Kind = "agent"
	KindSpecialty   Kind = "specialty"
	KindTask        Kind = "task"
	KindCleaning    Kind = "cleaning"
	KindMaintenance Kind = "maintenance"
	KindTicket      Kind = "ticket"
)

// Kinds lists every cached entity kind in sync order.
var Kinds = []Kind{KindAgent, KindSpecialty, KindTask, KindCleaning, KindMaintenance, KindTicket}

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for sorting; unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	case PriorityCritical:
		return 5
	}
	return 0
}

type AgentType string

const (
	AgentCleaning     AgentType = "cleaning"
	AgentMaintenance  AgentType = "maintenance"
	AgentLaundry      AgentType = "laundry"
	AgentConcierge    AgentType = "concierge"
	AgentMultiService AgentType = "multi_service"
)

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
	Offline   Availability = "offline"
	OnBreak   Availability = "on_break"
	OnMission Availability = "on_mission"
)

func (a Availability) Valid() bool {
	switch a {
	case Available, Busy, Offline, OnBreak, OnMission:
		return true
	}
	return false
}

type TaskType string

const (
	TaskCleaning    TaskType = "cleaning"
	TaskMaintenance TaskType = "maintenance"
	TaskInspection  TaskType = "inspection"
	TaskLaundry     TaskType = "laundry"
	TaskConcierge   TaskType = "concierge"
	TaskOther       TaskType = "other"
)
