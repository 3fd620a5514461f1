package domain

import "time"

// WorkItem is the closed set of units of work an agent can see on an
// agenda: *TaskAssignment, *CleaningSession, *MaintenanceSession and
// *Ticket. The unexported method seals the set so type switches over it
// can be kept exhaustive.
type WorkItem interface {
	Entity
	Kind() Kind
	CurrentStatus() Status
	DisplayTitle() string
	ScheduledFor() time.Time
	workItem()
}

// WorkRef addresses one work item without carrying its payload.
type WorkRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func RefOf(w WorkItem) WorkRef { return WorkRef{Kind: w.Kind(), ID: w.EntityID()} }

func (t *TaskAssignment) Kind() Kind            { return KindTask }
func (t *TaskAssignment) CurrentStatus() Status { return t.Status }
func (t *TaskAssignment) DisplayTitle() string  { return t.Title }
func (t *TaskAssignment) ScheduledFor() time.Time {
	if t.DueDate != nil {
		return *t.DueDate
	}
	return t.CreatedAt
}
func (*TaskAssignment) workItem() {}

func (s *CleaningSession) Kind() Kind              { return KindCleaning }
func (s *CleaningSession) CurrentStatus() Status   { return s.Status }
func (s *CleaningSession) DisplayTitle() string    { return "Cleaning · " + s.PropertyID }
func (s *CleaningSession) ScheduledFor() time.Time { return s.ScheduledDate }
func (*CleaningSession) workItem()                 {}

func (s *MaintenanceSession) Kind() Kind              { return KindMaintenance }
func (s *MaintenanceSession) CurrentStatus() Status   { return s.Status }
func (s *MaintenanceSession) DisplayTitle() string    { return "Maintenance · " + s.PropertyID }
func (s *MaintenanceSession) ScheduledFor() time.Time { return s.ScheduledDate }
func (*MaintenanceSession) workItem()                 {}

func (t *Ticket) Kind() Kind              { return KindTicket }
func (t *Ticket) CurrentStatus() Status   { return t.Status }
func (t *Ticket) DisplayTitle() string    { return t.Title }
func (t *Ticket) ScheduledFor() time.Time { return t.ReportedAt }
func (*Ticket) workItem()                 {}
