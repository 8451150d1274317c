package models

import "time"

// Slot is a faculty-owned, fixed time interval offered for booking. Times are
// UTC instants; for a given faculty no two slots may overlap.
type Slot struct {
	ID        string    `db:"id" json:"id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	Subject   string    `db:"subject" json:"subject"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DurationMinutes is derived, never stored.
func (s *Slot) DurationMinutes() int {
	return int(s.EndTime.Sub(s.StartTime).Minutes())
}

// Overlaps reports whether the [start, end) interval intersects the slot.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

// SlotDetail joins a slot with its owner and, when present, the booking row
// currently claiming it.
type SlotDetail struct {
	Slot
	FacultyName      string         `db:"faculty_name" json:"faculty_name"`
	FacultyEmail     string         `db:"faculty_email" json:"faculty_email"`
	BookingID        *string        `db:"booking_id" json:"booking_id,omitempty"`
	BookingStatus    *BookingStatus `db:"booking_status" json:"booking_status,omitempty"`
	BookingStudentID *string        `db:"booking_student_id" json:"booking_student_id,omitempty"`
}

// Booked reports whether a confirmed booking claims this slot.
func (d *SlotDetail) Booked() bool {
	return d.BookingStatus != nil && *d.BookingStatus == BookingStatusConfirmed
}

// SlotFilter captures the listing criteria for faculty slot views.
type SlotFilter struct {
	FacultyID  string
	Date       *time.Time
	FutureOnly bool
}

// SlotInterval is a candidate interval emitted by the generator before any
// persistence decision is made.
type SlotInterval struct {
	Start time.Time
	End   time.Time
}

// BulkSlotResult reports the outcome of a bulk generation request. Candidates
// colliding with existing slots are skipped, so created may be lower than the
// number of generated candidates.
type BulkSlotResult struct {
	SlotsCreated int    `json:"slots_created"`
	Skipped      int    `json:"skipped"`
	Slots        []Slot `json:"slots"`
}

// TodayCleanupResult reports the outcome of deleting today's open slots.
type TodayCleanupResult struct {
	DeletedCount int    `json:"deleted_count"`
	SkippedCount int    `json:"skipped_count"`
	Date         string `json:"date"`
}
