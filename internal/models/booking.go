package models

import "time"

// BookingStatus is the closed set of booking lifecycle states.
//
//	confirmed -> cancelled | completed | absent
//
// completed and cancelled are terminal; absent stays absent and blocks the
// student for that subject until a faculty flips rebooking_allowed on the row.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusAbsent    BookingStatus = "absent"
)

// Valid reports whether s is one of the four known states.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted, BookingStatusAbsent:
		return true
	}
	return false
}

// Booking is a student's claim on a slot. It carries its own lifecycle
// independent of the slot record; the slot is claimed, never owned.
// Subject is denormalised from the slot at claim time so the store can
// enforce the one-confirmed-per-subject rule with a partial unique index.
type Booking struct {
	ID                 string        `db:"id" json:"id"`
	SlotID             string        `db:"slot_id" json:"slot_id"`
	StudentID          string        `db:"student_id" json:"student_id"`
	GroupID            string        `db:"group_id" json:"group_id"`
	Subject            string        `db:"subject" json:"subject"`
	Status             BookingStatus `db:"status" json:"status"`
	CancellationReason string        `db:"cancellation_reason" json:"cancellation_reason"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	MarkedAbsentAt     *time.Time    `db:"marked_absent_at" json:"marked_absent_at,omitempty"`
	RebookingAllowed   bool          `db:"rebooking_allowed" json:"rebooking_allowed"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingDetail joins a booking with its slot window and the involved users.
type BookingDetail struct {
	Booking
	SlotStart    time.Time `db:"slot_start" json:"slot_start"`
	SlotEnd      time.Time `db:"slot_end" json:"slot_end"`
	FacultyID    string    `db:"faculty_id" json:"faculty_id"`
	FacultyName  string    `db:"faculty_name" json:"faculty_name"`
	StudentName  string    `db:"student_name" json:"student_name"`
	StudentEmail string    `db:"student_email" json:"student_email"`
}

// BookingFilter captures listing criteria for booking views.
type BookingFilter struct {
	StudentID     string
	FacultyID     string
	Status        BookingStatus
	ConfirmedOnly bool
}

// BlockedSubject describes an unresolved absence blocking a student from a
// subject until faculty action lifts it.
type BlockedSubject struct {
	Subject        string     `json:"subject"`
	Blocked        bool       `json:"blocked"`
	Detail         string     `json:"detail"`
	BookingID      string     `json:"booking_id"`
	MarkedAbsentAt *time.Time `json:"marked_absent_at,omitempty"`
}

// AbsentStudent is a faculty-facing view of the latest unresolved absence for
// a (student, subject) pair on that faculty's slots.
type AbsentStudent struct {
	Student        UserInfo   `json:"student"`
	Subject        string     `json:"subject"`
	BookingID      string     `json:"booking_id"`
	MarkedAbsentAt *time.Time `json:"marked_absent_at,omitempty"`
	SlotStart      time.Time  `json:"slot_start"`
	SlotEnd        time.Time  `json:"slot_end"`
}
