package models

import "time"

// MentorAssignment maps a student to the faculty mentoring them for one
// subject. The external identity sync owns these rows; the scheduler only
// reads them to decide slot visibility and booking eligibility.
type MentorAssignment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MentorStatus summarises one mentor's availability toward a student.
type MentorStatus struct {
	FacultyID   string `json:"faculty_id"`
	FacultyName string `json:"faculty_name"`
	Subject     string `json:"subject"`
	Available   bool   `json:"available"`
}

// MentorStatusReport aggregates all of a student's mentors.
type MentorStatusReport struct {
	HasAssignment bool           `json:"has_assignment"`
	Mentors       []MentorStatus `json:"mentors"`
	AnyMentorBusy bool           `json:"any_mentor_busy"`
	Message       string         `json:"message,omitempty"`
}

// FacultyAvailability is the per-faculty gate row. A faculty without a row is
// available; the flag persists until the next explicit toggle.
type FacultyAvailability struct {
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	Available bool      `db:"available" json:"available"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
