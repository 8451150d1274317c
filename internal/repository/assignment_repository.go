package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campuskit/scheduler-api/internal/models"
)

// AssignmentRepository reads the student-mentor-subject mapping. The table is
// populated out of band by the identity sync, so this repository is read-only.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListByStudent returns all mentor assignments for a student.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.MentorAssignment, error) {
	const query = `SELECT id, student_id, faculty_id, subject, created_at, updated_at
        FROM mentor_assignments WHERE student_id = $1 ORDER BY subject`
	var assignments []models.MentorAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, studentID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// SubjectsForFaculty returns the distinct subjects this faculty mentors.
func (r *AssignmentRepository) SubjectsForFaculty(ctx context.Context, facultyID string) ([]string, error) {
	const query = `SELECT DISTINCT subject FROM mentor_assignments WHERE faculty_id = $1 ORDER BY subject`
	var subjects []string
	if err := r.db.SelectContext(ctx, &subjects, query, facultyID); err != nil {
		return nil, fmt.Errorf("faculty subjects: %w", err)
	}
	return subjects, nil
}
