package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// StudentRepository reads the student roster owned by the academy CRUD
// service. This service never mutates students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, full_name, status, lead_source, enrolled_at, created_at, updated_at`

// FindByID fetches a single student.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListActive returns every student in active enrollment status, the
// population a batch run iterates over.
func (r *StudentRepository) ListActive(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE status = $1 ORDER BY created_at ASC`, studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, models.StudentActive); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}
