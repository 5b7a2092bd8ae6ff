package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ActivityRepository exposes read-only windowed aggregates over raw
// activity logs (attendance, study logs, test results, consultations).
// It is the data source of the metric aggregator; it never writes.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository instantiates the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// AttendanceStats carries the raw pieces of the weighted attendance
// rate: full presence counts 1.0, late/early-leave/makeup count 0.5,
// absence counts 0, over all scheduled sessions in the window.
type AttendanceStats struct {
	Scheduled int     `db:"scheduled"`
	Weighted  float64 `db:"weighted"`
}

// AttendanceStats aggregates attendance logs since the window start.
func (r *ActivityRepository) AttendanceStats(ctx context.Context, studentID string, since time.Time) (AttendanceStats, error) {
	const query = `SELECT COUNT(*) AS scheduled,
        COALESCE(SUM(CASE status
            WHEN 'present' THEN 1.0
            WHEN 'late' THEN 0.5
            WHEN 'early_leave' THEN 0.5
            WHEN 'makeup' THEN 0.5
            ELSE 0 END), 0) AS weighted
        FROM attendance_logs
        WHERE student_id = $1 AND date >= $2`
	var stats AttendanceStats
	if err := r.db.GetContext(ctx, &stats, query, studentID, since); err != nil {
		return AttendanceStats{}, fmt.Errorf("query attendance stats: %w", err)
	}
	return stats, nil
}

// StudyStats carries homework and focus rating averages on the 1-5
// scale. AVG ignores NULL ratings, so the counts distinguish "no
// observations" from "average happens to be zero".
type StudyStats struct {
	HomeworkAvg   sql.NullFloat64 `db:"homework_avg"`
	HomeworkCount int             `db:"homework_count"`
	FocusAvg      sql.NullFloat64 `db:"focus_avg"`
	FocusCount    int             `db:"focus_count"`
}

// StudyStats aggregates study log ratings since the window start.
func (r *ActivityRepository) StudyStats(ctx context.Context, studentID string, since time.Time) (StudyStats, error) {
	const query = `SELECT AVG(homework_rating) AS homework_avg,
        COUNT(homework_rating) AS homework_count,
        AVG(focus_rating) AS focus_avg,
        COUNT(focus_rating) AS focus_count
        FROM study_logs
        WHERE student_id = $1 AND date >= $2`
	var stats StudyStats
	if err := r.db.GetContext(ctx, &stats, query, studentID, since); err != nil {
		return StudyStats{}, fmt.Errorf("query study stats: %w", err)
	}
	return stats, nil
}

// TestStats carries the test score average over graded tests plus the
// count of scheduled tests the student never sat.
type TestStats struct {
	ScoreAvg sql.NullFloat64 `db:"score_avg"`
	Graded   int             `db:"graded"`
	Missing  int             `db:"missing"`
}

// TestStats aggregates test results since the window start.
func (r *ActivityRepository) TestStats(ctx context.Context, studentID string, since time.Time) (TestStats, error) {
	const query = `SELECT AVG(score) AS score_avg,
        COUNT(score) AS graded,
        COUNT(*) - COUNT(score) AS missing
        FROM test_results
        WHERE student_id = $1 AND scheduled_at >= $2`
	var stats TestStats
	if err := r.db.GetContext(ctx, &stats, query, studentID, since); err != nil {
		return TestStats{}, fmt.Errorf("query test stats: %w", err)
	}
	return stats, nil
}

// LastContactAt returns the most recent consultation contact for the
// student, or nil when the student has never been contacted.
func (r *ActivityRepository) LastContactAt(ctx context.Context, studentID string) (*time.Time, error) {
	const query = `SELECT MAX(contacted_at) AS last_contact FROM consultations WHERE student_id = $1`
	var last sql.NullTime
	if err := r.db.GetContext(ctx, &last, query, studentID); err != nil {
		return nil, fmt.Errorf("query last contact: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	ts := last.Time
	return &ts, nil
}
