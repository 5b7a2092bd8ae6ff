package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// FunnelRepository persists the append-only funnel event log. Events
// are immutable except for days_from_previous, which the refresh run
// recomputes.
type FunnelRepository struct {
	db *sqlx.DB
}

// NewFunnelRepository instantiates the repository.
func NewFunnelRepository(db *sqlx.DB) *FunnelRepository {
	return &FunnelRepository{db: db}
}

const funnelColumns = `id, student_id, event_type, from_stage, to_stage, lead_source,
contact_channel, days_from_previous, metadata, occurred_at, created_at`

// Insert appends a funnel event.
func (r *FunnelRepository) Insert(ctx context.Context, event *models.FunnelEvent) error {
	const query = `INSERT INTO funnel_events (id, student_id, event_type, from_stage, to_stage, lead_source, contact_channel, days_from_previous, metadata, occurred_at, created_at)
VALUES (:id, :student_id, :event_type, :from_stage, :to_stage, :lead_source, :contact_channel, :days_from_previous, :metadata, :occurred_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert funnel event: %w", err)
	}
	return nil
}

// ListEvents returns events matching the filter ordered by student then
// time, the order the reducers consume them in.
func (r *FunnelRepository) ListEvents(ctx context.Context, filter models.FunnelEventFilter) ([]models.FunnelEvent, error) {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("SELECT %s FROM funnel_events WHERE 1=1", funnelColumns))
	var args []interface{}
	if filter.LeadSource != "" {
		args = append(args, filter.LeadSource)
		builder.WriteString(fmt.Sprintf(" AND lead_source = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		builder.WriteString(fmt.Sprintf(" AND occurred_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		builder.WriteString(fmt.Sprintf(" AND occurred_at <= $%d", len(args)))
	}
	builder.WriteString(" ORDER BY student_id ASC, occurred_at ASC")

	var events []models.FunnelEvent
	if err := r.db.SelectContext(ctx, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list funnel events: %w", err)
	}
	return events, nil
}

// ListByStudent returns a single student's events in chronological
// order.
func (r *FunnelRepository) ListByStudent(ctx context.Context, studentID string) ([]models.FunnelEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM funnel_events WHERE student_id = $1 ORDER BY occurred_at ASC`, funnelColumns)
	var events []models.FunnelEvent
	if err := r.db.SelectContext(ctx, &events, query, studentID); err != nil {
		return nil, fmt.Errorf("list student funnel events: %w", err)
	}
	return events, nil
}

// StudentIDsWithEvents returns the distinct students present in the
// event log, the population of the day-count refresh.
func (r *FunnelRepository) StudentIDsWithEvents(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT student_id FROM funnel_events ORDER BY student_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list funnel student ids: %w", err)
	}
	return ids, nil
}

// UpdateDayCount sets the recomputed elapsed-days value on one event.
func (r *FunnelRepository) UpdateDayCount(ctx context.Context, eventID string, days int) error {
	const query = `UPDATE funnel_events SET days_from_previous = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, eventID, days); err != nil {
		return fmt.Errorf("update funnel day count: %w", err)
	}
	return nil
}
