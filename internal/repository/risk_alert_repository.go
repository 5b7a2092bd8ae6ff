package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// RiskAlertRepository persists alert rows. The (student_id, type) pair
// carries a partial unique index on status = 'active' so the dedup
// invariant holds even under concurrent batch runs.
type RiskAlertRepository struct {
	db *sqlx.DB
}

// NewRiskAlertRepository instantiates the repository.
func NewRiskAlertRepository(db *sqlx.DB) *RiskAlertRepository {
	return &RiskAlertRepository{db: db}
}

const alertColumns = `id, student_id, type, severity, status, note, trigger_score,
created_at, updated_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, dismissed_at, dismissed_by`

// FindByID fetches a single alert.
func (r *RiskAlertRepository) FindByID(ctx context.Context, id string) (*models.RiskAlert, error) {
	query := fmt.Sprintf(`SELECT %s FROM risk_alerts WHERE id = $1`, alertColumns)
	var alert models.RiskAlert
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		return nil, err
	}
	return &alert, nil
}

// FindActiveByStudentAndType returns the active alert for the pair, or
// nil when none exists.
func (r *RiskAlertRepository) FindActiveByStudentAndType(ctx context.Context, studentID string, alertType models.AlertType) (*models.RiskAlert, error) {
	query := fmt.Sprintf(`SELECT %s FROM risk_alerts WHERE student_id = $1 AND type = $2 AND status = $3`, alertColumns)
	var alert models.RiskAlert
	if err := r.db.GetContext(ctx, &alert, query, studentID, string(alertType), string(models.AlertActive)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query active alert: %w", err)
	}
	return &alert, nil
}

// Insert stores a new alert row.
func (r *RiskAlertRepository) Insert(ctx context.Context, alert *models.RiskAlert) error {
	const query = `INSERT INTO risk_alerts (id, student_id, type, severity, status, note, trigger_score, created_at, updated_at)
VALUES (:id, :student_id, :type, :severity, :status, :note, :trigger_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("insert risk alert: %w", err)
	}
	return nil
}

// Refresh updates severity and trigger metadata on an existing active
// alert instead of inserting a duplicate.
func (r *RiskAlertRepository) Refresh(ctx context.Context, id string, severity models.AlertSeverity, triggerScore *float64, ts time.Time) error {
	const query = `UPDATE risk_alerts SET severity = $2, trigger_score = $3, updated_at = $4
WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, string(severity), triggerScore, ts, string(models.AlertActive))
	if err != nil {
		return fmt.Errorf("refresh risk alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("refresh risk alert rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Transition writes the new status along with the per-status timestamp
// and actor attribution columns.
func (r *RiskAlertRepository) Transition(ctx context.Context, id string, next models.AlertStatus, actorID string, note *string, ts time.Time) error {
	var column string
	switch next {
	case models.AlertAcknowledged:
		column = "acknowledged"
	case models.AlertResolved:
		column = "resolved"
	case models.AlertDismissed:
		column = "dismissed"
	default:
		return fmt.Errorf("unsupported alert status %s", next)
	}
	query := fmt.Sprintf(`UPDATE risk_alerts
SET status = $2, %s_at = $3, %s_by = $4, note = COALESCE($5, note), updated_at = $3
WHERE id = $1`, column, column)
	if _, err := r.db.ExecContext(ctx, query, id, string(next), ts, actorID, note); err != nil {
		return fmt.Errorf("transition risk alert: %w", err)
	}
	return nil
}

// List returns alerts matching the filter plus the total match count.
func (r *RiskAlertRepository) List(ctx context.Context, filter models.RiskAlertFilter) ([]models.RiskAlert, int, error) {
	var builder strings.Builder
	builder.WriteString("WHERE 1=1")
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		builder.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		builder.WriteString(fmt.Sprintf(" AND severity = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		builder.WriteString(fmt.Sprintf(" AND type = $%d", len(args)))
	}
	where := builder.String()

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM risk_alerts "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count risk alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM risk_alerts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		alertColumns, where, len(args)-1, len(args))

	var alerts []models.RiskAlert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list risk alerts: %w", err)
	}
	return alerts, total, nil
}

// ListActiveByStudent returns every active alert for a student.
func (r *RiskAlertRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.RiskAlert, error) {
	query := fmt.Sprintf(`SELECT %s FROM risk_alerts WHERE student_id = $1 AND status = $2 ORDER BY created_at DESC`, alertColumns)
	var alerts []models.RiskAlert
	if err := r.db.SelectContext(ctx, &alerts, query, studentID, string(models.AlertActive)); err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return alerts, nil
}
