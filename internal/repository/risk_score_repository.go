package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// RiskScoreRepository persists dated risk score rows. Rows are append
// only; each batch run inserts a new row per student so trend history
// stays intact.
type RiskScoreRepository struct {
	db *sqlx.DB
}

// NewRiskScoreRepository instantiates the repository.
func NewRiskScoreRepository(db *sqlx.DB) *RiskScoreRepository {
	return &RiskScoreRepository{db: db}
}

type riskScoreRow struct {
	ID            string    `db:"id"`
	StudentID     string    `db:"student_id"`
	Score         float64   `db:"score"`
	Level         string    `db:"level"`
	Trend         string    `db:"trend"`
	ConfigVersion int       `db:"config_version"`
	Factors       []byte    `db:"factors"`
	ComputedAt    time.Time `db:"computed_at"`
}

func (row riskScoreRow) toModel() (models.RiskScore, error) {
	score := models.RiskScore{
		ID:            row.ID,
		StudentID:     row.StudentID,
		Score:         row.Score,
		Level:         models.RiskLevel(row.Level),
		Trend:         models.RiskTrend(row.Trend),
		ConfigVersion: row.ConfigVersion,
		ComputedAt:    row.ComputedAt,
	}
	if len(row.Factors) > 0 {
		if err := json.Unmarshal(row.Factors, &score.Factors); err != nil {
			return models.RiskScore{}, fmt.Errorf("decode factor snapshot: %w", err)
		}
	}
	return score, nil
}

const riskScoreColumns = `id, student_id, score, level, trend, config_version, factors, computed_at`

// Insert stores a new score row with its factor snapshot as JSON.
func (r *RiskScoreRepository) Insert(ctx context.Context, score *models.RiskScore) error {
	factors, err := json.Marshal(score.Factors)
	if err != nil {
		return fmt.Errorf("encode factor snapshot: %w", err)
	}
	const query = `INSERT INTO risk_scores (id, student_id, score, level, trend, config_version, factors, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		score.ID, score.StudentID, score.Score, string(score.Level), string(score.Trend),
		score.ConfigVersion, factors, score.ComputedAt,
	); err != nil {
		return fmt.Errorf("insert risk score: %w", err)
	}
	return nil
}

// FindLatestByStudent returns the most recent score for a student, or
// nil when the student has never been scored.
func (r *RiskScoreRepository) FindLatestByStudent(ctx context.Context, studentID string) (*models.RiskScore, error) {
	query := fmt.Sprintf(`SELECT %s FROM risk_scores WHERE student_id = $1 ORDER BY computed_at DESC LIMIT 1`, riskScoreColumns)
	var row riskScoreRow
	if err := r.db.GetContext(ctx, &row, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest risk score: %w", err)
	}
	score, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// HistoryByStudent returns score rows newest first, capped by limit.
func (r *RiskScoreRepository) HistoryByStudent(ctx context.Context, studentID string, limit int) ([]models.RiskScore, error) {
	if limit <= 0 {
		limit = 30
	}
	query := fmt.Sprintf(`SELECT %s FROM risk_scores WHERE student_id = $1 ORDER BY computed_at DESC LIMIT $2`, riskScoreColumns)
	var rows []riskScoreRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("query risk score history: %w", err)
	}
	return rowsToScores(rows)
}

// List returns the latest score per student matching the filter, with
// pagination, plus the total match count.
func (r *RiskScoreRepository) List(ctx context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, int, error) {
	where, args := buildScoreFilter(filter)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM (
        SELECT DISTINCT ON (student_id) %s FROM risk_scores ORDER BY student_id, computed_at DESC
    ) latest %s`, riskScoreColumns, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count risk scores: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	listQuery := fmt.Sprintf(`SELECT %s FROM (
        SELECT DISTINCT ON (student_id) %s FROM risk_scores ORDER BY student_id, computed_at DESC
    ) latest %s ORDER BY score ASC LIMIT $%d OFFSET $%d`,
		riskScoreColumns, riskScoreColumns, where, len(args)-1, len(args))

	var rows []riskScoreRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list risk scores: %w", err)
	}
	scores, err := rowsToScores(rows)
	if err != nil {
		return nil, 0, err
	}
	return scores, total, nil
}

func buildScoreFilter(filter models.RiskScoreFilter) (string, []interface{}) {
	var builder strings.Builder
	builder.WriteString("WHERE 1=1")
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND student_id = $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, string(filter.Level))
		builder.WriteString(fmt.Sprintf(" AND level = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		builder.WriteString(fmt.Sprintf(" AND computed_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		builder.WriteString(fmt.Sprintf(" AND computed_at <= $%d", len(args)))
	}
	return builder.String(), args
}

func rowsToScores(rows []riskScoreRow) ([]models.RiskScore, error) {
	scores := make([]models.RiskScore, 0, len(rows))
	for _, row := range rows {
		score, err := row.toModel()
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, nil
}
