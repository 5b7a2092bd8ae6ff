package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// RiskConfigRepository persists versioned scoring configuration. Every
// update inserts a new version row; reads return the highest version.
type RiskConfigRepository struct {
	db *sqlx.DB
}

// NewRiskConfigRepository instantiates the repository.
func NewRiskConfigRepository(db *sqlx.DB) *RiskConfigRepository {
	return &RiskConfigRepository{db: db}
}

type riskConfigRow struct {
	Version            int       `db:"version"`
	ScoreWeights       []byte    `db:"score_weights"`
	Thresholds         []byte    `db:"thresholds"`
	AlertTriggers      []byte    `db:"alert_triggers"`
	AnalysisPeriodDays int       `db:"analysis_period_days"`
	UpdatedBy          *string   `db:"updated_by"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (row riskConfigRow) toModel() (*models.RiskConfig, error) {
	cfg := &models.RiskConfig{
		Version:            row.Version,
		AnalysisPeriodDays: row.AnalysisPeriodDays,
		UpdatedBy:          row.UpdatedBy,
		UpdatedAt:          row.UpdatedAt,
	}
	if err := json.Unmarshal(row.ScoreWeights, &cfg.ScoreWeights); err != nil {
		return nil, fmt.Errorf("decode score weights: %w", err)
	}
	if err := json.Unmarshal(row.Thresholds, &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	if err := json.Unmarshal(row.AlertTriggers, &cfg.AlertTriggers); err != nil {
		return nil, fmt.Errorf("decode alert triggers: %w", err)
	}
	return cfg, nil
}

// Latest returns the current configuration version. Callers are
// expected to treat sql.ErrNoRows as "seed the default".
func (r *RiskConfigRepository) Latest(ctx context.Context) (*models.RiskConfig, error) {
	const query = `SELECT version, score_weights, thresholds, alert_triggers, analysis_period_days, updated_by, updated_at
FROM risk_configs ORDER BY version DESC LIMIT 1`
	var row riskConfigRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, err
	}
	return row.toModel()
}

// FindVersion returns a specific configuration version.
func (r *RiskConfigRepository) FindVersion(ctx context.Context, version int) (*models.RiskConfig, error) {
	const query = `SELECT version, score_weights, thresholds, alert_triggers, analysis_period_days, updated_by, updated_at
FROM risk_configs WHERE version = $1`
	var row riskConfigRow
	if err := r.db.GetContext(ctx, &row, query, version); err != nil {
		return nil, err
	}
	return row.toModel()
}

// InsertVersion stores a new configuration version. The version number
// is assigned in SQL from the current maximum so concurrent writers
// cannot collide on the primary key silently.
func (r *RiskConfigRepository) InsertVersion(ctx context.Context, cfg *models.RiskConfig) error {
	weights, err := json.Marshal(cfg.ScoreWeights)
	if err != nil {
		return fmt.Errorf("encode score weights: %w", err)
	}
	thresholds, err := json.Marshal(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	triggers, err := json.Marshal(cfg.AlertTriggers)
	if err != nil {
		return fmt.Errorf("encode alert triggers: %w", err)
	}
	const query = `INSERT INTO risk_configs (version, score_weights, thresholds, alert_triggers, analysis_period_days, updated_by, updated_at)
VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM risk_configs), $1, $2, $3, $4, $5, $6)
RETURNING version`
	cfg.UpdatedAt = time.Now().UTC()
	if err := r.db.GetContext(ctx, &cfg.Version, query,
		weights, thresholds, triggers, cfg.AnalysisPeriodDays, cfg.UpdatedBy, cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert risk config version: %w", err)
	}
	return nil
}
