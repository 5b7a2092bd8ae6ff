package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

// weightSumTolerance absorbs float representation error when checking
// that weights sum to 1.
const weightSumTolerance = 1e-6

type riskConfigRepository interface {
	Latest(ctx context.Context) (*models.RiskConfig, error)
	FindVersion(ctx context.Context, version int) (*models.RiskConfig, error)
	InsertVersion(ctx context.Context, cfg *models.RiskConfig) error
}

// RiskConfigService serves and updates the versioned scoring
// configuration. Updates are allow-listed per key and always insert a
// new version; the previous version stays queryable for score rows
// that reference it.
type RiskConfigService struct {
	repo      riskConfigRepository
	audit     alertAuditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRiskConfigService constructs a RiskConfigService.
func NewRiskConfigService(repo riskConfigRepository, audit alertAuditLogger, validate *validator.Validate, logger *zap.Logger) *RiskConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskConfigService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Current returns the latest configuration, falling back to the seeded
// default when no version has been stored yet.
func (s *RiskConfigService) Current(ctx context.Context) (*models.RiskConfig, error) {
	cfg, err := s.repo.Latest(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			def := models.DefaultRiskConfig()
			return &def, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk configuration")
	}
	return cfg, nil
}

// Version returns one historical configuration version.
func (s *RiskConfigService) Version(ctx context.Context, version int) (*models.RiskConfig, error) {
	if version <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "version must be positive")
	}
	cfg, err := s.repo.FindVersion(ctx, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("configuration version %d not found", version))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk configuration")
	}
	return cfg, nil
}

// Update applies one key change on top of the current configuration and
// persists the result as a new version.
func (s *RiskConfigService) Update(ctx context.Context, req dto.UpdateRiskConfigRequest, actor *models.JWTClaims) (*models.RiskConfig, error) {
	if actor == nil || actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "configuration updates require an acting user")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration payload")
	}
	if !allowedConfigKey(req.Key) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "configuration key not allowed: "+req.Key)
	}

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	next := *current

	switch req.Key {
	case models.ConfigKeyScoreWeights:
		var weights models.ScoreWeights
		if err := json.Unmarshal(req.Value, &weights); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "score_weights must be an object of factor weights")
		}
		if err := validateWeights(weights); err != nil {
			return nil, err
		}
		next.ScoreWeights = weights
	case models.ConfigKeyThresholds:
		var thresholds models.RiskThresholds
		if err := json.Unmarshal(req.Value, &thresholds); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "thresholds must be an object")
		}
		if err := validateThresholds(thresholds); err != nil {
			return nil, err
		}
		next.Thresholds = thresholds
	case models.ConfigKeyAlertTriggers:
		var triggers models.AlertTriggers
		if err := json.Unmarshal(req.Value, &triggers); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "alert_triggers must be an object")
		}
		if err := validateTriggers(triggers); err != nil {
			return nil, err
		}
		next.AlertTriggers = triggers
	case models.ConfigKeyAnalysisPeriodDays:
		var days int
		if err := json.Unmarshal(req.Value, &days); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "analysis_period_days must be an integer")
		}
		if days < 1 || days > 365 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "analysis_period_days must be between 1 and 365")
		}
		next.AnalysisPeriodDays = days
	}

	actorID := actor.UserID
	next.UpdatedBy = &actorID
	if err := s.repo.InsertVersion(ctx, &next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store configuration version")
	}

	s.emitAudit(ctx, actor, req.Key, current, &next)
	return &next, nil
}

func allowedConfigKey(key string) bool {
	for _, k := range models.AllowedConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

// validateWeights requires every known factor with a non-negative
// weight, summing to 1.
func validateWeights(weights models.ScoreWeights) error {
	var sum float64
	for _, name := range models.KnownFactors {
		w, ok := weights[name]
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidWeights, "missing weight for factor "+name)
		}
		if w < 0 {
			return appErrors.Clone(appErrors.ErrInvalidWeights, "negative weight for factor "+name)
		}
		sum += w
	}
	if len(weights) != len(models.KnownFactors) {
		return appErrors.Clone(appErrors.ErrInvalidWeights, "unknown factor in weights")
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("weights must sum to 1.0, got %.4f", sum))
	}
	return nil
}

func validateThresholds(t models.RiskThresholds) error {
	if t.Low < 0 || t.Warning > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "thresholds must lie within [0,100]")
	}
	if t.Low >= t.Warning {
		return appErrors.Clone(appErrors.ErrValidation, "low threshold must be below warning threshold")
	}
	if t.TrendNoiseFloor < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "trend noise floor cannot be negative")
	}
	return nil
}

func validateTriggers(t models.AlertTriggers) error {
	if t.NoContactDays < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no_contact_days cannot be negative")
	}
	switch t.NoContactMinLevel {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, "no_contact_min_level must be low, medium or high")
	}
}

func (s *RiskConfigService) emitAudit(ctx context.Context, actor *models.JWTClaims, key string, before, after *models.RiskConfig) {
	if s.audit == nil {
		return
	}
	oldBytes, _ := json.Marshal(before)
	newBytes, _ := json.Marshal(after)
	log := &models.AuditLog{
		UserID:    &actor.UserID,
		Action:    models.AuditActionConfigUpdate,
		Resource:  "risk_config",
		OldValues: oldBytes,
		NewValues: newBytes,
		IPAddress: "system",
		UserAgent: "risk-config-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record config audit", zap.String("key", key), zap.Error(err))
	}
}
