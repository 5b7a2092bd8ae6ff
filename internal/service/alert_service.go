package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type alertRepository interface {
	FindByID(ctx context.Context, id string) (*models.RiskAlert, error)
	FindActiveByStudentAndType(ctx context.Context, studentID string, alertType models.AlertType) (*models.RiskAlert, error)
	Insert(ctx context.Context, alert *models.RiskAlert) error
	Refresh(ctx context.Context, id string, severity models.AlertSeverity, triggerScore *float64, ts time.Time) error
	Transition(ctx context.Context, id string, next models.AlertStatus, actorID string, note *string, ts time.Time) error
	List(ctx context.Context, filter models.RiskAlertFilter) ([]models.RiskAlert, int, error)
}

type alertAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AlertOutcome reports what Evaluate did for one student.
type AlertOutcome struct {
	Created int
	Updated int
}

// AlertService is the alert engine: it applies the declarative trigger
// conditions from RiskConfig after each scoring run and owns the alert
// lifecycle state machine for the mutation endpoint.
type AlertService struct {
	repo      alertRepository
	audit     alertAuditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAlertService constructs an AlertService.
func NewAlertService(repo alertRepository, audit alertAuditLogger, validate *validator.Validate, logger *zap.Logger) *AlertService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{
		repo:      repo,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluate inspects a freshly computed score against the previous one
// and the configured triggers, creating or refreshing alerts. The
// dedup invariant is enforced here: an existing active alert of the
// same (student, type) is updated, never duplicated.
func (s *AlertService) Evaluate(ctx context.Context, score models.RiskScore, prev *models.RiskScore, cfg models.RiskConfig) (AlertOutcome, error) {
	var outcome AlertOutcome

	if cfg.AlertTriggers.RiskLevelIncreased && riskLevelIncreased(score, prev) {
		severity := severityFor(score.Level, score.Score, cfg.Thresholds)
		changed, created, err := s.raise(ctx, score.StudentID, models.AlertRiskLevelIncreased, severity, score.Score)
		if err != nil {
			return outcome, err
		}
		outcome.Created += created
		outcome.Updated += changed
	}

	if cfg.AlertTriggers.NoContactDays > 0 && noContactExceeded(score, cfg.AlertTriggers) {
		severity := models.SeverityMedium
		if score.Level == models.RiskHigh {
			severity = models.SeverityHigh
		}
		changed, created, err := s.raise(ctx, score.StudentID, models.AlertNoRecentContact, severity, score.Score)
		if err != nil {
			return outcome, err
		}
		outcome.Created += created
		outcome.Updated += changed
	}

	return outcome, nil
}

// riskLevelIncreased fires when the level worsened, or when the very
// first computation already lands at high risk.
func riskLevelIncreased(score models.RiskScore, prev *models.RiskScore) bool {
	if score.Level == models.RiskLow {
		return false
	}
	if prev == nil {
		return score.Level == models.RiskHigh
	}
	return score.Level.Rank() > prev.Level.Rank()
}

// noContactExceeded fires when the student is at or above the
// configured minimum level and has not been contacted within the
// window. A student never contacted at all counts as exceeded.
func noContactExceeded(score models.RiskScore, triggers models.AlertTriggers) bool {
	if score.Level.Rank() < triggers.NoContactMinLevel.Rank() {
		return false
	}
	days := score.Factors.DaysSinceContact
	return days == nil || *days >= triggers.NoContactDays
}

// severityFor grades alert severity off the level, escalating to
// critical when the score falls to half the high-risk cutoff.
func severityFor(level models.RiskLevel, score float64, thresholds models.RiskThresholds) models.AlertSeverity {
	switch level {
	case models.RiskHigh:
		if score <= thresholds.Low/2 {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case models.RiskMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func (s *AlertService) raise(ctx context.Context, studentID string, alertType models.AlertType, severity models.AlertSeverity, triggerScore float64) (updated, created int, err error) {
	existing, err := s.repo.FindActiveByStudentAndType(ctx, studentID, alertType)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active alert")
	}
	now := s.now().UTC()
	score := triggerScore
	if existing != nil {
		if err := s.repo.Refresh(ctx, existing.ID, severity, &score, now); err != nil {
			return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh alert")
		}
		return 1, 0, nil
	}
	alert := &models.RiskAlert{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		Type:         alertType,
		Severity:     severity,
		Status:       models.AlertActive,
		TriggerScore: &score,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, alert); err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create alert")
	}
	return 0, 1, nil
}

// Apply executes a lifecycle action against one alert. The transition
// table rejects terminal-state mutations and skipped steps; every
// accepted transition is timestamped, attributed and audited.
func (s *AlertService) Apply(ctx context.Context, alertID string, req dto.AlertActionRequest, actor *models.JWTClaims) (*models.RiskAlert, error) {
	if actor == nil || actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "alert transitions require an acting employee")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alert action payload")
	}
	action, err := models.ParseAlertAction(req.Action)
	if err != nil {
		return nil, err
	}

	alert, err := s.repo.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch alert")
	}

	next, err := models.NextAlertStatus(alert.Status, action)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.Transition(ctx, alert.ID, next, actor.UserID, req.Note, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition alert")
	}

	s.emitAudit(ctx, actor, alert, next)

	updated := *alert
	updated.Status = next
	updated.UpdatedAt = now
	if req.Note != nil {
		updated.Note = req.Note
	}
	actorID := actor.UserID
	switch next {
	case models.AlertAcknowledged:
		updated.AcknowledgedAt = &now
		updated.AcknowledgedBy = &actorID
	case models.AlertResolved:
		updated.ResolvedAt = &now
		updated.ResolvedBy = &actorID
	case models.AlertDismissed:
		updated.DismissedAt = &now
		updated.DismissedBy = &actorID
	}
	return &updated, nil
}

// List returns alerts matching the filter with pagination metadata.
func (s *AlertService) List(ctx context.Context, filter models.RiskAlertFilter) ([]models.RiskAlert, *models.Pagination, error) {
	alerts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	return alerts, &models.Pagination{Limit: limit, Offset: filter.Offset, TotalCount: total}, nil
}

func (s *AlertService) emitAudit(ctx context.Context, actor *models.JWTClaims, alert *models.RiskAlert, next models.AlertStatus) {
	if s.audit == nil {
		return
	}
	oldBytes, _ := json.Marshal(map[string]string{"status": string(alert.Status)})
	newBytes, _ := json.Marshal(map[string]string{"status": string(next)})
	alertID := alert.ID
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAlertTransition,
		Resource:   "risk_alert",
		ResourceID: &alertID,
		OldValues:  oldBytes,
		NewValues:  newBytes,
		IPAddress:  "system",
		UserAgent:  "alert-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record alert audit", zap.Error(err))
	}
}
