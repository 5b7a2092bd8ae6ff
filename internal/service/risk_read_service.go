package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type scoreReader interface {
	List(ctx context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, int, error)
	FindLatestByStudent(ctx context.Context, studentID string) (*models.RiskScore, error)
	HistoryByStudent(ctx context.Context, studentID string, limit int) ([]models.RiskScore, error)
}

type activeAlertReader interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.RiskAlert, error)
}

// RiskReadService serves the score read surface: the roster list
// (latest score per student, worst first) and the per-student detail
// with history and active alerts. Reads are cache-aside.
type RiskReadService struct {
	scores   scoreReader
	alerts   activeAlertReader
	students metricStudentReader
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRiskReadService constructs a RiskReadService.
func NewRiskReadService(scores scoreReader, alerts activeAlertReader, students metricStudentReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *RiskReadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskReadService{
		scores:   scores,
		alerts:   alerts,
		students: students,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// List returns the latest score per student matching the filter,
// ordered worst score first, with pagination metadata.
func (s *RiskReadService) List(ctx context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, *models.Pagination, error) {
	if filter.Level != "" && filter.Level.Rank() < 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown risk level: "+string(filter.Level))
	}
	scores, total, err := s.scores.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list risk scores")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	return scores, &models.Pagination{Limit: limit, Offset: filter.Offset, TotalCount: total}, nil
}

// StudentDetail returns one student's latest score, history and active
// alerts. The boolean reports a cache hit.
func (s *RiskReadService) StudentDetail(ctx context.Context, studentID string, historyLimit int) (*models.StudentRiskDetail, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}

	cacheKey := fmt.Sprintf("risk:detail:%s:%d", studentID, historyLimit)
	var cached models.StudentRiskDetail
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	latest, err := s.scores.FindLatestByStudent(ctx, studentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch latest score")
	}
	history, err := s.scores.HistoryByStudent(ctx, studentID, historyLimit)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch score history")
	}
	alerts, err := s.alerts.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch active alerts")
	}

	detail := &models.StudentRiskDetail{
		Student: *student,
		Latest:  latest,
		History: history,
		Alerts:  alerts,
	}
	_ = s.cache.Set(ctx, cacheKey, detail, s.cacheTTL)
	return detail, false, nil
}
