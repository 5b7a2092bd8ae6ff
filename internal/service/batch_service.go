package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type batchStudentLister interface {
	ListActive(ctx context.Context) ([]models.Student, error)
}

type factorAggregator interface {
	Aggregate(ctx context.Context, studentID string, windowDays int) (*models.RiskFactor, bool, error)
}

type riskScorer interface {
	Score(studentID string, factor models.RiskFactor, cfg models.RiskConfig, prev *models.RiskScore) models.RiskScore
}

type scoreStore interface {
	Insert(ctx context.Context, score *models.RiskScore) error
	FindLatestByStudent(ctx context.Context, studentID string) (*models.RiskScore, error)
}

type alertEvaluator interface {
	Evaluate(ctx context.Context, score models.RiskScore, prev *models.RiskScore, cfg models.RiskConfig) (AlertOutcome, error)
}

type configProvider interface {
	Current(ctx context.Context) (*models.RiskConfig, error)
}

type dayCountRefresher interface {
	RefreshDayCounts(ctx context.Context) (models.FunnelRefreshSummary, error)
}

// BatchService orchestrates the full-population runs. A run snapshots
// the configuration once, walks every active student, and isolates
// per-student failures into the summary so one bad row cannot sink the
// whole run. Runs of the same kind are not re-entrant.
type BatchService struct {
	pipeline riskPipeline
	metrics  *MetricsService
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time

	riskRunning   atomic.Bool
	funnelRunning atomic.Bool
}

// riskPipeline bundles the collaborators of the per-student scoring
// pipeline.
type riskPipeline struct {
	lister    batchStudentLister
	metric    factorAggregator
	scorer    riskScorer
	scores    scoreStore
	alerts    alertEvaluator
	config    configProvider
	refresher dayCountRefresher
}

// NewBatchService constructs a BatchService.
func NewBatchService(
	lister batchStudentLister,
	metric factorAggregator,
	scorer riskScorer,
	scores scoreStore,
	alerts alertEvaluator,
	config configProvider,
	refresher dayCountRefresher,
	metrics *MetricsService,
	cache *CacheService,
	logger *zap.Logger,
) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{
		pipeline: riskPipeline{
			lister:    lister,
			metric:    metric,
			scorer:    scorer,
			scores:    scores,
			alerts:    alerts,
			config:    config,
			refresher: refresher,
		},
		metrics: metrics,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// RunRiskBatch recomputes every active student's score and evaluates
// alert triggers. The summary is returned even when students failed;
// only run-level problems (no config, cancelled context, concurrent
// run) surface as errors.
func (s *BatchService) RunRiskBatch(ctx context.Context) (models.BatchSummary, error) {
	if !s.riskRunning.CompareAndSwap(false, true) {
		return models.BatchSummary{}, appErrors.Clone(appErrors.ErrBatchRunning, "risk batch already in progress")
	}
	defer s.riskRunning.Store(false)

	started := s.now().UTC()
	summary := models.BatchSummary{StartedAt: started}

	cfg, err := s.pipeline.config.Current(ctx)
	if err != nil {
		return summary, err
	}
	summary.ConfigVersion = cfg.Version

	population, err := s.pipeline.lister.ListActive(ctx)
	if err != nil {
		return summary, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active students")
	}

	s.logger.Info("risk batch started",
		zap.Int("population", len(population)),
		zap.Int("config_version", cfg.Version))

	for _, student := range population {
		if err := ctx.Err(); err != nil {
			summary.DurationMs = time.Since(started).Milliseconds()
			s.finishRisk(summary)
			return summary, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "risk batch cancelled")
		}
		summary.Considered++

		outcome, err := s.scoreStudent(ctx, student.ID, *cfg)
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, models.EntityFailure{StudentID: student.ID, Reason: err.Error()})
			s.logger.Warn("risk batch skipped student",
				zap.String("student_id", student.ID), zap.Error(err))
			continue
		}
		if outcome == nil {
			continue
		}
		summary.Updated++
		summary.AlertsCreated += outcome.Created
		summary.AlertsUpdated += outcome.Updated
	}

	summary.DurationMs = time.Since(started).Milliseconds()
	s.finishRisk(summary)

	if err := s.cache.Invalidate(ctx, "risk:*"); err != nil {
		s.logger.Warn("failed to invalidate risk cache after batch", zap.Error(err))
	}
	return summary, nil
}

// scoreStudent runs the aggregate-score-alert pipeline for one student.
// A nil outcome with nil error means the student was not applicable.
func (s *BatchService) scoreStudent(ctx context.Context, studentID string, cfg models.RiskConfig) (*AlertOutcome, error) {
	factor, applicable, err := s.pipeline.metric.Aggregate(ctx, studentID, cfg.AnalysisPeriodDays)
	if err != nil {
		return nil, err
	}
	if !applicable {
		return nil, nil
	}

	prev, err := s.pipeline.scores.FindLatestByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	score := s.pipeline.scorer.Score(studentID, *factor, cfg, prev)
	if err := s.pipeline.scores.Insert(ctx, &score); err != nil {
		return nil, err
	}

	outcome, err := s.pipeline.alerts.Evaluate(ctx, score, prev, cfg)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (s *BatchService) finishRisk(summary models.BatchSummary) {
	if s.metrics != nil {
		s.metrics.RecordBatchRun("risk", summary.Failed, time.Duration(summary.DurationMs)*time.Millisecond)
	}
	s.logger.Info("risk batch finished",
		zap.Int("considered", summary.Considered),
		zap.Int("updated", summary.Updated),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("alerts_updated", summary.AlertsUpdated),
		zap.Int("failed", summary.Failed),
		zap.Int64("duration_ms", summary.DurationMs))
}

// RunFunnelRefresh recomputes funnel day counts under the same
// single-flight rule as the risk batch.
func (s *BatchService) RunFunnelRefresh(ctx context.Context) (models.FunnelRefreshSummary, error) {
	if !s.funnelRunning.CompareAndSwap(false, true) {
		return models.FunnelRefreshSummary{}, appErrors.Clone(appErrors.ErrBatchRunning, "funnel refresh already in progress")
	}
	defer s.funnelRunning.Store(false)

	summary, err := s.pipeline.refresher.RefreshDayCounts(ctx)
	if s.metrics != nil {
		s.metrics.RecordBatchRun("funnel_refresh", summary.Failed, time.Duration(summary.DurationMs)*time.Millisecond)
	}
	if err != nil {
		return summary, err
	}
	s.logger.Info("funnel refresh finished",
		zap.Int("considered", summary.Considered),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Int64("duration_ms", summary.DurationMs))
	return summary, nil
}
