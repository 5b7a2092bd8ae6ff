package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type fakeBatchLister struct {
	students  []models.Student
	err       error
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func (f *fakeBatchLister) ListActive(context.Context) ([]models.Student, error) {
	if f.started != nil {
		var blocked bool
		f.startOnce.Do(func() {
			blocked = true
			close(f.started)
		})
		if blocked {
			<-f.release
		}
	}
	return f.students, f.err
}

type aggregateResult struct {
	factor     *models.RiskFactor
	applicable bool
	err        error
}

type fakeAggregator struct {
	results map[string]aggregateResult
}

func (f *fakeAggregator) Aggregate(_ context.Context, studentID string, _ int) (*models.RiskFactor, bool, error) {
	r, ok := f.results[studentID]
	if !ok {
		return nil, false, nil
	}
	return r.factor, r.applicable, r.err
}

type fakeScoreStore struct {
	latest    map[string]*models.RiskScore
	inserted  []models.RiskScore
	insertErr map[string]error
}

func (f *fakeScoreStore) Insert(_ context.Context, score *models.RiskScore) error {
	if err := f.insertErr[score.StudentID]; err != nil {
		return err
	}
	f.inserted = append(f.inserted, *score)
	return nil
}

func (f *fakeScoreStore) FindLatestByStudent(_ context.Context, studentID string) (*models.RiskScore, error) {
	return f.latest[studentID], nil
}

type fakeAlertEvaluator struct {
	outcomes map[string]AlertOutcome
}

func (f *fakeAlertEvaluator) Evaluate(_ context.Context, score models.RiskScore, _ *models.RiskScore, _ models.RiskConfig) (AlertOutcome, error) {
	return f.outcomes[score.StudentID], nil
}

type fakeConfigProvider struct {
	cfg *models.RiskConfig
	err error
}

func (f *fakeConfigProvider) Current(context.Context) (*models.RiskConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

type fakeRefresher struct {
	summary models.FunnelRefreshSummary
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeRefresher) RefreshDayCounts(context.Context) (models.FunnelRefreshSummary, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.summary, f.err
}

func activeStudents(ids ...string) []models.Student {
	out := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Student{ID: id, Status: models.StudentActive})
	}
	return out
}

func newBatchService(lister batchStudentLister, metric factorAggregator, scores scoreStore, alerts alertEvaluator, config configProvider, refresher dayCountRefresher) *BatchService {
	return NewBatchService(lister, metric, NewRiskService(), scores, alerts, config, refresher, nil, nil, nil)
}

func TestRunRiskBatchIsolatesStudentFailures(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	cfg.Version = 3
	healthy := fullFactor()
	failing := fullFactor()

	lister := &fakeBatchLister{students: activeStudents("s1", "s2", "s3", "s4")}
	aggregator := &fakeAggregator{results: map[string]aggregateResult{
		"s1": {factor: &healthy, applicable: true},
		"s2": {err: errors.New("activity query timed out")},
		"s3": {applicable: false},
		"s4": {factor: &failing, applicable: true},
	}}
	store := &fakeScoreStore{latest: map[string]*models.RiskScore{}, insertErr: map[string]error{}}
	alerts := &fakeAlertEvaluator{outcomes: map[string]AlertOutcome{
		"s4": {Created: 1},
	}}

	svc := newBatchService(lister, aggregator, store, alerts, &fakeConfigProvider{cfg: &cfg}, nil)
	summary, err := svc.RunRiskBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Considered)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, 3, summary.ConfigVersion)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "s2", summary.Failures[0].StudentID)

	// Only applicable students produced a persisted score.
	require.Len(t, store.inserted, 2)
	assert.Equal(t, "s1", store.inserted[0].StudentID)
	assert.Equal(t, "s4", store.inserted[1].StudentID)
}

func TestRunRiskBatchScoreInsertFailureIsPerStudent(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	factor := fullFactor()

	lister := &fakeBatchLister{students: activeStudents("s1", "s2")}
	aggregator := &fakeAggregator{results: map[string]aggregateResult{
		"s1": {factor: &factor, applicable: true},
		"s2": {factor: &factor, applicable: true},
	}}
	store := &fakeScoreStore{
		latest:    map[string]*models.RiskScore{},
		insertErr: map[string]error{"s1": errors.New("duplicate key")},
	}

	svc := newBatchService(lister, aggregator, store, &fakeAlertEvaluator{}, &fakeConfigProvider{cfg: &cfg}, nil)
	summary, err := svc.RunRiskBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Considered)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunRiskBatchFailsWithoutConfig(t *testing.T) {
	svc := newBatchService(
		&fakeBatchLister{}, &fakeAggregator{}, &fakeScoreStore{},
		&fakeAlertEvaluator{}, &fakeConfigProvider{err: errors.New("config store down")}, nil)

	_, err := svc.RunRiskBatch(context.Background())
	require.Error(t, err)
}

func TestRunRiskBatchRejectsConcurrentRun(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	lister := &fakeBatchLister{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newBatchService(lister, &fakeAggregator{}, &fakeScoreStore{}, &fakeAlertEvaluator{}, &fakeConfigProvider{cfg: &cfg}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunRiskBatch(context.Background())
	}()

	<-lister.started
	_, err := svc.RunRiskBatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBatchRunning.Code, appErrors.FromError(err).Code)

	close(lister.release)
	<-done

	// Guard is released once the first run finishes.
	_, err = svc.RunRiskBatch(context.Background())
	require.NoError(t, err)
}

func TestRunRiskBatchStopsOnCancelledContext(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	lister := &fakeBatchLister{students: activeStudents("s1", "s2")}
	svc := newBatchService(lister, &fakeAggregator{}, &fakeScoreStore{}, &fakeAlertEvaluator{}, &fakeConfigProvider{cfg: &cfg}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := svc.RunRiskBatch(ctx)
	require.Error(t, err)
	assert.Zero(t, summary.Considered)
}

func TestRunFunnelRefreshReturnsSummary(t *testing.T) {
	refresher := &fakeRefresher{summary: models.FunnelRefreshSummary{Considered: 12, Updated: 4}}
	svc := newBatchService(nil, nil, nil, nil, nil, refresher)

	summary, err := svc.RunFunnelRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Considered)
	assert.Equal(t, 4, summary.Updated)
}

func TestRunFunnelRefreshRejectsConcurrentRun(t *testing.T) {
	refresher := &fakeRefresher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newBatchService(nil, nil, nil, nil, nil, refresher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunFunnelRefresh(context.Background())
	}()

	<-refresher.started
	_, err := svc.RunFunnelRefresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBatchRunning.Code, appErrors.FromError(err).Code)

	close(refresher.release)
	<-done
}

func TestFunnelRefreshDoesNotBlockRiskBatch(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	refresher := &fakeRefresher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newBatchService(&fakeBatchLister{}, &fakeAggregator{}, &fakeScoreStore{}, &fakeAlertEvaluator{}, &fakeConfigProvider{cfg: &cfg}, refresher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunFunnelRefresh(context.Background())
	}()

	<-refresher.started
	_, err := svc.RunRiskBatch(context.Background())
	require.NoError(t, err)

	close(refresher.release)
	<-done
}

func TestRunRiskBatchRecordsDuration(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	svc := newBatchService(&fakeBatchLister{}, &fakeAggregator{}, &fakeScoreStore{}, &fakeAlertEvaluator{}, &fakeConfigProvider{cfg: &cfg}, nil)

	before := time.Now().UTC()
	summary, err := svc.RunRiskBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.StartedAt.Before(before.Truncate(time.Second)))
	assert.GreaterOrEqual(t, summary.DurationMs, int64(0))
}
