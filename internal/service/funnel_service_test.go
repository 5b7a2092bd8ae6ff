package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type fakeFunnelRepo struct {
	events     []models.FunnelEvent
	inserted   []*models.FunnelEvent
	dayUpdates map[string]int
	listErr    error
}

func newFakeFunnelRepo() *fakeFunnelRepo {
	return &fakeFunnelRepo{dayUpdates: map[string]int{}}
}

func (f *fakeFunnelRepo) Insert(_ context.Context, event *models.FunnelEvent) error {
	f.inserted = append(f.inserted, event)
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeFunnelRepo) ListEvents(context.Context, models.FunnelEventFilter) ([]models.FunnelEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeFunnelRepo) ListByStudent(_ context.Context, studentID string) ([]models.FunnelEvent, error) {
	var out []models.FunnelEvent
	for _, ev := range f.events {
		if ev.StudentID == studentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeFunnelRepo) StudentIDsWithEvents(context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var ids []string
	for _, ev := range f.events {
		if _, ok := seen[ev.StudentID]; !ok {
			seen[ev.StudentID] = struct{}{}
			ids = append(ids, ev.StudentID)
		}
	}
	return ids, nil
}

func (f *fakeFunnelRepo) UpdateDayCount(_ context.Context, eventID string, days int) error {
	f.dayUpdates[eventID] = days
	return nil
}

func stagePtr(s models.FunnelStage) *models.FunnelStage { return &s }

func eventAt(student string, stage models.FunnelStage, at time.Time) models.FunnelEvent {
	return models.FunnelEvent{
		ID:         student + "/" + string(stage) + "/" + at.Format(time.RFC3339),
		StudentID:  student,
		EventType:  stage,
		OccurredAt: at,
	}
}

func TestReduceBottlenecksDropoutRates(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	base := now.AddDate(0, 0, -30)

	// 100 students reach consultation_scheduled, 40 drop from it.
	var events []models.FunnelEvent
	for i := 0; i < 100; i++ {
		student := fmt.Sprintf("s%03d", i)
		events = append(events, eventAt(student, models.StageConsultationScheduled, base))
		if i < 40 {
			drop := eventAt(student, models.StageDroppedOff, base.AddDate(0, 0, 3))
			drop.FromStage = stagePtr(models.StageConsultationScheduled)
			events = append(events, drop)
		}
	}

	resp := reduceBottlenecks(events, now)
	require.NotEmpty(t, resp.Stages)

	worst := resp.Stages[0]
	assert.Equal(t, models.StageConsultationScheduled, worst.Stage)
	assert.Equal(t, 100, worst.Entries)
	assert.Equal(t, 40, worst.Dropouts)
	assert.InDelta(t, 40.0, worst.DropoutRate, 0.001)
	require.NotNil(t, resp.WorstStage)
	assert.Equal(t, models.StageConsultationScheduled, *resp.WorstStage)
}

func TestReduceBottlenecksNoDropoutsNoWorstStage(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	events := []models.FunnelEvent{
		eventAt("s1", models.StageFirstContact, now.AddDate(0, 0, -10)),
		eventAt("s1", models.StageConsultationScheduled, now.AddDate(0, 0, -8)),
	}

	resp := reduceBottlenecks(events, now)
	assert.Nil(t, resp.WorstStage)
	for _, stage := range resp.Stages {
		assert.Zero(t, stage.DropoutRate)
	}
}

func TestReduceTransitionsCountsAndAverages(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	events := []models.FunnelEvent{
		eventAt("s1", models.StageFirstContact, base),
		eventAt("s1", models.StageConsultationScheduled, base.AddDate(0, 0, 2)),
		eventAt("s2", models.StageFirstContact, base),
		eventAt("s2", models.StageConsultationScheduled, base.AddDate(0, 0, 6)),
		eventAt("s3", models.StageFirstContact, base),
	}

	resp := reduceTransitions(events)
	require.Len(t, resp.Transitions, 1)

	tr := resp.Transitions[0]
	assert.Equal(t, models.StageFirstContact, tr.FromStage)
	assert.Equal(t, models.StageConsultationScheduled, tr.ToStage)
	assert.Equal(t, 2, tr.Count)
	assert.InDelta(t, 4.0, tr.AvgDays, 0.001)
}

func TestReduceTransitionsPrefersStoredDayCounts(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	second := eventAt("s1", models.StageConsultationScheduled, base.AddDate(0, 0, 10))
	second.DaysFromPrevious = intPtr(3)
	events := []models.FunnelEvent{
		eventAt("s1", models.StageFirstContact, base),
		second,
	}

	resp := reduceTransitions(events)
	require.Len(t, resp.Transitions, 1)
	assert.InDelta(t, 3.0, resp.Transitions[0].AvgDays, 0.001)
}

func TestReduceCohortsCumulativeConversion(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	events := []models.FunnelEvent{
		eventAt("s1", models.StageFirstContact, jan),
		eventAt("s1", models.StageTestCompleted, jan.AddDate(0, 0, 20)),
		eventAt("s1", models.StageRegistrationCompleted, jan.AddDate(0, 1, 5)),
		eventAt("s2", models.StageFirstContact, jan.AddDate(0, 0, 2)),
		eventAt("s2", models.StageTestCompleted, jan.AddDate(0, 2, 0)),
		eventAt("s3", models.StageFirstContact, jan.AddDate(0, 0, 4)),
	}

	resp := reduceCohorts(events, now)
	require.Len(t, resp.Cohorts, 1)

	cohort := resp.Cohorts[0]
	assert.Equal(t, "2026-01", cohort.CohortMonth)
	assert.Equal(t, 3, cohort.Size)
	// s1 converts in month 0, s2 in month 2; counts are cumulative.
	assert.Equal(t, []int{1, 1, 2, 2}, cohort.TestCompleted)
	assert.Equal(t, []int{0, 1, 1, 1}, cohort.Registered)
	assert.InDelta(t, 66.7, cohort.TestRate, 0.001)
	assert.InDelta(t, 33.3, cohort.RegistrationRate, 0.001)
	// Only two calendar months elapsed: still inside the tracking window.
	assert.True(t, cohort.IsOngoing)
}

func TestReduceCohortsClosedCohortIsNotOngoing(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	sep := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

	events := []models.FunnelEvent{
		eventAt("s1", models.StageFirstContact, sep),
	}
	resp := reduceCohorts(events, now)
	require.Len(t, resp.Cohorts, 1)
	assert.Equal(t, "2025-09", resp.Cohorts[0].CohortMonth)
	assert.False(t, resp.Cohorts[0].IsOngoing)
}

func TestRecordEventComputesDayGap(t *testing.T) {
	repo := newFakeFunnelRepo()
	svc := NewFunnelService(repo, nil, time.Minute, nil, nil)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	first, err := svc.RecordEvent(context.Background(), dto.CreateFunnelEventRequest{
		StudentID: "s1",
		EventType: string(models.StageFirstContact),
	})
	require.NoError(t, err)
	assert.Nil(t, first.DaysFromPrevious)

	later := base.AddDate(0, 0, 4)
	svc.now = func() time.Time { return later }
	second, err := svc.RecordEvent(context.Background(), dto.CreateFunnelEventRequest{
		StudentID: "s1",
		EventType: string(models.StageConsultationScheduled),
	})
	require.NoError(t, err)
	require.NotNil(t, second.DaysFromPrevious)
	assert.Equal(t, 4, *second.DaysFromPrevious)
}

func TestRecordEventRejectsUnknownStage(t *testing.T) {
	svc := NewFunnelService(newFakeFunnelRepo(), nil, time.Minute, nil, nil)

	_, err := svc.RecordEvent(context.Background(), dto.CreateFunnelEventRequest{
		StudentID: "s1",
		EventType: "window_shopping",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRefreshDayCountsCorrectsDrift(t *testing.T) {
	repo := newFakeFunnelRepo()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	first := eventAt("s1", models.StageFirstContact, base)
	second := eventAt("s1", models.StageConsultationScheduled, base.AddDate(0, 0, 7))
	second.DaysFromPrevious = intPtr(2) // stale
	third := eventAt("s1", models.StageConsultationCompleted, base.AddDate(0, 0, 9))
	third.DaysFromPrevious = intPtr(2) // already correct
	repo.events = []models.FunnelEvent{first, second, third}

	svc := NewFunnelService(repo, nil, time.Minute, nil, nil)
	summary, err := svc.RefreshDayCounts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Considered)
	assert.Equal(t, 1, summary.Updated)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 7, repo.dayUpdates[second.ID])
}

func TestRefreshDayCountsStopsOnCancel(t *testing.T) {
	repo := newFakeFunnelRepo()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	repo.events = []models.FunnelEvent{eventAt("s1", models.StageFirstContact, base)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewFunnelService(repo, nil, time.Minute, nil, nil)
	_, err := svc.RefreshDayCounts(ctx)
	require.Error(t, err)
}
