package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type funnelRepository interface {
	Insert(ctx context.Context, event *models.FunnelEvent) error
	ListEvents(ctx context.Context, filter models.FunnelEventFilter) ([]models.FunnelEvent, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.FunnelEvent, error)
	StudentIDsWithEvents(ctx context.Context) ([]string, error)
	UpdateDayCount(ctx context.Context, eventID string, days int) error
}

// FunnelService reduces the append-only event log into bottleneck,
// transition and cohort aggregates. All reducers work off one
// chronological read of the log; nothing is pre-aggregated in SQL so
// the rounding and cohort-window rules live in exactly one place.
type FunnelService struct {
	repo      funnelRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFunnelService constructs a FunnelService.
func NewFunnelService(repo funnelRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *FunnelService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FunnelService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordEvent appends one stage transition. The elapsed days from the
// student's previous event are computed at write time; the refresh run
// can later correct them if events arrive out of order.
func (s *FunnelService) RecordEvent(ctx context.Context, req dto.CreateFunnelEventRequest) (*models.FunnelEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid funnel event payload")
	}
	stage := models.FunnelStage(req.EventType)
	if !models.ValidFunnelStage(stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown funnel stage: "+req.EventType)
	}

	now := s.now().UTC()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	event := &models.FunnelEvent{
		ID:             uuid.NewString(),
		StudentID:      req.StudentID,
		EventType:      stage,
		LeadSource:     req.LeadSource,
		ContactChannel: req.ContactChannel,
		Metadata:       req.Metadata,
		OccurredAt:     occurredAt,
		CreatedAt:      now,
	}
	if req.FromStage != nil {
		from := models.FunnelStage(*req.FromStage)
		if !models.ValidFunnelStage(from) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown from_stage: "+*req.FromStage)
		}
		event.FromStage = &from
	}
	if req.ToStage != nil {
		to := models.FunnelStage(*req.ToStage)
		if !models.ValidFunnelStage(to) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown to_stage: "+*req.ToStage)
		}
		event.ToStage = &to
	}

	history, err := s.repo.ListByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read student funnel history")
	}
	if n := len(history); n > 0 {
		days := wholeDaysBetween(history[n-1].OccurredAt, occurredAt)
		event.DaysFromPrevious = &days
	}

	if err := s.repo.Insert(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append funnel event")
	}
	s.invalidateAggregates(ctx)
	return event, nil
}

// Bottlenecks computes per-stage dropout aggregates over the filtered
// event log, ranked worst first. The boolean reports a cache hit.
func (s *FunnelService) Bottlenecks(ctx context.Context, filter models.FunnelEventFilter) (*dto.BottleneckResponse, bool, error) {
	cacheKey := funnelCacheKey("bottlenecks", filter)
	var cached dto.BottleneckResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	events, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list funnel events")
	}

	resp := reduceBottlenecks(events, s.now().UTC())
	_ = s.cache.Set(ctx, cacheKey, resp, s.cacheTTL)
	return resp, false, nil
}

// Transitions aggregates consecutive stage pairs per student, most
// frequent first.
func (s *FunnelService) Transitions(ctx context.Context, filter models.FunnelEventFilter) (*dto.TransitionResponse, bool, error) {
	cacheKey := funnelCacheKey("transitions", filter)
	var cached dto.TransitionResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	events, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list funnel events")
	}

	resp := reduceTransitions(events)
	_ = s.cache.Set(ctx, cacheKey, resp, s.cacheTTL)
	return resp, false, nil
}

// Cohorts groups students by the calendar month of their first contact
// and tracks cumulative conversion for months 0..3 after entry.
func (s *FunnelService) Cohorts(ctx context.Context, filter models.FunnelEventFilter) (*dto.CohortResponse, bool, error) {
	cacheKey := funnelCacheKey("cohorts", filter)
	var cached dto.CohortResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	events, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list funnel events")
	}

	resp := reduceCohorts(events, s.now().UTC())
	_ = s.cache.Set(ctx, cacheKey, resp, s.cacheTTL)
	return resp, false, nil
}

// RefreshDayCounts recomputes days_from_previous across every
// student's event chain, updating only rows whose stored value
// disagrees. Per-student failures are summary data, not run errors.
func (s *FunnelService) RefreshDayCounts(ctx context.Context) (models.FunnelRefreshSummary, error) {
	started := s.now().UTC()
	summary := models.FunnelRefreshSummary{StartedAt: started}

	ids, err := s.repo.StudentIDsWithEvents(ctx)
	if err != nil {
		return summary, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list funnel students")
	}

	for _, studentID := range ids {
		if err := ctx.Err(); err != nil {
			summary.DurationMs = time.Since(started).Milliseconds()
			return summary, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "funnel refresh cancelled")
		}
		summary.Considered++
		updated, err := s.refreshStudent(ctx, studentID)
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, models.EntityFailure{StudentID: studentID, Reason: err.Error()})
			s.logger.Warn("funnel day-count refresh failed for student",
				zap.String("student_id", studentID), zap.Error(err))
			continue
		}
		summary.Updated += updated
	}

	summary.DurationMs = time.Since(started).Milliseconds()
	s.invalidateAggregates(ctx)
	return summary, nil
}

func (s *FunnelService) refreshStudent(ctx context.Context, studentID string) (int, error) {
	events, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	updated := 0
	for i := 1; i < len(events); i++ {
		days := wholeDaysBetween(events[i-1].OccurredAt, events[i].OccurredAt)
		if events[i].DaysFromPrevious != nil && *events[i].DaysFromPrevious == days {
			continue
		}
		if err := s.repo.UpdateDayCount(ctx, events[i].ID, days); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *FunnelService) invalidateAggregates(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "funnel:*"); err != nil {
		s.logger.Warn("failed to invalidate funnel cache", zap.Error(err))
	}
}

func funnelCacheKey(kind string, filter models.FunnelEventFilter) string {
	from, to := "", ""
	if filter.DateFrom != nil {
		from = filter.DateFrom.UTC().Format("2006-01-02")
	}
	if filter.DateTo != nil {
		to = filter.DateTo.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("funnel:%s:%s:%s:%s", kind, filter.LeadSource, from, to)
}

// reduceBottlenecks walks each student's chain once. A stage entry is
// an event of that stage; a dropout from it is a dropped_off event
// whose from_stage points back at it.
func reduceBottlenecks(events []models.FunnelEvent, now time.Time) *dto.BottleneckResponse {
	type stageAcc struct {
		entries  int
		dropouts int
		students map[string]struct{}
		channels map[string]int
	}
	acc := make(map[models.FunnelStage]*stageAcc, len(models.FunnelStageOrder))
	for _, stage := range models.FunnelStageOrder {
		acc[stage] = &stageAcc{students: map[string]struct{}{}, channels: map[string]int{}}
	}

	consultations := map[string]int{}
	lastEventAt := map[string]time.Time{}

	for _, ev := range events {
		if ev.EventType == models.StageConsultationCompleted {
			consultations[ev.StudentID]++
		}
		if last, ok := lastEventAt[ev.StudentID]; !ok || ev.OccurredAt.After(last) {
			lastEventAt[ev.StudentID] = ev.OccurredAt
		}
		if ev.EventType == models.StageDroppedOff {
			if ev.FromStage != nil {
				if a, ok := acc[*ev.FromStage]; ok {
					a.dropouts++
				}
			}
			continue
		}
		a, ok := acc[ev.EventType]
		if !ok {
			continue
		}
		a.entries++
		a.students[ev.StudentID] = struct{}{}
		if ev.ContactChannel != nil && *ev.ContactChannel != "" {
			a.channels[*ev.ContactChannel]++
		}
	}

	stages := make([]models.BottleneckDetail, 0, len(models.FunnelStageOrder))
	for _, stage := range models.FunnelStageOrder {
		a := acc[stage]
		detail := models.BottleneckDetail{
			Stage:         stage,
			Entries:       a.entries,
			Dropouts:      a.dropouts,
			ChannelCounts: a.channels,
		}
		if a.entries > 0 {
			detail.DropoutRate = roundRate(float64(a.dropouts) / float64(a.entries))
		}
		if n := len(a.students); n > 0 {
			var totalConsults, totalDays float64
			for id := range a.students {
				totalConsults += float64(consultations[id])
				totalDays += float64(wholeDaysBetween(lastEventAt[id], now))
			}
			detail.AvgConsultations = round1(totalConsults / float64(n))
			detail.AvgDaysSinceContact = math.Round(totalDays / float64(n))
		}
		stages = append(stages, detail)
	}

	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].DropoutRate > stages[j].DropoutRate
	})

	resp := &dto.BottleneckResponse{Stages: stages}
	if len(stages) > 0 && stages[0].Dropouts > 0 {
		worst := stages[0].Stage
		resp.WorstStage = &worst
	}
	return resp
}

// reduceTransitions pairs each student's consecutive events. Elapsed
// days prefer the stored days_from_previous and fall back to the
// timestamp gap.
func reduceTransitions(events []models.FunnelEvent) *dto.TransitionResponse {
	type pair struct {
		from, to models.FunnelStage
	}
	type pairAcc struct {
		count     int
		totalDays float64
	}
	acc := map[pair]*pairAcc{}

	var prev *models.FunnelEvent
	for i := range events {
		ev := &events[i]
		if prev != nil && prev.StudentID == ev.StudentID {
			p := pair{from: prev.EventType, to: ev.EventType}
			a := acc[p]
			if a == nil {
				a = &pairAcc{}
				acc[p] = a
			}
			a.count++
			if ev.DaysFromPrevious != nil {
				a.totalDays += float64(*ev.DaysFromPrevious)
			} else {
				a.totalDays += float64(wholeDaysBetween(prev.OccurredAt, ev.OccurredAt))
			}
		}
		prev = ev
	}

	stats := make([]models.StageTransitionStat, 0, len(acc))
	for p, a := range acc {
		stats = append(stats, models.StageTransitionStat{
			FromStage: p.from,
			ToStage:   p.to,
			Count:     a.count,
			AvgDays:   math.Round(a.totalDays / float64(a.count)),
		})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		if stats[i].FromStage != stats[j].FromStage {
			return stats[i].FromStage < stats[j].FromStage
		}
		return stats[i].ToStage < stats[j].ToStage
	})
	return &dto.TransitionResponse{Transitions: stats}
}

// reduceCohorts buckets students by the calendar month of their first
// event and tracks cumulative test_completed / registration_completed
// counts for month offsets 0..3.
func reduceCohorts(events []models.FunnelEvent, now time.Time) *dto.CohortResponse {
	type studentEntry struct {
		entryAt      time.Time
		testAt       *time.Time
		registeredAt *time.Time
	}
	students := map[string]*studentEntry{}

	for i := range events {
		ev := &events[i]
		entry := students[ev.StudentID]
		if entry == nil {
			entry = &studentEntry{entryAt: ev.OccurredAt}
			students[ev.StudentID] = entry
		}
		if ev.OccurredAt.Before(entry.entryAt) {
			entry.entryAt = ev.OccurredAt
		}
		switch ev.EventType {
		case models.StageTestCompleted:
			if entry.testAt == nil || ev.OccurredAt.Before(*entry.testAt) {
				at := ev.OccurredAt
				entry.testAt = &at
			}
		case models.StageRegistrationCompleted:
			if entry.registeredAt == nil || ev.OccurredAt.Before(*entry.registeredAt) {
				at := ev.OccurredAt
				entry.registeredAt = &at
			}
		}
	}

	cohorts := map[string]*models.CohortRow{}
	for _, entry := range students {
		month := entry.entryAt.UTC().Format("2006-01")
		row := cohorts[month]
		if row == nil {
			row = &models.CohortRow{
				CohortMonth:   month,
				TestCompleted: make([]int, models.CohortMonths),
				Registered:    make([]int, models.CohortMonths),
			}
			cohorts[month] = row
		}
		row.Size++
		if entry.testAt != nil {
			markCumulative(row.TestCompleted, monthOffset(entry.entryAt, *entry.testAt))
		}
		if entry.registeredAt != nil {
			markCumulative(row.Registered, monthOffset(entry.entryAt, *entry.registeredAt))
		}
	}

	rows := make([]models.CohortRow, 0, len(cohorts))
	for _, row := range cohorts {
		last := models.CohortMonths - 1
		row.TestRate = roundRate(float64(row.TestCompleted[last]) / float64(row.Size))
		row.RegistrationRate = roundRate(float64(row.Registered[last]) / float64(row.Size))
		entryMonth, _ := time.Parse("2006-01", row.CohortMonth)
		row.IsOngoing = monthOffset(entryMonth, now) < models.CohortMonths
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CohortMonth < rows[j].CohortMonth })
	return &dto.CohortResponse{Cohorts: rows}
}

// markCumulative increments the cumulative slots from the offset month
// onward. Conversions past the tracked window are dropped.
func markCumulative(slots []int, offset int) {
	if offset < 0 {
		offset = 0
	}
	for m := offset; m < len(slots); m++ {
		slots[m]++
	}
}

// monthOffset is the calendar-month distance between two instants.
func monthOffset(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// wholeDaysBetween truncates the elapsed time to whole days, never
// negative.
func wholeDaysBetween(from, to time.Time) int {
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// roundRate converts a fraction to a percentage with one decimal.
func roundRate(fraction float64) float64 {
	return round1(fraction * 100)
}
