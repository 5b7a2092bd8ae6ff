package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	"github.com/noah-isme/academy-pulse-api/internal/repository"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type activityReader interface {
	AttendanceStats(ctx context.Context, studentID string, since time.Time) (repository.AttendanceStats, error)
	StudyStats(ctx context.Context, studentID string, since time.Time) (repository.StudyStats, error)
	TestStats(ctx context.Context, studentID string, since time.Time) (repository.TestStats, error)
	LastContactAt(ctx context.Context, studentID string) (*time.Time, error)
}

type metricStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// MetricService reduces raw activity logs to a RiskFactor snapshot over
// the analysis window. It is a pure read; a factor with zero
// observations is left absent (nil) rather than set to zero so the
// scorer can re-normalize weights around it.
type MetricService struct {
	activity activityReader
	students metricStudentReader
	logger   *zap.Logger
	now      func() time.Time
}

// NewMetricService constructs a MetricService.
func NewMetricService(activity activityReader, students metricStudentReader, logger *zap.Logger) *MetricService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricService{
		activity: activity,
		students: students,
		logger:   logger,
		now:      time.Now,
	}
}

// Aggregate builds the factor snapshot for one student. The second
// return value is false when the student is missing or not in active
// enrollment; that is "not applicable", not an error.
func (s *MetricService) Aggregate(ctx context.Context, studentID string, windowDays int) (*models.RiskFactor, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if windowDays <= 0 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "analysis window must be positive")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if student.Status != models.StudentActive {
		return nil, false, nil
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -windowDays)
	factor := &models.RiskFactor{}

	attendance, err := s.activity.AttendanceStats(ctx, studentID, since)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	if attendance.Scheduled > 0 {
		rate := attendance.Weighted / float64(attendance.Scheduled) * 100
		factor.AttendanceRate = &rate
	}

	study, err := s.activity.StudyStats(ctx, studentID, since)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate study logs")
	}
	if study.HomeworkCount > 0 && study.HomeworkAvg.Valid {
		avg := study.HomeworkAvg.Float64
		factor.HomeworkAvg = &avg
	}
	if study.FocusCount > 0 && study.FocusAvg.Valid {
		avg := study.FocusAvg.Float64
		factor.FocusAvg = &avg
	}

	tests, err := s.activity.TestStats(ctx, studentID, since)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate test results")
	}
	if tests.Graded > 0 && tests.ScoreAvg.Valid {
		avg := tests.ScoreAvg.Float64
		factor.TestAvg = &avg
	}
	factor.MissingTests = tests.Missing

	lastContact, err := s.activity.LastContactAt(ctx, studentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch last contact")
	}
	if lastContact != nil {
		days := int(now.Sub(lastContact.UTC()).Hours() / 24)
		if days < 0 {
			days = 0
		}
		factor.DaysSinceContact = &days
	}

	return factor, true, nil
}
