package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/export"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
)

// exportRosterLimit caps how many students one roster export renders.
const exportRosterLimit = 5000

type exportScoreLister interface {
	List(ctx context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, int, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error)
}

// ExportService renders the current risk roster to CSV or PDF files
// served through signed download tokens.
type ExportService struct {
	scores    exportScoreLister
	storage   exportStorage
	signer    exportSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(scores exportScoreLister, storage exportStorage, signer exportSigner, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		scores:    scores,
		storage:   storage,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateRosterExport renders the latest score per student into a file
// and returns its signed download token.
func (s *ExportService) CreateRosterExport(ctx context.Context, req dto.CreateExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	filter := models.RiskScoreFilter{Limit: exportRosterLimit}
	if req.Level != "" {
		filter.Level = models.RiskLevel(req.Level)
	}
	scores, _, err := s.scores.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk roster")
	}

	dataset := rosterDataset(scores)
	exportID := uuid.NewString()

	var payload []byte
	var filename string
	switch req.Format {
	case "pdf":
		payload, err = s.pdf.Render(dataset, "Risk Roster")
		filename = fmt.Sprintf("%s/roster.pdf", exportID)
	default:
		payload, err = s.csv.Render(dataset)
		filename = fmt.Sprintf("%s/roster.csv", exportID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	s.logger.Info("risk roster exported",
		zap.String("export_id", exportID),
		zap.String("format", req.Format),
		zap.Int("rows", len(scores)))

	return &dto.ExportResponse{
		URL:       "/exports/download?token=" + token,
		Token:     token,
		Format:    req.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenDownload resolves a signed token into the stored file.
func (s *ExportService) OpenDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	return file, relPath, nil
}

// Cleanup removes expired export files. Invoked from the background
// queue on a timer.
func (s *ExportService) Cleanup(ttl time.Duration) {
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export cleanup removed files", zap.Int("count", len(deleted)))
	}
}

func rosterDataset(scores []models.RiskScore) export.Dataset {
	headers := []string{"student_id", "score", "level", "trend", "attendance_rate", "homework_avg", "focus_avg", "test_avg", "missing_tests", "days_since_contact", "computed_at"}
	rows := make([]map[string]string, 0, len(scores))
	for _, score := range scores {
		rows = append(rows, map[string]string{
			"student_id":         score.StudentID,
			"score":              strconv.FormatFloat(score.Score, 'f', 1, 64),
			"level":              string(score.Level),
			"trend":              string(score.Trend),
			"attendance_rate":    formatOptionalFloat(score.Factors.AttendanceRate),
			"homework_avg":       formatOptionalFloat(score.Factors.HomeworkAvg),
			"focus_avg":          formatOptionalFloat(score.Factors.FocusAvg),
			"test_avg":           formatOptionalFloat(score.Factors.TestAvg),
			"missing_tests":      strconv.Itoa(score.Factors.MissingTests),
			"days_since_contact": formatOptionalInt(score.Factors.DaysSinceContact),
			"computed_at":        score.ComputedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
