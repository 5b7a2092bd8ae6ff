package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/storage"
)

type fakeScoreLister struct {
	scores     []models.RiskScore
	lastFilter models.RiskScoreFilter
}

func (f *fakeScoreLister) List(_ context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, int, error) {
	f.lastFilter = filter
	return f.scores, len(f.scores), nil
}

func newExportFixture(t *testing.T, scores []models.RiskScore) (*ExportService, *fakeScoreLister) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	lister := &fakeScoreLister{scores: scores}
	return NewExportService(lister, store, signer, nil, nil), lister
}

func rosterScores() []models.RiskScore {
	attendance := 55.0
	return []models.RiskScore{
		{
			ID:        "r1",
			StudentID: "s1",
			Score:     31.7,
			Level:     models.RiskHigh,
			Trend:     models.TrendWorsening,
			Factors:   models.RiskFactor{AttendanceRate: &attendance, MissingTests: 3},
		},
		{
			ID:        "r2",
			StudentID: "s2",
			Score:     66.0,
			Level:     models.RiskMedium,
			Trend:     models.TrendStable,
		},
	}
}

func TestCreateRosterExportCSVRoundTrip(t *testing.T) {
	svc, lister := newExportFixture(t, rosterScores())

	resp, err := svc.CreateRosterExport(context.Background(), dto.CreateExportRequest{Format: "csv", Level: "high"})
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, lister.lastFilter.Level)
	assert.Contains(t, resp.URL, "token=")
	assert.False(t, resp.ExpiresAt.IsZero())

	file, relPath, err := svc.OpenDownload(resp.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(relPath, "roster.csv"))

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	body := string(content)
	assert.Contains(t, body, "student_id")
	assert.Contains(t, body, "s1")
	assert.Contains(t, body, "31.7")
	// Absent factors render empty, not zero.
	assert.Contains(t, body, ",,")
}

func TestCreateRosterExportPDF(t *testing.T) {
	svc, _ := newExportFixture(t, rosterScores())

	resp, err := svc.CreateRosterExport(context.Background(), dto.CreateExportRequest{Format: "pdf"})
	require.NoError(t, err)

	file, relPath, err := svc.OpenDownload(resp.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(relPath, "roster.pdf"))

	header := make([]byte, 4)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestCreateRosterExportValidatesFormat(t *testing.T) {
	svc, _ := newExportFixture(t, nil)

	_, err := svc.CreateRosterExport(context.Background(), dto.CreateExportRequest{Format: "xlsx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOpenDownloadRejectsTamperedToken(t *testing.T) {
	svc, _ := newExportFixture(t, rosterScores())

	resp, err := svc.CreateRosterExport(context.Background(), dto.CreateExportRequest{Format: "csv"})
	require.NoError(t, err)

	_, _, err = svc.OpenDownload(resp.Token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
