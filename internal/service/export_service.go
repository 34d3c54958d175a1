package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
	"github.com/markbookhq/markbook-api/pkg/export"
	"github.com/markbookhq/markbook-api/pkg/storage"
)

// ExportFormat names a gradesheet output format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes gradesheet export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures a generated gradesheet and its signed download URL.
type ExportResult struct {
	RelativePath string       `json:"-"`
	Token        string       `json:"token"`
	URL          string       `json:"url"`
	Format       ExportFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportService renders a subject's gradesheet to CSV or PDF, stores the
// file, and hands back a signed, expiring download link.
type ExportService struct {
	systems gradingSystemRepository
	records gradeRecordRepository
	subject subjectReader
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// NewExportService constructs the service.
func NewExportService(systems gradingSystemRepository, records gradeRecordRepository, subject subjectReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		systems: systems,
		records: records,
		subject: subject,
		storage: files,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// GenerateGradesheet renders the subject's current computed grades. Records
// without a stored computation show blank grade cells rather than zeros.
func (s *ExportService) GenerateGradesheet(ctx context.Context, subjectID string, format ExportFormat) (*ExportResult, error) {
	system, err := s.systems.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotConfigured, "no grading system for subject")
	}
	records, err := s.records.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade records")
	}

	title := "Gradesheet"
	if s.subject != nil {
		if subject, err := s.subject.FindByID(ctx, subjectID); err == nil {
			title = fmt.Sprintf("Gradesheet - %s %s", subject.Code, subject.Name)
		}
	}

	dataset := buildGradesheet(system, records)

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradesheet")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("gradesheet_%s_%s.%s", subjectID, exportID[:8], format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store gradesheet")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("gradesheet exported",
		zap.String("subject_id", subjectID),
		zap.String("format", string(format)),
		zap.Int("records", len(records)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// OpenByToken validates a download token and opens the stored file.
func (s *ExportService) OpenByToken(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, nil
}

// Cleanup removes stored exports older than the configured TTL.
func (s *ExportService) Cleanup() {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
}

// buildGradesheet flattens records into one row per student with a column
// per category plus the final grade. Category columns follow the grading
// system's declared order; rows sort by student name.
func buildGradesheet(system *models.GradingSystem, records []models.GradeRecord) export.Dataset {
	headers := []string{"Student Number", "Student Name", "Email"}
	for _, category := range system.Categories {
		headers = append(headers, category.Name)
	}
	headers = append(headers, "Final Grade")

	sorted := make([]models.GradeRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StudentName < sorted[j].StudentName })

	rows := make([][]string, 0, len(sorted))
	for _, record := range sorted {
		row := []string{record.StudentNumber, record.StudentName, record.Email}
		for _, category := range system.Categories {
			cell := ""
			if record.Computed != nil {
				if score, ok := record.Computed.CategoryScores[category.ID]; ok {
					cell = formatGrade(score.Score)
				}
			}
			row = append(row, cell)
		}
		final := ""
		if record.Computed != nil {
			final = formatGrade(record.Computed.FinalGrade)
		}
		row = append(row, final)
		rows = append(rows, row)
	}

	return export.Dataset{Headers: headers, Rows: rows}
}

func formatGrade(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
