package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

type gradeRecordRepository interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.GradeRecord, error)
	FindByID(ctx context.Context, id string) (*models.GradeRecord, error)
	Upsert(ctx context.Context, record *models.GradeRecord) error
	UpdateComputed(ctx context.Context, id string, computed *models.ComputedGrade) error
}

// ComputeSummary reports one subject-wide computation run.
type ComputeSummary struct {
	SubjectID string  `json:"subject_id"`
	Records   int     `json:"records"`
	Passing   int     `json:"passing"`
	Average   float64 `json:"average"`
}

// GradeService orchestrates grade computation: it loads the subject's grading
// system and records, runs the engine over them, and persists the results.
type GradeService struct {
	systems gradingSystemRepository
	records gradeRecordRepository
	engine  *GradeEngine
	metrics *MetricsService
	logger  *zap.Logger
}

// NewGradeService constructs the service. The metrics sink may be nil.
func NewGradeService(systems gradingSystemRepository, records gradeRecordRepository, engine *GradeEngine, metrics *MetricsService, logger *zap.Logger) *GradeService {
	if engine == nil {
		engine = NewGradeEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{systems: systems, records: records, engine: engine, metrics: metrics, logger: logger}
}

// ComputeSubject recomputes every record in the subject against the current
// grading system and stores the results. The system is validated up front so
// a broken weight contract recomputes nothing.
func (s *GradeService) ComputeSubject(ctx context.Context, subjectID string) (*ComputeSummary, error) {
	system, err := s.loadSystem(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := ValidateGradingSystem(system); err != nil {
		return nil, err
	}

	records, err := s.records.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade records")
	}

	summary := &ComputeSummary{SubjectID: subjectID, Records: len(records)}
	total := 0.0
	for i := range records {
		computed, err := s.engine.Compute(system, records[i].Grades, records[i].MaxScores)
		if err != nil {
			return nil, err
		}
		if err := s.records.UpdateComputed(ctx, records[i].ID, computed); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store computed grade")
		}
		total += computed.FinalGrade
		if computed.FinalGrade >= system.PassingGrade {
			summary.Passing++
		}
	}
	if summary.Records > 0 {
		summary.Average = total / float64(summary.Records)
	}

	if s.metrics != nil {
		s.metrics.ObserveComputeRun(subjectID, summary.Records)
	}
	s.logger.Info("subject grades recomputed",
		zap.String("subject_id", subjectID),
		zap.Int("records", summary.Records),
		zap.Int("passing", summary.Passing))
	return summary, nil
}

// ComputeRecord recomputes a single record on demand, without persisting,
// for preview use.
func (s *GradeService) ComputeRecord(ctx context.Context, recordID string) (*models.ComputedGrade, error) {
	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	system, err := s.loadSystem(ctx, record.SubjectID)
	if err != nil {
		return nil, err
	}
	return s.engine.Compute(system, record.Grades, record.MaxScores)
}

// GetRecord returns a grade record with its stored computation, if any.
func (s *GradeService) GetRecord(ctx context.Context, recordID string) (*models.GradeRecord, error) {
	return s.findRecord(ctx, recordID)
}

// PutScores replaces a record's raw score and max score maps, then recomputes
// and stores its grade in the same call if the subject is configured.
func (s *GradeService) PutScores(ctx context.Context, recordID string, grades, maxScores models.ScoreMap) (*models.GradeRecord, error) {
	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	record.Grades = grades
	record.MaxScores = maxScores
	if err := s.records.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scores")
	}

	system, err := s.loadSystem(ctx, record.SubjectID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotConfigured) {
			return record, nil
		}
		return nil, err
	}
	computed, err := s.engine.Compute(system, record.Grades, record.MaxScores)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotConfigured) || appErrors.Is(err, appErrors.ErrCategoryWeights) || appErrors.Is(err, appErrors.ErrComponentWeights) {
			return record, nil
		}
		return nil, err
	}
	if err := s.records.UpdateComputed(ctx, record.ID, computed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store computed grade")
	}
	record.Computed = computed
	return record, nil
}

func (s *GradeService) loadSystem(ctx context.Context, subjectID string) (*models.GradingSystem, error) {
	system, err := s.systems.FindBySubject(ctx, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotConfigured, "no grading system for subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading system")
	}
	return system, nil
}

func (s *GradeService) findRecord(ctx context.Context, recordID string) (*models.GradeRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade record")
	}
	return record, nil
}
