package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/markbookhq/markbook-api/internal/lms"
	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
	"github.com/markbookhq/markbook-api/pkg/worker"
)

type externalDirectory interface {
	SearchStudents(ctx context.Context, q lms.SearchQuery) ([]models.ExternalCandidate, error)
	FetchRoster(ctx context.Context, courseID string, page int) ([]models.ExternalCandidate, error)
}

type reconcileRecordRepository interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.GradeRecord, error)
	UpdateIdentity(ctx context.Context, id, fullName, email string) error
}

type studentRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

// LookupCache caches external search results between reconciliation runs.
type LookupCache interface {
	GetCandidates(ctx context.Context, key string) ([]models.ExternalCandidate, error)
	SetCandidates(ctx context.Context, key string, candidates []models.ExternalCandidate) error
}

// ReconcileService fills in missing or stale emails on grade records by
// looking students up in the external LMS, and imports the LMS roster into
// the local student registry.
type ReconcileService struct {
	directory externalDirectory
	records   reconcileRecordRepository
	students  studentRepository
	cache     LookupCache
	matcher   *IdentityMatcher
	metrics   *MetricsService
	logger    *zap.Logger
	courseID  string
	workers   int
}

// ReconcileOptions tunes one reconciliation run.
type ReconcileOptions struct {
	// Workers above 1 enables the bounded concurrent mode. All lookups share
	// the directory client's cached session token.
	Workers int
	// DryRun matches and reports without writing any email.
	DryRun bool
}

// NewReconcileService constructs the service. Cache and metrics may be nil.
func NewReconcileService(directory externalDirectory, records reconcileRecordRepository, students studentRepository, cache LookupCache, matcher *IdentityMatcher, metrics *MetricsService, courseID string, workers int, logger *zap.Logger) *ReconcileService {
	if matcher == nil {
		matcher = NewIdentityMatcher(nil, 0)
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		directory: directory,
		records:   records,
		students:  students,
		cache:     cache,
		matcher:   matcher,
		metrics:   metrics,
		logger:    logger,
		courseID:  courseID,
		workers:   workers,
	}
}

// ReconcileSubjectEmails matches every grade record in the subject against
// the LMS and writes back the matched name and email where either differs.
// A failure on
// one record is recorded in the report and never stops the others. Running
// it twice in a row produces no second wave of updates.
func (s *ReconcileService) ReconcileSubjectEmails(ctx context.Context, subjectID string, opts ReconcileOptions) (*models.ReconcileReport, error) {
	records, err := s.records.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade records")
	}

	report := &models.ReconcileReport{Total: len(records)}
	workers := opts.Workers
	if workers < 1 {
		workers = s.workers
	}

	if workers <= 1 {
		for i := range records {
			s.reconcileOne(ctx, &records[i], opts.DryRun, report, nil)
		}
	} else {
		var mu sync.Mutex
		tasks := make([]worker.Task, len(records))
		for i := range records {
			record := &records[i]
			tasks[i] = func(taskCtx context.Context) {
				s.reconcileOne(taskCtx, record, opts.DryRun, report, &mu)
			}
		}
		pool := worker.NewPool(worker.PoolConfig{Workers: workers, Logger: s.logger})
		pool.Run(ctx, tasks)
	}

	s.logger.Info("email reconciliation finished",
		zap.String("subject_id", subjectID),
		zap.Int("total", report.Total),
		zap.Int("updated", report.Updated),
		zap.Int("not_found", report.NotFound),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// reconcileOne resolves a single record. When mu is non-nil the report is
// shared across workers and every mutation takes the lock.
func (s *ReconcileService) reconcileOne(ctx context.Context, record *models.GradeRecord, dryRun bool, report *models.ReconcileReport, mu *sync.Mutex) {
	tally := func(fn func()) {
		if mu != nil {
			mu.Lock()
			defer mu.Unlock()
		}
		fn()
	}

	candidates, err := s.lookup(ctx, record.StudentNumber, record.StudentName)
	if err != nil {
		s.observeOutcome("error")
		tally(func() {
			report.Errors = append(report.Errors, models.ReconcileError{Key: record.StudentNumber, Message: err.Error()})
		})
		return
	}

	result := s.matcher.Match(candidates, record.StudentName)
	if result.State == MatchNone {
		s.observeOutcome("not_found")
		tally(func() { report.NotFound++ })
		return
	}

	// Missing candidate fields keep the stored value rather than blanking it.
	newName := record.StudentName
	if trimmed := strings.TrimSpace(result.Candidate.FullName); trimmed != "" {
		newName = trimmed
	}
	newEmail := record.Email
	if result.Candidate.Email != "" {
		newEmail = result.Candidate.Email
	}
	if newName == strings.TrimSpace(record.StudentName) && sameEmail(record.Email, newEmail) {
		s.observeOutcome("unchanged")
		return
	}
	if dryRun {
		s.observeOutcome("updated")
		tally(func() { report.Updated++ })
		return
	}
	if err := s.records.UpdateIdentity(ctx, record.ID, newName, newEmail); err != nil {
		s.observeOutcome("error")
		tally(func() {
			report.Errors = append(report.Errors, models.ReconcileError{Key: record.StudentNumber, Message: err.Error()})
		})
		return
	}
	s.observeOutcome("updated")
	tally(func() { report.Updated++ })
}

// lookup consults the cache first, then the directory, caching what it finds.
func (s *ReconcileService) lookup(ctx context.Context, idHint, name string) ([]models.ExternalCandidate, error) {
	cacheKey := "lookup:" + idHint + ":" + strings.ToLower(strings.TrimSpace(name))
	if s.cache != nil {
		if candidates, err := s.cache.GetCandidates(ctx, cacheKey); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return candidates, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
	}

	start := time.Now()
	candidates, err := s.directory.SearchStudents(ctx, lms.SearchQuery{IDHint: idHint, SearchText: name})
	if s.metrics != nil {
		s.metrics.ObserveLookup(time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if cacheErr := s.cache.SetCandidates(ctx, cacheKey, candidates); cacheErr != nil {
			s.logger.Warn("lookup cache write failed", zap.Error(cacheErr))
		}
	}
	return candidates, nil
}

// ImportStudents pulls the full roster for the configured course and creates
// or updates local students keyed by external ID. Unchanged rows are counted
// as skipped, so a rerun against the same roster reports zero writes.
func (s *ReconcileService) ImportStudents(ctx context.Context) (*models.ImportReport, error) {
	report := &models.ImportReport{}
	for page := 1; ; page++ {
		candidates, err := s.directory.FetchRoster(ctx, s.courseID, page)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}
		for i := range candidates {
			s.importOne(ctx, &candidates[i], report)
		}
	}

	s.logger.Info("roster import finished",
		zap.String("course_id", s.courseID),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func (s *ReconcileService) importOne(ctx context.Context, candidate *models.ExternalCandidate, report *models.ImportReport) {
	if candidate.ExternalID == "" {
		report.Errors = append(report.Errors, models.ReconcileError{Key: candidate.FullName, Message: "roster entry has no external id"})
		return
	}

	existing, err := s.students.FindByExternalID(ctx, candidate.ExternalID)
	if err != nil && err != sql.ErrNoRows {
		report.Errors = append(report.Errors, models.ReconcileError{Key: candidate.ExternalID, Message: fmt.Sprintf("lookup failed: %v", err)})
		return
	}

	if existing == nil || err == sql.ErrNoRows {
		student := &models.Student{
			ExternalID:    candidate.ExternalID,
			StudentNumber: candidate.IDNumber,
			FullName:      candidate.FullName,
			Email:         candidate.Email,
			Active:        true,
		}
		if err := s.students.Create(ctx, student); err != nil {
			report.Errors = append(report.Errors, models.ReconcileError{Key: candidate.ExternalID, Message: fmt.Sprintf("create failed: %v", err)})
			return
		}
		report.Created++
		return
	}

	if existing.FullName == candidate.FullName &&
		sameEmail(existing.Email, candidate.Email) &&
		existing.StudentNumber == candidate.IDNumber {
		report.Skipped++
		return
	}

	existing.FullName = candidate.FullName
	existing.Email = candidate.Email
	existing.StudentNumber = candidate.IDNumber
	if err := s.students.Update(ctx, existing); err != nil {
		report.Errors = append(report.Errors, models.ReconcileError{Key: candidate.ExternalID, Message: fmt.Sprintf("update failed: %v", err)})
		return
	}
	report.Updated++
}

func (s *ReconcileService) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveReconcileOutcome(outcome)
	}
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
