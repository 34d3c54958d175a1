package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/markbookhq/markbook-api/internal/models"
)

// GradingSystemRepository persists one grading system per subject.
type GradingSystemRepository struct {
	db *sqlx.DB
}

// NewGradingSystemRepository creates a new grading system repository.
func NewGradingSystemRepository(db *sqlx.DB) *GradingSystemRepository {
	return &GradingSystemRepository{db: db}
}

// FindBySubject returns the subject's grading system or sql.ErrNoRows.
func (r *GradingSystemRepository) FindBySubject(ctx context.Context, subjectID string) (*models.GradingSystem, error) {
	const query = `SELECT id, subject_id, passing_grade, categories, created_at, updated_at
        FROM grading_systems WHERE subject_id = $1`
	var system models.GradingSystem
	if err := r.db.GetContext(ctx, &system, query, subjectID); err != nil {
		return nil, err
	}
	return &system, nil
}

// Upsert inserts or replaces the grading system for its subject.
func (r *GradingSystemRepository) Upsert(ctx context.Context, system *models.GradingSystem) error {
	if system.ID == "" {
		system.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if system.CreatedAt.IsZero() {
		system.CreatedAt = now
	}
	system.UpdatedAt = now
	const query = `INSERT INTO grading_systems (id, subject_id, passing_grade, categories, created_at, updated_at)
        VALUES (:id, :subject_id, :passing_grade, :categories, :created_at, :updated_at)
        ON CONFLICT (subject_id)
        DO UPDATE SET passing_grade = EXCLUDED.passing_grade, categories = EXCLUDED.categories, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, system); err != nil {
		return fmt.Errorf("upsert grading system: %w", err)
	}
	return nil
}
