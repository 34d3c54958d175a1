package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/markbookhq/markbook-api/internal/models"
)

// RecordRepository persists grade records. The computed column holds the last
// stored computation as JSONB; it is marshalled explicitly because sqlx does
// not map the field.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

type recordRow struct {
	models.GradeRecord
	ComputedRaw []byte `db:"computed"`
}

func (row *recordRow) toRecord() (*models.GradeRecord, error) {
	record := row.GradeRecord
	if len(row.ComputedRaw) > 0 {
		var computed models.ComputedGrade
		if err := json.Unmarshal(row.ComputedRaw, &computed); err != nil {
			return nil, fmt.Errorf("decode computed grade: %w", err)
		}
		record.Computed = &computed
	}
	return &record, nil
}

const recordColumns = `id, subject_id, student_number, student_name, email, grades, max_scores, computed, access_code_hash, created_at, updated_at`

// ListBySubject returns all grade records in the subject, in student name
// order.
func (r *RecordRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.GradeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM grade_records WHERE subject_id = $1 ORDER BY student_name ASC`, recordColumns)
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("list grade records: %w", err)
	}
	records := make([]models.GradeRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// FindByID returns one grade record or sql.ErrNoRows.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.GradeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM grade_records WHERE id = $1`, recordColumns)
	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toRecord()
}

// Upsert inserts or updates a record's identity and raw scores. The stored
// computation is untouched; UpdateComputed owns that column.
func (r *RecordRepository) Upsert(ctx context.Context, record *models.GradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO grade_records (id, subject_id, student_number, student_name, email, grades, max_scores, access_code_hash, created_at, updated_at)
        VALUES (:id, :subject_id, :student_number, :student_name, :email, :grades, :max_scores, :access_code_hash, :created_at, :updated_at)
        ON CONFLICT (subject_id, student_number)
        DO UPDATE SET student_name = EXCLUDED.student_name, email = EXCLUDED.email,
            grades = EXCLUDED.grades, max_scores = EXCLUDED.max_scores, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert grade record: %w", err)
	}
	return nil
}

// UpdateComputed stores a computation result on the record.
func (r *RecordRepository) UpdateComputed(ctx context.Context, id string, computed *models.ComputedGrade) error {
	payload, err := json.Marshal(computed)
	if err != nil {
		return fmt.Errorf("encode computed grade: %w", err)
	}
	const query = `UPDATE grade_records SET computed = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, payload, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store computed grade: %w", err)
	}
	return requireRowAffected(result, "grade record")
}

// UpdateIdentity writes the reconciled name and email onto the record.
func (r *RecordRepository) UpdateIdentity(ctx context.Context, id, fullName, email string) error {
	const query = `UPDATE grade_records SET student_name = $1, email = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, fullName, email, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update record identity: %w", err)
	}
	return requireRowAffected(result, "grade record")
}

// UpdateAccessCodeHash stores the bcrypt hash for a record's access code.
func (r *RecordRepository) UpdateAccessCodeHash(ctx context.Context, id, hash string) error {
	const query = `UPDATE grade_records SET access_code_hash = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update access code: %w", err)
	}
	return requireRowAffected(result, "grade record")
}

// Delete removes a grade record.
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM grade_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade record: %w", err)
	}
	return requireRowAffected(result, "grade record")
}
