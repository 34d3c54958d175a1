package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markbookhq/markbook-api/internal/models"
)

func newRecordMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "subject_id", "student_number", "student_name", "email", "grades", "max_scores", "computed", "access_code_hash", "created_at", "updated_at"})
}

func TestRecordRepositoryListBySubject(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	computed, err := json.Marshal(models.ComputedGrade{FinalGrade: 85})
	require.NoError(t, err)
	rows := recordRows().
		AddRow("r1", "subj-1", "2024-001", "Juan Dela Cruz", "juan@school.edu", []byte(`{"q1":8}`), []byte(`{"q1":10}`), computed, "", time.Now(), time.Now()).
		AddRow("r2", "subj-1", "2024-002", "Maria Santos", "", []byte(`{}`), []byte(`{}`), nil, "", time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM grade_records WHERE subject_id = \\$1 ORDER BY student_name ASC").
		WithArgs("subj-1").
		WillReturnRows(rows)

	records, err := repo.ListBySubject(context.Background(), "subj-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].Computed)
	assert.Equal(t, 85.0, records[0].Computed.FinalGrade)
	assert.Equal(t, models.ScoreMap{"q1": 8}, records[0].Grades)
	assert.Nil(t, records[1].Computed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := recordRows().
		AddRow("r1", "subj-1", "2024-001", "Juan Dela Cruz", "juan@school.edu", []byte(`{"q1":8}`), []byte(`{"q1":10}`), nil, "hash", time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM grade_records WHERE id = \\$1").
		WithArgs("r1").
		WillReturnRows(rows)

	record, err := repo.FindByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Juan Dela Cruz", record.StudentName)
	assert.Equal(t, "hash", record.AccessCodeHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM grade_records WHERE id = \\$1").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO grade_records").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.GradeRecord{
		SubjectID:     "subj-1",
		StudentNumber: "2024-001",
		StudentName:   "Juan Dela Cruz",
		Grades:        models.ScoreMap{"q1": 8},
		MaxScores:     models.ScoreMap{"q1": 10},
	}
	err := repo.Upsert(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateComputed(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE grade_records SET computed = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateComputed(context.Background(), "r1", &models.ComputedGrade{FinalGrade: 85})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateIdentityMissingRow(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE grade_records SET student_name = $1, email = $2, updated_at = $3 WHERE id = $4")).
		WithArgs("Juan Dela Cruz", "new@school.edu", sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateIdentity(context.Background(), "ghost", "Juan Dela Cruz", "new@school.edu")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
