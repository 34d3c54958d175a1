package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

type mockRecordRepo struct {
	records  map[string]*models.GradeRecord
	computed map[string]*models.ComputedGrade
}

func (m *mockRecordRepo) ListBySubject(ctx context.Context, subjectID string) ([]models.GradeRecord, error) {
	var result []models.GradeRecord
	for _, record := range m.records {
		if record.SubjectID == subjectID {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (m *mockRecordRepo) FindByID(ctx context.Context, id string) (*models.GradeRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (m *mockRecordRepo) Upsert(ctx context.Context, record *models.GradeRecord) error {
	if m.records == nil {
		m.records = make(map[string]*models.GradeRecord)
	}
	copied := *record
	m.records[record.ID] = &copied
	return nil
}

func (m *mockRecordRepo) UpdateComputed(ctx context.Context, id string, computed *models.ComputedGrade) error {
	if m.computed == nil {
		m.computed = make(map[string]*models.ComputedGrade)
	}
	m.computed[id] = computed
	return nil
}

func gradeServiceFixture() (*mockGradingSystemRepo, *mockRecordRepo, *GradeService) {
	systems := &mockGradingSystemRepo{
		systems: map[string]*models.GradingSystem{
			"subj-1": singleCategorySystem(),
		},
	}
	records := &mockRecordRepo{
		records: map[string]*models.GradeRecord{
			"r1": {ID: "r1", SubjectID: "subj-1", StudentName: "Juan Dela Cruz",
				Grades: models.ScoreMap{"q1": 8, "q2": 9}, MaxScores: models.ScoreMap{"q1": 10, "q2": 10}},
			"r2": {ID: "r2", SubjectID: "subj-1", StudentName: "Maria Clara Santos",
				Grades: models.ScoreMap{"q1": 4}, MaxScores: models.ScoreMap{"q1": 10, "q2": 10}},
		},
	}
	svc := NewGradeService(systems, records, fixedEngine(), nil, nil)
	return systems, records, svc
}

func TestComputeSubjectPersistsAllRecords(t *testing.T) {
	_, records, svc := gradeServiceFixture()

	summary, err := svc.ComputeSubject(context.Background(), "subj-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Passing)
	assert.InDelta(t, 52.5, summary.Average, 0.001)
	require.Len(t, records.computed, 2)
	assert.Equal(t, 85.00, records.computed["r1"].FinalGrade)
	assert.Equal(t, 20.00, records.computed["r2"].FinalGrade)
}

func TestComputeSubjectNotConfigured(t *testing.T) {
	_, _, svc := gradeServiceFixture()

	_, err := svc.ComputeSubject(context.Background(), "subj-unknown")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotConfigured))
}

func TestComputeSubjectBrokenWeightsComputesNothing(t *testing.T) {
	systems, records, svc := gradeServiceFixture()
	systems.systems["subj-1"].Categories[0].Weight = 90

	_, err := svc.ComputeSubject(context.Background(), "subj-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrComponentWeights))
	assert.Empty(t, records.computed)
}

func TestComputeRecordPreview(t *testing.T) {
	_, records, svc := gradeServiceFixture()

	computed, err := svc.ComputeRecord(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 85.00, computed.FinalGrade)
	// Preview never persists.
	assert.Empty(t, records.computed)
}

func TestGetRecordNotFound(t *testing.T) {
	_, _, svc := gradeServiceFixture()

	_, err := svc.GetRecord(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPutScoresRecomputes(t *testing.T) {
	_, records, svc := gradeServiceFixture()

	record, err := svc.PutScores(context.Background(), "r2",
		models.ScoreMap{"q1": 10, "q2": 10}, models.ScoreMap{"q1": 10, "q2": 10})
	require.NoError(t, err)

	require.NotNil(t, record.Computed)
	assert.Equal(t, 100.00, record.Computed.FinalGrade)
	assert.Equal(t, 100.00, records.computed["r2"].FinalGrade)
}

func TestPutScoresWithoutGradingSystemStoresScoresOnly(t *testing.T) {
	systems, records, svc := gradeServiceFixture()
	delete(systems.systems, "subj-1")

	record, err := svc.PutScores(context.Background(), "r2",
		models.ScoreMap{"q1": 10}, models.ScoreMap{"q1": 10})
	require.NoError(t, err)

	assert.Nil(t, record.Computed)
	assert.Empty(t, records.computed)
	assert.Equal(t, models.ScoreMap{"q1": 10}, records.records["r2"].Grades)
}
