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

type mockGradingSystemRepo struct {
	systems map[string]*models.GradingSystem
	upserts int
}

func (m *mockGradingSystemRepo) FindBySubject(ctx context.Context, subjectID string) (*models.GradingSystem, error) {
	system, ok := m.systems[subjectID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *system
	return &copied, nil
}

func (m *mockGradingSystemRepo) Upsert(ctx context.Context, system *models.GradingSystem) error {
	if m.systems == nil {
		m.systems = make(map[string]*models.GradingSystem)
	}
	if system.ID == "" {
		system.ID = "gs-" + system.SubjectID
	}
	m.systems[system.SubjectID] = system
	m.upserts++
	return nil
}

func validPutRequest() PutGradingSystemRequest {
	return PutGradingSystemRequest{
		PassingGrade: 60,
		Categories: []GradingCategoryRequest{
			{
				ID:     "cat-1",
				Name:   "Written Works",
				Weight: 40,
				Components: []GradingComponentRequest{
					{ID: "comp-1", Name: "Quizzes", Weight: 40, GradeKeys: []string{"q1"}},
				},
			},
			{
				ID:     "cat-2",
				Name:   "Exams",
				Weight: 60,
				Components: []GradingComponentRequest{
					{ID: "comp-2", Name: "Midterm", Weight: 30},
					{ID: "comp-3", Name: "Final", Weight: 30},
				},
			},
		},
	}
}

func TestGradingSystemPutCreates(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	system, err := svc.Put(context.Background(), "subj-1", validPutRequest())
	require.NoError(t, err)

	assert.Equal(t, "subj-1", system.SubjectID)
	assert.Equal(t, 60.0, system.PassingGrade)
	require.Len(t, system.Categories, 2)
	assert.Equal(t, 1, repo.upserts)
}

func TestGradingSystemPutDefaultsPassingGrade(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	req := validPutRequest()
	req.PassingGrade = 0
	system, err := svc.Put(context.Background(), "subj-1", req)
	require.NoError(t, err)
	assert.Equal(t, float64(models.DefaultPassingGrade), system.PassingGrade)
}

func TestGradingSystemPutReplacesKeepingID(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	first, err := svc.Put(context.Background(), "subj-1", validPutRequest())
	require.NoError(t, err)

	second, err := svc.Put(context.Background(), "subj-1", validPutRequest())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, repo.upserts)
}

func TestGradingSystemPutRejectsCategoryWeightMismatch(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	req := validPutRequest()
	req.Categories[1].Weight = 55
	req.Categories[1].Components[0].Weight = 25

	_, err := svc.Put(context.Background(), "subj-1", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCategoryWeights))
	assert.Equal(t, 0, repo.upserts)
}

func TestGradingSystemPutRejectsComponentWeightMismatch(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	req := validPutRequest()
	req.Categories[0].Components[0].Weight = 35

	_, err := svc.Put(context.Background(), "subj-1", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrComponentWeights))
}

func TestGradingSystemPutRejectsDuplicateGradeKeys(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	req := validPutRequest()
	req.Categories[1].Components[0].GradeKeys = []string{"q1"}

	_, err := svc.Put(context.Background(), "subj-1", req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestGradingSystemGetNotConfigured(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	_, err := svc.Get(context.Background(), "subj-none")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotConfigured))
}

func TestGradingSystemAssignKeyMovesKey(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	_, err := svc.Put(context.Background(), "subj-1", validPutRequest())
	require.NoError(t, err)

	system, err := svc.AssignKey(context.Background(), "subj-1", AssignGradeKeyRequest{ComponentID: "comp-2", GradeKey: "q1"})
	require.NoError(t, err)

	comp1 := system.ComponentByID("comp-1")
	require.NotNil(t, comp1)
	assert.Empty(t, comp1.GradeKeys)
	comp2 := system.ComponentByID("comp-2")
	require.NotNil(t, comp2)
	assert.Equal(t, []string{"q1"}, comp2.GradeKeys)
}

func TestGradingSystemAssignKeyUnknownComponent(t *testing.T) {
	repo := &mockGradingSystemRepo{}
	svc := NewGradingSystemService(repo, nil, nil)

	_, err := svc.Put(context.Background(), "subj-1", validPutRequest())
	require.NoError(t, err)

	_, err = svc.AssignKey(context.Background(), "subj-1", AssignGradeKeyRequest{ComponentID: "nope", GradeKey: "q9"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
