package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markbookhq/markbook-api/internal/models"
	"github.com/markbookhq/markbook-api/internal/service"
	"github.com/markbookhq/markbook-api/pkg/response"
)

type gradingSystemRepoMock struct {
	systems map[string]*models.GradingSystem
}

func (m *gradingSystemRepoMock) FindBySubject(ctx context.Context, subjectID string) (*models.GradingSystem, error) {
	system, ok := m.systems[subjectID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return system, nil
}

func (m *gradingSystemRepoMock) Upsert(ctx context.Context, system *models.GradingSystem) error {
	if m.systems == nil {
		m.systems = make(map[string]*models.GradingSystem)
	}
	m.systems[system.SubjectID] = system
	return nil
}

func newGradingSystemTestContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "subjectId", Value: "subj-1"}}
	return c, w
}

func TestGradingSystemHandlerPut(t *testing.T) {
	repo := &gradingSystemRepoMock{}
	handler := NewGradingSystemHandler(service.NewGradingSystemService(repo, nil, nil))

	payload := service.PutGradingSystemRequest{
		PassingGrade: 60,
		Categories: []service.GradingCategoryRequest{
			{Name: "Written Works", Weight: 100, Components: []service.GradingComponentRequest{
				{Name: "Quizzes", Weight: 100, GradeKeys: []string{"q1"}},
			}},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	c, w := newGradingSystemTestContext(t, http.MethodPut, "/subjects/subj-1/grading-system", body)
	handler.Put(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Error)
	require.NotNil(t, repo.systems["subj-1"])
	assert.Equal(t, 60.0, repo.systems["subj-1"].PassingGrade)
}

func TestGradingSystemHandlerPutInvalidJSON(t *testing.T) {
	handler := NewGradingSystemHandler(service.NewGradingSystemService(&gradingSystemRepoMock{}, nil, nil))

	c, w := newGradingSystemTestContext(t, http.MethodPut, "/subjects/subj-1/grading-system", []byte(`not json`))
	handler.Put(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradingSystemHandlerPutWeightMismatch(t *testing.T) {
	handler := NewGradingSystemHandler(service.NewGradingSystemService(&gradingSystemRepoMock{}, nil, nil))

	payload := service.PutGradingSystemRequest{
		Categories: []service.GradingCategoryRequest{
			{Name: "Written Works", Weight: 80, Components: []service.GradingComponentRequest{
				{Name: "Quizzes", Weight: 80},
			}},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	c, w := newGradingSystemTestContext(t, http.MethodPut, "/subjects/subj-1/grading-system", body)
	handler.Put(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CATEGORY_WEIGHT_MISMATCH", envelope.Error.Code)
}

func TestGradingSystemHandlerGetNotConfigured(t *testing.T) {
	handler := NewGradingSystemHandler(service.NewGradingSystemService(&gradingSystemRepoMock{}, nil, nil))

	c, w := newGradingSystemTestContext(t, http.MethodGet, "/subjects/subj-1/grading-system", nil)
	handler.Get(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NOT_CONFIGURED", envelope.Error.Code)
}
