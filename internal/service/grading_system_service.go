package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

type gradingSystemRepository interface {
	FindBySubject(ctx context.Context, subjectID string) (*models.GradingSystem, error)
	Upsert(ctx context.Context, system *models.GradingSystem) error
}

// GradingComponentRequest is one component within a category payload.
type GradingComponentRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" validate:"required"`
	Weight    float64  `json:"weight" validate:"gte=0,lte=100"`
	GradeKeys []string `json:"grade_keys"`
}

// GradingCategoryRequest is one category within a grading system payload.
type GradingCategoryRequest struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name" validate:"required"`
	Weight     float64                   `json:"weight" validate:"gte=0,lte=100"`
	Components []GradingComponentRequest `json:"components" validate:"required,dive"`
}

// PutGradingSystemRequest creates or replaces a subject's grading system.
type PutGradingSystemRequest struct {
	PassingGrade float64                  `json:"passing_grade" validate:"gte=0,lte=100"`
	Categories   []GradingCategoryRequest `json:"categories" validate:"required,dive"`
}

// AssignGradeKeyRequest moves a grade key onto a component.
type AssignGradeKeyRequest struct {
	ComponentID string `json:"component_id" validate:"required"`
	GradeKey    string `json:"grade_key" validate:"required"`
}

// GradingSystemService manages the weighting tree for each subject.
type GradingSystemService struct {
	repo      gradingSystemRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingSystemService constructs the service.
func NewGradingSystemService(repo gradingSystemRepository, validate *validator.Validate, logger *zap.Logger) *GradingSystemService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingSystemService{repo: repo, validator: validate, logger: logger}
}

// Get returns the grading system configured for the subject.
func (s *GradingSystemService) Get(ctx context.Context, subjectID string) (*models.GradingSystem, error) {
	system, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotConfigured, "no grading system for subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading system")
	}
	return system, nil
}

// Put creates or fully replaces the subject's grading system. The payload is
// rejected when the weight contract is broken; nothing is stored partially.
func (s *GradingSystemService) Put(ctx context.Context, subjectID string, req PutGradingSystemRequest) (*models.GradingSystem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading system payload")
	}

	system := &models.GradingSystem{
		SubjectID:    subjectID,
		PassingGrade: req.PassingGrade,
		Categories:   buildCategories(req.Categories),
	}
	if system.PassingGrade == 0 {
		system.PassingGrade = models.DefaultPassingGrade
	}

	if err := ValidateGradingSystem(system); err != nil {
		return nil, err
	}
	if err := checkDuplicateGradeKeys(system); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading system")
	}
	if existing != nil {
		system.ID = existing.ID
		system.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Upsert(ctx, system); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grading system")
	}
	return system, nil
}

// AssignKey moves a grade key onto the named component, detaching it from any
// other component in the same atomic update.
func (s *GradingSystemService) AssignKey(ctx context.Context, subjectID string, req AssignGradeKeyRequest) (*models.GradingSystem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assign payload")
	}

	system, err := s.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := system.AssignGradeKey(req.ComponentID, req.GradeKey); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := s.repo.Upsert(ctx, system); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grading system")
	}
	return system, nil
}

func buildCategories(payload []GradingCategoryRequest) models.CategoryList {
	categories := make(models.CategoryList, 0, len(payload))
	for _, cat := range payload {
		category := models.GradingCategory{
			ID:         cat.ID,
			Name:       cat.Name,
			Weight:     cat.Weight,
			Components: make([]models.GradingComponent, 0, len(cat.Components)),
		}
		if category.ID == "" {
			category.ID = uuid.NewString()
		}
		for _, comp := range cat.Components {
			component := models.GradingComponent{
				ID:        comp.ID,
				Name:      comp.Name,
				Weight:    comp.Weight,
				GradeKeys: append([]string(nil), comp.GradeKeys...),
			}
			if component.ID == "" {
				component.ID = uuid.NewString()
			}
			category.Components = append(category.Components, component)
		}
		categories = append(categories, category)
	}
	return categories
}

func checkDuplicateGradeKeys(system *models.GradingSystem) error {
	seen := make(map[string]struct{})
	for _, category := range system.Categories {
		for _, component := range category.Components {
			for _, key := range component.GradeKeys {
				if _, dup := seen[key]; dup {
					return appErrors.Clone(appErrors.ErrValidation, "grade key "+key+" assigned to more than one component")
				}
				seen[key] = struct{}{}
			}
		}
	}
	return nil
}
