package service

import (
	"fmt"
	"math"
	"time"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

// GradeEngine maps (grading system, raw scores, max scores) to a ComputedGrade.
// It performs no I/O and never mutates its inputs; identical inputs produce
// identical output. Summation always follows the declared category and
// component order so floating-point results stay deterministic.
type GradeEngine struct {
	rounding func(float64) float64
	now      func() time.Time
}

// NewGradeEngine constructs the engine with standard half-away-from-zero
// rounding to 2 decimals, applied to the final grade only.
func NewGradeEngine() *GradeEngine {
	return &GradeEngine{
		rounding: func(v float64) float64 { return math.Round(v*100) / 100 },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ValidateGradingSystem checks the weight contract: category weights must sum
// to exactly 100 and each category's component weights must sum to exactly
// that category's weight. Weights are integer-like percentages, so the check
// is exact equality with no epsilon. Invalid systems are rejected outright,
// never rescaled.
func ValidateGradingSystem(system *models.GradingSystem) error {
	if system == nil || len(system.Categories) == 0 {
		return appErrors.Clone(appErrors.ErrNotConfigured, "")
	}

	categoryTotal := 0.0
	for _, category := range system.Categories {
		categoryTotal += category.Weight

		componentTotal := 0.0
		for _, component := range category.Components {
			componentTotal += component.Weight
		}
		if componentTotal != category.Weight {
			return appErrors.Clone(appErrors.ErrComponentWeights,
				fmt.Sprintf("component weights in category %s sum to %g, want %g", category.ID, componentTotal, category.Weight))
		}
	}
	if categoryTotal != 100 {
		return appErrors.Clone(appErrors.ErrCategoryWeights,
			fmt.Sprintf("category weights sum to %g, want 100", categoryTotal))
	}
	return nil
}

// Compute produces a fresh ComputedGrade for one record's raw scores. A
// validation failure refuses the whole computation; no partial category set
// is ever produced.
func (e *GradeEngine) Compute(system *models.GradingSystem, grades, maxScores models.ScoreMap) (*models.ComputedGrade, error) {
	if err := ValidateGradingSystem(system); err != nil {
		return nil, err
	}

	computed := &models.ComputedGrade{
		CategoryScores: make(map[string]models.CategoryScore, len(system.Categories)),
		Breakdown:      make([]models.CategoryBreakdown, 0, len(system.Categories)),
		ComputedAt:     e.now(),
	}

	finalGrade := 0.0
	for _, category := range system.Categories {
		breakdown := models.CategoryBreakdown{
			CategoryID:     category.ID,
			CategoryName:   category.Name,
			CategoryWeight: category.Weight,
			Components:     make([]models.ComponentBreakdown, 0, len(category.Components)),
		}

		categoryScore := 0.0
		categoryMax := 0.0
		weightedSum := 0.0
		weightTotal := 0.0
		for _, component := range category.Components {
			totalScore := 0.0
			totalMax := 0.0
			// Missing entries count as zero; keys are never skipped.
			for _, key := range component.GradeKeys {
				totalScore += grades[key]
				totalMax += maxScores[key]
			}

			// No recorded max means no credit, by policy, not an error.
			pct := 0.0
			if totalMax > 0 {
				pct = 100 * totalScore / totalMax
			}

			weightedSum += pct * component.Weight
			weightTotal += component.Weight
			categoryScore += totalScore
			categoryMax += totalMax

			breakdown.Components = append(breakdown.Components, models.ComponentBreakdown{
				ComponentID:   component.ID,
				ComponentName: component.Name,
				Weight:        component.Weight,
				TotalScore:    totalScore,
				TotalMax:      totalMax,
				Score:         e.rounding(pct),
			})
		}

		categoryPct := 0.0
		if weightTotal > 0 {
			categoryPct = weightedSum / weightTotal
		}
		categoryPoints := categoryPct / 100 * category.Weight
		finalGrade += categoryPoints

		breakdown.CategoryScore = e.rounding(categoryPoints)
		computed.Breakdown = append(computed.Breakdown, breakdown)
		computed.CategoryScores[category.ID] = models.CategoryScore{
			Score:    e.rounding(categoryPoints),
			MaxScore: category.Weight,
			Weight:   category.Weight,
		}
	}

	// Intermediate percentages stay at full precision; only the final value
	// is rounded.
	computed.FinalGrade = e.rounding(finalGrade)
	return computed, nil
}

// ComputeAll is the element-wise map of Compute over a subject's records.
// The system is validated once; a validation failure blocks the entire
// subject rather than computing a partial set.
func (e *GradeEngine) ComputeAll(system *models.GradingSystem, records []models.GradeRecord) ([]models.ComputedGrade, error) {
	if err := ValidateGradingSystem(system); err != nil {
		return nil, err
	}

	computed := make([]models.ComputedGrade, 0, len(records))
	for i := range records {
		grade, err := e.Compute(system, records[i].Grades, records[i].MaxScores)
		if err != nil {
			return nil, err
		}
		computed = append(computed, *grade)
	}
	return computed, nil
}
