package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPassingGrade applies when a grading system does not set one.
const DefaultPassingGrade = 50

// GradingComponent is a sub-bucket within a category (e.g. "Midterm Exam").
// Each grade key belongs to at most one component across the whole system;
// AssignGradeKey on the owning GradingSystem is the only way keys move.
type GradingComponent struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Weight    float64  `json:"weight"`
	GradeKeys []string `json:"grade_keys"`
}

// GradingCategory is a top-level grading bucket with a percentage weight
// toward the final grade. Component weights must sum to the category weight.
type GradingCategory struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Weight     float64            `json:"weight"`
	Components []GradingComponent `json:"components"`
}

// CategoryList stores the category tree as a JSONB column.
type CategoryList []GradingCategory

// Value implements driver.Valuer.
func (l CategoryList) Value() (driver.Value, error) {
	if l == nil {
		l = CategoryList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *CategoryList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = CategoryList{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported category list source %T", src)
	}
}

// GradingSystem is the teacher-authored weighting tree for one subject.
// It is read-only during computation.
type GradingSystem struct {
	ID           string       `db:"id" json:"id"`
	SubjectID    string       `db:"subject_id" json:"subject_id"`
	PassingGrade float64      `db:"passing_grade" json:"passing_grade"`
	Categories   CategoryList `db:"categories" json:"categories"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// AssignGradeKey places a grade key on the named component, atomically
// removing it from every other component so the 1:1 mapping can never be
// violated by any caller.
func (s *GradingSystem) AssignGradeKey(componentID, key string) error {
	if key == "" {
		return fmt.Errorf("grade key required")
	}
	var target *GradingComponent
	for ci := range s.Categories {
		for pi := range s.Categories[ci].Components {
			comp := &s.Categories[ci].Components[pi]
			comp.GradeKeys = removeKey(comp.GradeKeys, key)
			if comp.ID == componentID {
				target = comp
			}
		}
	}
	if target == nil {
		return fmt.Errorf("component %s not found", componentID)
	}
	target.GradeKeys = append(target.GradeKeys, key)
	return nil
}

// RemoveGradeKey detaches a grade key from whichever component holds it.
func (s *GradingSystem) RemoveGradeKey(key string) {
	for ci := range s.Categories {
		for pi := range s.Categories[ci].Components {
			comp := &s.Categories[ci].Components[pi]
			comp.GradeKeys = removeKey(comp.GradeKeys, key)
		}
	}
}

// ComponentByID returns the component with the given id, or nil.
func (s *GradingSystem) ComponentByID(componentID string) *GradingComponent {
	for ci := range s.Categories {
		for pi := range s.Categories[ci].Components {
			if s.Categories[ci].Components[pi].ID == componentID {
				return &s.Categories[ci].Components[pi]
			}
		}
	}
	return nil
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// CategoryScore is a category's contribution on the final 100-point scale.
type CategoryScore struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"maxScore"`
	Weight   float64 `json:"weight"`
}

// ComponentBreakdown reports one component's raw totals and rounded percentage.
type ComponentBreakdown struct {
	ComponentID   string  `json:"componentId"`
	ComponentName string  `json:"componentName"`
	Weight        float64 `json:"weight"`
	TotalScore    float64 `json:"totalScore"`
	TotalMax      float64 `json:"totalMax"`
	Score         float64 `json:"score"`
}

// CategoryBreakdown mirrors the computation per category for auditability.
type CategoryBreakdown struct {
	CategoryID     string               `json:"categoryId"`
	CategoryName   string               `json:"categoryName"`
	CategoryWeight float64              `json:"categoryWeight"`
	CategoryScore  float64              `json:"categoryScore"`
	Components     []ComponentBreakdown `json:"components"`
}

// ComputedGrade is the full result of one grade computation. It is produced
// fresh on every call and fully replaces any prior value.
type ComputedGrade struct {
	FinalGrade     float64                  `json:"finalGrade"`
	CategoryScores map[string]CategoryScore `json:"categoryScores"`
	Breakdown      []CategoryBreakdown      `json:"breakdown"`
	ComputedAt     time.Time                `json:"computedAt"`
}
