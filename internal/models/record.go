package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ScoreMap holds per-grade-key raw scores, stored as a JSONB column.
type ScoreMap map[string]float64

// Value implements driver.Valuer.
func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		m = ScoreMap{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ScoreMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = ScoreMap{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported score map source %T", src)
	}
}

// GradeRecord is one student's row within a subject: identity fields kept in
// sync by reconciliation plus the raw scores the engine reads.
type GradeRecord struct {
	ID             string         `db:"id" json:"id"`
	SubjectID      string         `db:"subject_id" json:"subject_id"`
	StudentNumber  string         `db:"student_number" json:"student_number"`
	StudentName    string         `db:"student_name" json:"student_name"`
	Email          string         `db:"email" json:"email"`
	Grades         ScoreMap       `db:"grades" json:"grades"`
	MaxScores      ScoreMap       `db:"max_scores" json:"max_scores"`
	Computed       *ComputedGrade `db:"-" json:"computed,omitempty"`
	AccessCodeHash string         `db:"access_code_hash" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// RecordFilter scopes grade record queries.
type RecordFilter struct {
	SubjectID     string
	StudentNumber string
}
