package models

// ExternalCandidate is one identity returned by the external LMS search.
// Ephemeral: only the fields that differ are copied onto a GradeRecord.
type ExternalCandidate struct {
	ExternalID string `json:"external_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	IDNumber   string `json:"id_number,omitempty"`
}

// ReconcileError captures one isolated per-record failure.
type ReconcileError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ReconcileReport aggregates one reconciliation run over a subject's records.
type ReconcileReport struct {
	Total    int              `json:"total"`
	Updated  int              `json:"updated"`
	NotFound int              `json:"not_found"`
	Errors   []ReconcileError `json:"errors,omitempty"`
}

// ImportReport aggregates a bulk create-or-update of roster students.
type ImportReport struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Skipped int              `json:"skipped"`
	Errors  []ReconcileError `json:"errors,omitempty"`
}
