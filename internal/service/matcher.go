package service

import (
	"github.com/markbookhq/markbook-api/internal/models"
)

// MatchState is the terminal outcome of matching one local record against a
// set of external candidates.
type MatchState string

const (
	// MatchNone means no candidate was usable.
	MatchNone MatchState = "no_match"
	// MatchExactID means exactly one candidate came back for the ID lookup,
	// accepted without scoring.
	MatchExactID MatchState = "exact_id"
	// MatchBestScore means the highest-scoring candidate cleared the
	// acceptance threshold.
	MatchBestScore MatchState = "best_score"
)

// MatchResult carries the accepted candidate, if any, and how it was chosen.
type MatchResult struct {
	State     MatchState
	Candidate *models.ExternalCandidate
	Score     float64
}

// IdentityMatcher picks one external candidate for a local student record.
// A single candidate is trusted as an exact ID hit; multiple candidates are
// ranked by name similarity and the best is accepted only above the
// threshold. Ties keep the first candidate in lookup order.
type IdentityMatcher struct {
	scorer    SimilarityScorer
	threshold float64
}

// DefaultAcceptThreshold is the minimum similarity for accepting the best of
// several candidates.
const DefaultAcceptThreshold = 0.3

// NewIdentityMatcher constructs a matcher. A nil scorer falls back to the
// positional name heuristic; a non-positive threshold falls back to the
// default.
func NewIdentityMatcher(scorer SimilarityScorer, threshold float64) *IdentityMatcher {
	if scorer == nil {
		scorer = NewNameSimilarity()
	}
	if threshold <= 0 {
		threshold = DefaultAcceptThreshold
	}
	return &IdentityMatcher{scorer: scorer, threshold: threshold}
}

// Match resolves candidates against the local name and returns a terminal
// state. It never errors: ambiguity and absence are states, not failures.
func (m *IdentityMatcher) Match(candidates []models.ExternalCandidate, localName string) MatchResult {
	switch len(candidates) {
	case 0:
		return MatchResult{State: MatchNone}
	case 1:
		return MatchResult{State: MatchExactID, Candidate: &candidates[0], Score: 1.0}
	}

	bestIdx := -1
	bestScore := 0.0
	for i := range candidates {
		score := m.scorer.Score(localName, candidates[i].FullName)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestScore < m.threshold {
		return MatchResult{State: MatchNone, Score: bestScore}
	}
	return MatchResult{State: MatchBestScore, Candidate: &candidates[bestIdx], Score: bestScore}
}
