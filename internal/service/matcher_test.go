package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markbookhq/markbook-api/internal/models"
)

func TestMatcherNoCandidates(t *testing.T) {
	matcher := NewIdentityMatcher(nil, 0)

	result := matcher.Match(nil, "Juan Dela Cruz")
	assert.Equal(t, MatchNone, result.State)
	assert.Nil(t, result.Candidate)
}

func TestMatcherSingleCandidateAcceptedWithoutScoring(t *testing.T) {
	matcher := NewIdentityMatcher(nil, 0)
	candidates := []models.ExternalCandidate{
		{ExternalID: "ext-1", FullName: "Completely Different Name", Email: "x@example.com"},
	}

	result := matcher.Match(candidates, "Juan Dela Cruz")
	require.Equal(t, MatchExactID, result.State)
	assert.Equal(t, "ext-1", result.Candidate.ExternalID)
	assert.Equal(t, 1.0, result.Score)
}

func TestMatcherPicksBestScoringCandidate(t *testing.T) {
	matcher := NewIdentityMatcher(nil, 0)
	candidates := []models.ExternalCandidate{
		{ExternalID: "ext-1", FullName: "Pedro Santos"},
		{ExternalID: "ext-2", FullName: "Juan Dela Cruz"},
		{ExternalID: "ext-3", FullName: "Maria Reyes"},
	}

	result := matcher.Match(candidates, "Juan Dela Cruz")
	require.Equal(t, MatchBestScore, result.State)
	assert.Equal(t, "ext-2", result.Candidate.ExternalID)
	assert.Equal(t, 1.0, result.Score)
}

func TestMatcherRejectsBelowThreshold(t *testing.T) {
	matcher := NewIdentityMatcher(nil, 0)
	candidates := []models.ExternalCandidate{
		{ExternalID: "ext-1", FullName: "Pedro Santos"},
		{ExternalID: "ext-2", FullName: "Maria Reyes"},
	}

	result := matcher.Match(candidates, "Juan Dela Cruz")
	assert.Equal(t, MatchNone, result.State)
	assert.Nil(t, result.Candidate)
}

func TestMatcherCustomThreshold(t *testing.T) {
	candidates := []models.ExternalCandidate{
		{ExternalID: "ext-1", FullName: "Juan Reyes"},
		{ExternalID: "ext-2", FullName: "Pedro Santos"},
	}

	strict := NewIdentityMatcher(nil, 0.9)
	assert.Equal(t, MatchNone, strict.Match(candidates, "Juan Garcia").State)

	lenient := NewIdentityMatcher(nil, 0.3)
	result := lenient.Match(candidates, "Juan Garcia")
	require.Equal(t, MatchBestScore, result.State)
	assert.Equal(t, "ext-1", result.Candidate.ExternalID)
}

func TestMatcherTieKeepsFirstCandidate(t *testing.T) {
	matcher := NewIdentityMatcher(nil, 0)
	candidates := []models.ExternalCandidate{
		{ExternalID: "ext-1", FullName: "Juan Dela Cruz"},
		{ExternalID: "ext-2", FullName: "Juan Dela Cruz"},
	}

	result := matcher.Match(candidates, "Juan Dela Cruz")
	require.Equal(t, MatchBestScore, result.State)
	assert.Equal(t, "ext-1", result.Candidate.ExternalID)
}
