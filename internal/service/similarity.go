package service

import (
	"strings"

	"github.com/xrash/smetrics"
)

// SimilarityScorer gives a 0.0-1.0 confidence that two human names refer to
// the same person. Used only when automatic exact matching is unavailable.
type SimilarityScorer interface {
	Score(a, b string) float64
}

// NameSimilarity is the default scorer: normalized equality, containment,
// then a blend of word overlap and positional character overlap. The
// positional check is a deliberate cheap heuristic, not edit distance; the
// diff report gets human review downstream.
type NameSimilarity struct{}

// NewNameSimilarity constructs the default scorer.
func NewNameSimilarity() *NameSimilarity {
	return &NameSimilarity{}
}

// Score implements SimilarityScorer.
func (NameSimilarity) Score(a, b string) float64 {
	na := normalizeName(a)
	nb := normalizeName(b)

	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	return 0.7*wordOverlap(na, nb) + 0.3*charPrefixOverlap(na, nb)
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// wordOverlap is |common words| / max(|words1|, |words2|), order-insensitive.
func wordOverlap(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	common := 0
	seen := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := setA[w]; ok {
			common++
		}
	}

	longest := len(setA)
	if len(seen) > longest {
		longest = len(seen)
	}
	return float64(common) / float64(longest)
}

// charPrefixOverlap is the fraction of matching characters at identical
// positions over the shorter string's length.
func charPrefixOverlap(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	shorter := len(ra)
	if len(rb) < shorter {
		shorter = len(rb)
	}
	if shorter == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < shorter; i++ {
		if ra[i] == rb[i] {
			matches++
		}
	}
	return float64(matches) / float64(shorter)
}

// JaroWinklerSimilarity is a drop-in alternative behind the same interface,
// for deployments that want a proper string metric instead of the positional
// heuristic.
type JaroWinklerSimilarity struct{}

// NewJaroWinklerSimilarity constructs the smetrics-backed scorer.
func NewJaroWinklerSimilarity() *JaroWinklerSimilarity {
	return &JaroWinklerSimilarity{}
}

// Score implements SimilarityScorer.
func (JaroWinklerSimilarity) Score(a, b string) float64 {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	return smetrics.JaroWinkler(na, nb, 0.7, 4)
}

// ScorerByName maps a config value onto a scorer implementation.
func ScorerByName(name string) SimilarityScorer {
	switch name {
	case "jaro-winkler":
		return NewJaroWinklerSimilarity()
	default:
		return NewNameSimilarity()
	}
}
