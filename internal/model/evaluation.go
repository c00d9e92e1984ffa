package model

import (
	"fmt"
	"unicode/utf8"
)

// Rubric maxima. The oracle is instructed to grade against exactly these
// and the result is rejected when any part falls outside its band.
const (
	MaxScore           = 100
	MaxConceptualScore = 30
	MaxDepthScore      = 40
	MaxPracticalScore  = 30
)

// ScoreBreakdown splits an overall score by rubric dimension.
type ScoreBreakdown struct {
	Conceptual int `json:"conceptual"`
	Depth      int `json:"depth"`
	Practical  int `json:"practical"`
}

// EvaluationResult is the structured verdict returned by the scoring oracle.
// Every bounded field must satisfy its range; out-of-range results are
// rejected, never clamped.
type EvaluationResult struct {
	Score           int            `json:"score"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
	Strengths       []string       `json:"strengths"`
	Weaknesses      []string       `json:"weaknesses"`
	Quotes          []string       `json:"quotes"`
	Assessment      string         `json:"assessment"`
	Recommendations []string       `json:"recommendations"`
}

// Validate checks the result against the contract. It returns a
// *ValidationError naming the first violated field.
func (r *EvaluationResult) Validate() error {
	if r.Score < 0 || r.Score > MaxScore {
		return &ValidationError{Field: "score", Detail: fmt.Sprintf("%d outside [0,%d]", r.Score, MaxScore)}
	}
	if r.Breakdown.Conceptual < 0 || r.Breakdown.Conceptual > MaxConceptualScore {
		return &ValidationError{Field: "breakdown.conceptual", Detail: fmt.Sprintf("%d outside [0,%d]", r.Breakdown.Conceptual, MaxConceptualScore)}
	}
	if r.Breakdown.Depth < 0 || r.Breakdown.Depth > MaxDepthScore {
		return &ValidationError{Field: "breakdown.depth", Detail: fmt.Sprintf("%d outside [0,%d]", r.Breakdown.Depth, MaxDepthScore)}
	}
	if r.Breakdown.Practical < 0 || r.Breakdown.Practical > MaxPracticalScore {
		return &ValidationError{Field: "breakdown.practical", Detail: fmt.Sprintf("%d outside [0,%d]", r.Breakdown.Practical, MaxPracticalScore)}
	}
	if n := len(r.Strengths); n < 1 || n > 5 {
		return &ValidationError{Field: "strengths", Detail: fmt.Sprintf("%d items, want 1..5", n)}
	}
	if n := len(r.Weaknesses); n < 1 || n > 3 {
		return &ValidationError{Field: "weaknesses", Detail: fmt.Sprintf("%d items, want 1..3", n)}
	}
	if n := len(r.Quotes); n < 1 || n > 5 {
		return &ValidationError{Field: "quotes", Detail: fmt.Sprintf("%d items, want 1..5", n)}
	}
	if n := utf8.RuneCountInString(r.Assessment); n < 50 || n > 500 {
		return &ValidationError{Field: "assessment", Detail: fmt.Sprintf("%d chars, want 50..500", n)}
	}
	if n := len(r.Recommendations); n < 1 || n > 3 {
		return &ValidationError{Field: "recommendations", Detail: fmt.Sprintf("%d items, want 1..3", n)}
	}
	return nil
}
