package evaluate

import (
	"errors"
	"testing"

	"github.com/viva-learn/viva/internal/model"
)

const fullPayload = `{
	"score": 82,
	"breakdown": {"conceptual": 24, "depth": 33, "practical": 25},
	"strengths": ["clear mental model"],
	"weaknesses": ["few concrete examples"],
	"quotes": ["replication gives you availability"],
	"assessment": "solid grasp of the material overall. solid grasp of the material overall.",
	"recommendations": ["practice applying the ideas"]
}`

func TestParseResultAcceptsFullPayload(t *testing.T) {
	result, err := parseResult(fullPayload)
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if result.Score != 82 || result.Breakdown.Depth != 33 {
		t.Errorf("parsed result mismatch: %+v", result)
	}
}

func TestParseResultAcceptsExplicitZeroScore(t *testing.T) {
	payload := `{
		"score": 0,
		"breakdown": {"conceptual": 0, "depth": 0, "practical": 0},
		"strengths": ["showed up"],
		"weaknesses": ["did not engage"],
		"quotes": ["I do not know"],
		"assessment": "the learner was present but did not engage with any of the material.",
		"recommendations": ["revisit the module"]
	}`
	result, err := parseResult(payload)
	if err != nil {
		t.Fatalf("explicit zero score rejected: %v", err)
	}
	if result.Score != 0 {
		t.Errorf("score = %d, want 0", result.Score)
	}
}

func TestParseResultRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{
			// A payload with no score at all must not decode to a graded 0.
			"score and breakdown absent",
			`{
				"strengths": ["clear mental model"],
				"weaknesses": ["few concrete examples"],
				"quotes": ["replication gives you availability"],
				"assessment": "solid grasp of the material overall. solid grasp of the material overall.",
				"recommendations": ["practice applying the ideas"]
			}`,
			"score",
		},
		{
			"breakdown absent",
			`{
				"score": 82,
				"strengths": ["clear mental model"],
				"weaknesses": ["few concrete examples"],
				"quotes": ["replication gives you availability"],
				"assessment": "solid grasp of the material overall. solid grasp of the material overall.",
				"recommendations": ["practice applying the ideas"]
			}`,
			"breakdown",
		},
		{
			"breakdown dimension absent",
			`{
				"score": 82,
				"breakdown": {"conceptual": 24, "practical": 25},
				"strengths": ["clear mental model"],
				"weaknesses": ["few concrete examples"],
				"quotes": ["replication gives you availability"],
				"assessment": "solid grasp of the material overall. solid grasp of the material overall.",
				"recommendations": ["practice applying the ideas"]
			}`,
			"breakdown.depth",
		},
		{
			"assessment absent",
			`{
				"score": 82,
				"breakdown": {"conceptual": 24, "depth": 33, "practical": 25},
				"strengths": ["clear mental model"],
				"weaknesses": ["few concrete examples"],
				"quotes": ["replication gives you availability"],
				"recommendations": ["practice applying the ideas"]
			}`,
			"assessment",
		},
		{
			"recommendations absent",
			`{
				"score": 82,
				"breakdown": {"conceptual": 24, "depth": 33, "practical": 25},
				"strengths": ["clear mental model"],
				"weaknesses": ["few concrete examples"],
				"quotes": ["replication gives you availability"],
				"assessment": "solid grasp of the material overall. solid grasp of the material overall."
			}`,
			"recommendations",
		},
		{"not json", `grading went fine`, "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseResult(tt.payload)
			if result != nil {
				t.Fatalf("accepted %+v, want rejection", result)
			}
			var valErr *model.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("error %T, want *model.ValidationError", err)
			}
			if valErr.Field != tt.wantField {
				t.Errorf("rejected field %q, want %q", valErr.Field, tt.wantField)
			}
		})
	}
}
