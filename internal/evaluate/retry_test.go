package evaluate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// scriptedOracle returns its errors in order, then the result.
type scriptedOracle struct {
	errs   []error
	result *model.EvaluationResult
	calls  int
}

func (o *scriptedOracle) Evaluate(_ context.Context, _ []model.TranscriptEntry, _, _ string) (*model.EvaluationResult, error) {
	o.calls++
	if len(o.errs) > 0 {
		err := o.errs[0]
		o.errs = o.errs[1:]
		return nil, err
	}
	return o.result, nil
}

func okResult() *model.EvaluationResult {
	return &model.EvaluationResult{
		Score:           75,
		Breakdown:       model.ScoreBreakdown{Conceptual: 22, Depth: 30, Practical: 23},
		Strengths:       []string{"s"},
		Weaknesses:      []string{"w"},
		Quotes:          []string{"q"},
		Assessment:      strings.Repeat("a", 60),
		Recommendations: []string{"r"},
	}
}

func TestWithRetryRecoversFromProviderErrors(t *testing.T) {
	oracle := &scriptedOracle{
		errs: []error{
			&model.ProviderError{Err: errors.New("503")},
			&model.ProviderError{Err: errors.New("timeout")},
		},
		result: okResult(),
	}

	result, err := WithRetry(context.Background(), oracle, nil, "topic", "summary", 3, time.Millisecond)
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if result.Score != 75 {
		t.Errorf("score %d, want 75", result.Score)
	}
	if oracle.calls != 3 {
		t.Errorf("oracle called %d times, want 3", oracle.calls)
	}
}

func TestWithRetryExhausts(t *testing.T) {
	provErr := &model.ProviderError{Err: errors.New("down")}
	oracle := &scriptedOracle{errs: []error{provErr, provErr, provErr, provErr, provErr}}

	_, err := WithRetry(context.Background(), oracle, nil, "topic", "summary", 2, time.Millisecond)
	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *model.ProviderError", err)
	}
	if oracle.calls != 3 {
		t.Errorf("oracle called %d times, want 3 (1 + 2 retries)", oracle.calls)
	}
}

func TestWithRetryNeverRetriesValidationErrors(t *testing.T) {
	oracle := &scriptedOracle{
		errs:   []error{&model.ValidationError{Field: "score", Detail: "120 outside [0,100]"}},
		result: okResult(),
	}

	_, err := WithRetry(context.Background(), oracle, nil, "topic", "summary", 5, time.Millisecond)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %T, want *model.ValidationError", err)
	}
	if oracle.calls != 1 {
		t.Errorf("oracle called %d times, want 1 (validation errors are final)", oracle.calls)
	}
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	provErr := &model.ProviderError{Err: errors.New("down")}
	oracle := &scriptedOracle{errs: []error{provErr, provErr, provErr}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(ctx, oracle, nil, "topic", "summary", 3, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if oracle.calls != 1 {
		t.Errorf("oracle called %d times after cancel, want 1", oracle.calls)
	}
}
