// Package evaluate grades a normalized conversation transcript against the
// fixed assessment rubric using an OpenAI-compatible scoring oracle.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/viva-learn/viva/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Engine wraps an OpenAI-compatible API client.
type Engine struct {
	api       *openai.Client
	modelName string
}

// New creates a new evaluation engine.
func New(baseURL, apiKey, modelName string) *Engine {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Engine{
		api:       openai.NewClientWithConfig(config),
		modelName: modelName,
	}
}

// Ping verifies the oracle endpoint is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("oracle health check: %w", err)
	}
	return nil
}

// Evaluate sends the transcript and course context to the oracle and
// returns a strictly validated result. Transport and provider failures are
// *model.ProviderError (retryable by the caller); contract violations are
// *model.ValidationError and must not be retried.
func (e *Engine) Evaluate(ctx context.Context, entries []model.TranscriptEntry, courseTopic, moduleSummary string) (*model.EvaluationResult, error) {
	systemPrompt := buildRubricPrompt(courseTopic, moduleSummary)

	chatMsgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: renderTranscript(entries)},
	}

	resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.modelName,
		Messages: chatMsgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, &model.ProviderError{Err: fmt.Errorf("oracle API call: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return nil, &model.ProviderError{Err: fmt.Errorf("oracle returned no choices")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("oracle response", "raw", raw)

	return parseResult(raw)
}

// wireResult is the oracle's wire shape. Pointer fields distinguish an
// absent field from an explicit zero, so an omitted score cannot decode
// into a graded 0.
type wireResult struct {
	Score     *int `json:"score"`
	Breakdown *struct {
		Conceptual *int `json:"conceptual"`
		Depth      *int `json:"depth"`
		Practical  *int `json:"practical"`
	} `json:"breakdown"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Quotes          []string `json:"quotes"`
	Assessment      *string  `json:"assessment"`
	Recommendations []string `json:"recommendations"`
}

// parseResult decodes and strictly validates an oracle payload. Any
// missing field is a contract violation, same as an out-of-range one.
func parseResult(raw string) (*model.EvaluationResult, error) {
	var wire wireResult
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, &model.ValidationError{Field: "response", Detail: fmt.Sprintf("not valid JSON: %v", err)}
	}

	switch {
	case wire.Score == nil:
		return nil, &model.ValidationError{Field: "score", Detail: "missing"}
	case wire.Breakdown == nil:
		return nil, &model.ValidationError{Field: "breakdown", Detail: "missing"}
	case wire.Breakdown.Conceptual == nil:
		return nil, &model.ValidationError{Field: "breakdown.conceptual", Detail: "missing"}
	case wire.Breakdown.Depth == nil:
		return nil, &model.ValidationError{Field: "breakdown.depth", Detail: "missing"}
	case wire.Breakdown.Practical == nil:
		return nil, &model.ValidationError{Field: "breakdown.practical", Detail: "missing"}
	case wire.Strengths == nil:
		return nil, &model.ValidationError{Field: "strengths", Detail: "missing"}
	case wire.Weaknesses == nil:
		return nil, &model.ValidationError{Field: "weaknesses", Detail: "missing"}
	case wire.Quotes == nil:
		return nil, &model.ValidationError{Field: "quotes", Detail: "missing"}
	case wire.Assessment == nil:
		return nil, &model.ValidationError{Field: "assessment", Detail: "missing"}
	case wire.Recommendations == nil:
		return nil, &model.ValidationError{Field: "recommendations", Detail: "missing"}
	}

	result := &model.EvaluationResult{
		Score: *wire.Score,
		Breakdown: model.ScoreBreakdown{
			Conceptual: *wire.Breakdown.Conceptual,
			Depth:      *wire.Breakdown.Depth,
			Practical:  *wire.Breakdown.Practical,
		},
		Strengths:       wire.Strengths,
		Weaknesses:      wire.Weaknesses,
		Quotes:          wire.Quotes,
		Assessment:      *wire.Assessment,
		Recommendations: wire.Recommendations,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
