// Package pipeline turns a completed conversation into a graded outcome:
// transcript retrieval, evaluation, certification decision, and the
// independent certificate/progress side effects.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/viva-learn/viva/internal/certify"
	"github.com/viva-learn/viva/internal/evaluate"
	"github.com/viva-learn/viva/internal/model"
	"github.com/viva-learn/viva/internal/progress"
	"github.com/viva-learn/viva/internal/transcript"
)

// Pipeline drives post-completion processing for a session.
type Pipeline struct {
	fetcher     *transcript.Fetcher
	oracle      evaluate.Oracle
	issuer      *certify.Issuer
	tracker     *progress.Tracker
	evalRetries int
	evalBackoff time.Duration
}

// Config wires a Pipeline.
type Config struct {
	Fetcher *transcript.Fetcher
	Oracle  evaluate.Oracle
	Issuer  *certify.Issuer
	Tracker *progress.Tracker
	// EvalRetries bounds provider-error retries; EvalBackoff is the
	// initial backoff, doubled per retry.
	EvalRetries int
	EvalBackoff time.Duration
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	retries := cfg.EvalRetries
	if retries <= 0 {
		retries = 2
	}
	backoff := cfg.EvalBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Pipeline{
		fetcher:     cfg.Fetcher,
		oracle:      cfg.Oracle,
		issuer:      cfg.Issuer,
		tracker:     cfg.Tracker,
		evalRetries: retries,
		evalBackoff: backoff,
	}
}

// CompleteRequest describes the completed session's place in the course.
type CompleteRequest struct {
	Session     *model.Session
	ModuleIndex int
	LastModule  bool
}

// Complete processes a completed session. Practice sessions complete
// immediately without grading. Exam sessions are graded when a transcript
// can be retrieved; transcript and evaluation failures degrade the exam to
// an ungraded completion instead of failing the learner's flow. Progress
// is always advanced exactly once; certificate issuance runs concurrently
// with it and its failure is logged, never surfaced.
func (p *Pipeline) Complete(ctx context.Context, req CompleteRequest) (*model.SessionOutcome, error) {
	sess := req.Session
	outcome := &model.SessionOutcome{
		SessionID:   sess.ID,
		CompletedAt: time.Now().UTC(),
	}

	if sess.Mode == model.ModePractice {
		p.recordProgress(ctx, sess, req)
		return outcome, nil
	}

	entries, result, note := p.grade(ctx, sess)
	if result == nil {
		outcome.GradingNote = note
		p.recordProgress(ctx, sess, req)
		return outcome, nil
	}
	outcome.Graded = true
	outcome.Evaluation = result

	decision := certify.Decide(result.Score)

	// Certificate issuance and progress recording are independent,
	// non-transactional side effects. A failure in one never undoes or
	// blocks the other.
	var wg sync.WaitGroup
	var cert *model.CertificateRecord

	if decision.Issue {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := p.issuer.Issue(ctx, sess.UserID, sess.CourseID, result, entries, decision.Tier)
			if err != nil {
				slog.Error("certificate issuance failed", "session_id", sess.ID, "error", err)
				return
			}
			cert = issued
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.recordProgress(ctx, sess, req)
	}()

	wg.Wait()
	outcome.Certificate = cert
	return outcome, nil
}

// grade fetches, normalizes, and evaluates the transcript. A nil result
// means grading did not happen; note says why.
func (p *Pipeline) grade(ctx context.Context, sess *model.Session) ([]model.TranscriptEntry, *model.EvaluationResult, string) {
	entries, err := p.fetcher.Fetch(ctx, sess.ConversationID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTranscriptUnavailable):
			slog.Warn("transcript unavailable, completing ungraded", "session_id", sess.ID)
			return nil, nil, "transcript unavailable"
		case errors.Is(err, model.ErrEmptyTranscript):
			slog.Warn("empty transcript, completing ungraded", "session_id", sess.ID)
			return nil, nil, "no gradable learner speech"
		default:
			slog.Warn("transcript fetch aborted", "session_id", sess.ID, "error", err)
			return nil, nil, "transcript retrieval interrupted"
		}
	}

	result, err := evaluate.WithRetry(ctx, p.oracle, entries, sess.CourseTopic, sess.ModuleSummary, p.evalRetries, p.evalBackoff)
	if err != nil {
		var valErr *model.ValidationError
		if errors.As(err, &valErr) {
			slog.Error("oracle result rejected", "session_id", sess.ID, "error", err)
			return nil, nil, "evaluation result failed validation"
		}
		slog.Error("evaluation failed after retries", "session_id", sess.ID, "error", err)
		return nil, nil, "evaluation unavailable"
	}
	return entries, result, ""
}

// recordProgress advances the learner past the completed module and marks
// the course completed after the last one. Enrollment rows are either
// advanced or left unchanged, never partially written.
func (p *Pipeline) recordProgress(ctx context.Context, sess *model.Session, req CompleteRequest) {
	if _, err := p.tracker.Advance(ctx, sess.UserID, sess.CourseID, req.ModuleIndex+1); err != nil {
		slog.Error("progress advance failed", "session_id", sess.ID, "error", err)
		return
	}
	if req.LastModule {
		if err := p.tracker.Complete(ctx, sess.UserID, sess.CourseID); err != nil {
			slog.Error("course completion failed", "session_id", sess.ID, "error", err)
		}
	}
}
