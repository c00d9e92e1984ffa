package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viva-learn/viva/internal/certify"
	"github.com/viva-learn/viva/internal/model"
	"github.com/viva-learn/viva/internal/pipeline"
	"github.com/viva-learn/viva/internal/progress"
	"github.com/viva-learn/viva/internal/room"
	"github.com/viva-learn/viva/internal/session"
	"github.com/viva-learn/viva/internal/store"
	"github.com/viva-learn/viva/internal/transcript"
)

// scriptedProvider runs a queue of responses, optionally parking inside the
// call until released so tests can hold a start mid-flight.
type scriptedProvider struct {
	entered chan struct{}
	release chan struct{}
	errs    []error
	calls   int
}

func (p *scriptedProvider) CreateConversation(_ context.Context, req room.CreateRequest) (*room.Conversation, error) {
	p.calls++
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &room.Conversation{
		ConversationID: "conv-1",
		RoomHandle:     "room-1",
		PersonaID:      req.PersonaID,
	}, nil
}

type noopBeacon struct{}

func (noopBeacon) EndConversation(string) {}

type emptySource struct{}

func (emptySource) FetchLog(context.Context, string) ([]model.RawTranscriptEntry, bool, error) {
	return nil, false, nil
}

type noopOracle struct{}

func (noopOracle) Evaluate(context.Context, []model.TranscriptEntry, string, string) (*model.EvaluationResult, error) {
	return nil, &model.ProviderError{Err: errors.New("not under test")}
}

func newTestAPI(t *testing.T, provider session.Provider) (http.Handler, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tracker := progress.NewTracker(s)
	pipe := pipeline.New(pipeline.Config{
		Fetcher:     transcript.NewFetcher(emptySource{}, time.Millisecond, 1),
		Oracle:      noopOracle{},
		Issuer:      certify.NewIssuer(s, nil),
		Tracker:     tracker,
		EvalRetries: 1,
		EvalBackoff: time.Millisecond,
	})
	h := New(s, session.NewInitiator(provider, s), pipe, tracker, noopBeacon{}, time.Second)

	r := chi.NewRouter()
	h.Routes(r)
	return r, s
}

func doJSON(t *testing.T, api http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func startBody(userID string, mode model.SessionMode) map[string]any {
	return map[string]any{
		"user_id":      userID,
		"user_name":    "Sam",
		"course_id":    "course-1",
		"course_topic": "Databases",
		"mode":         mode,
	}
}

func TestStartSessionConcurrentDuplicate(t *testing.T) {
	provider := &scriptedProvider{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	api, _ := newTestAPI(t, provider)

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- doJSON(t, api, http.MethodPost, "/api/sessions", startBody("user-1", model.ModeExam))
	}()

	// The first start is now parked inside the provider call; a second
	// start for the same user must conflict, not race past the check.
	<-provider.entered
	if rec := doJSON(t, api, http.MethodPost, "/api/sessions", startBody("user-1", model.ModeExam)); rec.Code != http.StatusConflict {
		t.Errorf("duplicate start = %d, want 409", rec.Code)
	}

	close(provider.release)
	if rec := <-first; rec.Code != http.StatusCreated {
		t.Errorf("first start = %d, want 201", rec.Code)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestStartSessionSlotReleasedOnRejection(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("quota exceeded"), nil}}
	api, _ := newTestAPI(t, provider)

	if rec := doJSON(t, api, http.MethodPost, "/api/sessions", startBody("user-1", model.ModeExam)); rec.Code != http.StatusBadGateway {
		t.Fatalf("rejected start = %d, want 502", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodPost, "/api/sessions", startBody("user-1", model.ModeExam)); rec.Code != http.StatusCreated {
		t.Errorf("retry after rejection = %d, want 201", rec.Code)
	}
}

func TestCompleteProcessedOnce(t *testing.T) {
	provider := &scriptedProvider{}
	api, s := newTestAPI(t, provider)

	if _, err := progress.NewTracker(s).Enroll(context.Background(), "user-1", "course-1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	rec := doJSON(t, api, http.MethodPost, "/api/sessions", startBody("user-1", model.ModePractice))
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d, want 201", rec.Code)
	}
	var sess model.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	body := map[string]any{"module_index": 0, "last_module": false}
	first := doJSON(t, api, http.MethodPost, "/api/sessions/"+sess.ID+"/complete", body)
	if first.Code != http.StatusOK {
		t.Fatalf("complete = %d, want 200", first.Code)
	}
	second := doJSON(t, api, http.MethodPost, "/api/sessions/"+sess.ID+"/complete", body)
	if second.Code != http.StatusOK {
		t.Fatalf("repeated complete = %d, want 200", second.Code)
	}

	var out1, out2 model.SessionOutcome
	if err := json.Unmarshal(first.Body.Bytes(), &out1); err != nil {
		t.Fatalf("decode first outcome: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &out2); err != nil {
		t.Fatalf("decode second outcome: %v", err)
	}
	if out2.SessionID != sess.ID || !out2.CompletedAt.Equal(out1.CompletedAt) {
		t.Errorf("repeated complete returned a fresh outcome: first=%+v second=%+v", out1, out2)
	}

	// The completed session was processed once, so the module advanced once.
	enr, err := s.GetActiveEnrollment(context.Background(), "user-1", "course-1")
	if err != nil {
		t.Fatalf("GetActiveEnrollment: %v", err)
	}
	if enr == nil || enr.CurrentModuleIndex != 1 {
		t.Errorf("enrollment after repeated complete: %+v, want module index 1", enr)
	}

	// Completion frees the user's live slot.
	if rec := doJSON(t, api, http.MethodPost, "/api/sessions", startBody("user-1", model.ModeExam)); rec.Code != http.StatusCreated {
		t.Errorf("start after complete = %d, want 201", rec.Code)
	}
}
