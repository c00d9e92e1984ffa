// Package handler exposes the session pipeline over a JSON HTTP API.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viva-learn/viva/internal/model"
	"github.com/viva-learn/viva/internal/pipeline"
	"github.com/viva-learn/viva/internal/progress"
	"github.com/viva-learn/viva/internal/session"
	"github.com/viva-learn/viva/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	initiator   *session.Initiator
	pipeline    *pipeline.Pipeline
	tracker     *progress.Tracker
	beacon      session.Beacon
	joinTimeout time.Duration

	mu   sync.Mutex
	live map[string]*liveSession // session id -> live state
	user map[string]string       // user id -> live session id
}

// liveSession is the in-memory state for one ongoing session.
type liveSession struct {
	sess     *model.Session
	manager  *session.Manager
	detector *session.CompletionDetector

	mu        sync.Mutex
	processed bool
	outcome   *model.SessionOutcome
}

// New creates a new Handler.
func New(s *store.Store, init *session.Initiator, p *pipeline.Pipeline, tr *progress.Tracker, beacon session.Beacon, joinTimeout time.Duration) *Handler {
	return &Handler{
		store:       s,
		initiator:   init,
		pipeline:    p,
		tracker:     tr,
		beacon:      beacon,
		joinTimeout: joinTimeout,
		live:        make(map[string]*liveSession),
		user:        make(map[string]string),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.handleStartSession)
		r.Get("/sessions/{sessionID}", h.handleGetSession)
		r.Post("/sessions/{sessionID}/join", h.handleJoin)
		r.Post("/sessions/{sessionID}/signals", h.handleSignal)
		r.Post("/sessions/{sessionID}/media", h.handleMedia)
		r.Post("/sessions/{sessionID}/leave", h.handleLeave)
		r.Post("/sessions/{sessionID}/complete", h.handleComplete)

		r.Post("/enrollments", h.handleEnroll)
		r.Get("/enrollments", h.handleListEnrollments)

		r.Get("/certificates", h.handleListCertificates)
		r.Get("/certificates/{certificateID}", h.handleGetCertificate)
		r.Post("/certificates/{certificateID}/revoke", h.handleRevokeCertificate)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startSessionRequest struct {
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name"`
	CourseID      string            `json:"course_id"`
	CourseTopic   string            `json:"course_topic"`
	ModuleSummary string            `json:"module_summary"`
	Mode          model.SessionMode `json:"mode"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.CourseID == "" || req.CourseTopic == "" {
		writeError(w, http.StatusBadRequest, "user_id, course_id, and course_topic are required")
		return
	}
	if req.Mode != model.ModePractice && req.Mode != model.ModeExam {
		writeError(w, http.StatusBadRequest, "mode must be practice or exam")
		return
	}

	// Reserve the user's slot before the provider round trip so two
	// concurrent starts cannot both pass the liveness check.
	h.mu.Lock()
	if existing, ok := h.user[req.UserID]; ok {
		h.mu.Unlock()
		msg := "a session start is already in progress"
		if existing != "" {
			msg = "a live session already exists: " + existing
		}
		writeError(w, http.StatusConflict, msg)
		return
	}
	h.user[req.UserID] = ""
	h.mu.Unlock()

	sess, err := h.initiator.Start(r.Context(), session.StartRequest{
		UserID:        req.UserID,
		UserName:      req.UserName,
		CourseID:      req.CourseID,
		CourseTopic:   req.CourseTopic,
		ModuleSummary: req.ModuleSummary,
		Mode:          req.Mode,
	})
	if err != nil {
		h.mu.Lock()
		delete(h.user, req.UserID)
		h.mu.Unlock()
		var initErr *model.InitiationError
		if errors.As(err, &initErr) {
			writeError(w, http.StatusBadGateway, "session initiation failed, please retry")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ls := &liveSession{sess: sess}
	ls.detector = session.NewCompletionDetector(func(source session.EndSource) {
		slog.Info("session completed", "session_id", sess.ID, "source", source)
	})
	ls.manager = session.NewManager(session.ManagerConfig{
		Session:     sess,
		Beacon:      h.beacon,
		Detector:    ls.detector,
		JoinTimeout: h.joinTimeout,
		Persist: func(state model.ConnectionState) {
			ctx, cancel := sqlTimeout()
			defer cancel()
			if err := h.store.UpdateSessionState(ctx, sess.ID, state); err != nil {
				slog.Error("persist session state", "session_id", sess.ID, "state", state, "error", err)
			}
		},
	})

	h.mu.Lock()
	h.live[sess.ID] = ls
	h.user[sess.UserID] = sess.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if ls := h.liveFor(id); ls != nil {
		sess := *ls.sess
		sess.State = ls.manager.State()
		writeJSON(w, http.StatusOK, sess)
		return
	}
	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(chi.URLParam(r, "sessionID"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "unknown or finished session")
		return
	}
	if err := ls.manager.Join(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": ls.manager.State()})
}

type signalRequest struct {
	Type   string                 `json:"type"`
	Reason model.ConnectionReason `json:"reason,omitempty"`
}

// handleSignal ingests transport signals reported by the client: the
// remote joined/left events, transport errors, and the embedded-transport
// incompatibility that triggers the fallback path.
func (h *Handler) handleSignal(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(chi.URLParam(r, "sessionID"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "unknown or finished session")
		return
	}
	var req signalRequest
	if !readJSON(w, r, &req) {
		return
	}

	switch req.Type {
	case "joined":
		ls.manager.HandleJoined()
	case "left":
		ls.manager.HandleRemoteLeft()
	case "error":
		ls.manager.HandleTransportError(req.Reason)
	case "transport-incompatible":
		ls.manager.HandleTransportIncompatible()
	default:
		writeError(w, http.StatusBadRequest, "unknown signal type "+req.Type)
		return
	}

	resp := map[string]any{
		"state":         ls.manager.State(),
		"fallback_used": ls.manager.FallbackUsed(),
	}
	if err := ls.manager.Err(); err != nil {
		var connErr *model.ConnectionError
		if errors.As(err, &connErr) {
			resp["failure_reason"] = connErr.Reason
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type mediaRequest struct {
	Muted    *bool `json:"muted,omitempty"`
	VideoOff *bool `json:"video_off,omitempty"`
}

func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(chi.URLParam(r, "sessionID"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "unknown or finished session")
		return
	}
	var req mediaRequest
	if !readJSON(w, r, &req) {
		return
	}
	applied := true
	if req.Muted != nil {
		applied = ls.manager.SetMuted(*req.Muted) && applied
	}
	if req.VideoOff != nil {
		applied = ls.manager.SetVideoOff(*req.VideoOff) && applied
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "state": ls.manager.State()})
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(chi.URLParam(r, "sessionID"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "unknown or finished session")
		return
	}
	ls.manager.Leave()
	writeJSON(w, http.StatusOK, map[string]any{"state": ls.manager.State()})
}

type completeRequest struct {
	ModuleIndex int  `json:"module_index"`
	LastModule  bool `json:"last_module"`
}

// handleComplete runs the post-session pipeline exactly once and returns
// the outcome; repeated calls return the cached outcome.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ls := h.liveFor(id)
	if ls == nil {
		writeError(w, http.StatusNotFound, "unknown or finished session")
		return
	}
	var req completeRequest
	if !readJSON(w, r, &req) {
		return
	}

	// Completion requires the session to have actually ended.
	ls.manager.Leave()

	// The pipeline runs under the session lock so the session is processed
	// at most once; later calls get the cached outcome. The live entry
	// stays registered for those replays, only the user's slot is freed.
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.processed {
		writeJSON(w, http.StatusOK, ls.outcome)
		return
	}

	outcome, err := h.pipeline.Complete(r.Context(), pipeline.CompleteRequest{
		Session:     ls.sess,
		ModuleIndex: req.ModuleIndex,
		LastModule:  req.LastModule,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ls.processed = true
	ls.outcome = outcome

	h.mu.Lock()
	delete(h.user, ls.sess.UserID)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, outcome)
}

type enrollRequest struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "user_id and course_id are required")
		return
	}
	enr, err := h.tracker.Enroll(r.Context(), req.UserID, req.CourseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, enr)
}

func (h *Handler) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	enrs, err := h.store.ListEnrollments(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, enrs)
}

func (h *Handler) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := h.store.ListCertificates(r.Context(), r.URL.Query().Get("student_id"), r.URL.Query().Get("course_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

func (h *Handler) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.store.GetCertificate(r.Context(), chi.URLParam(r, "certificateID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cert == nil {
		writeError(w, http.StatusNotFound, "unknown certificate")
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleRevokeCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "certificateID")
	err := h.store.RevokeCertificate(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "unknown certificate")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"certificate_id": id, "status": string(model.CertificateRevoked)})
}

func (h *Handler) liveFor(sessionID string) *liveSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live[sessionID]
}

// sqlTimeout bounds state persistence triggered from timer callbacks,
// which have no request context to inherit.
func sqlTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
