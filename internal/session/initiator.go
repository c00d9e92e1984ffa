// Package session owns the live-session lifecycle: initiation against the
// video provider, the connection state machine, and completion latching.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/viva-learn/viva/internal/model"
	"github.com/viva-learn/viva/internal/room"
	"github.com/viva-learn/viva/internal/store"
)

// Provider requests conversation rooms. Satisfied by *room.Client.
type Provider interface {
	CreateConversation(ctx context.Context, req room.CreateRequest) (*room.Conversation, error)
}

// Initiator starts new sessions. No local state is created until the
// provider accepts the request, so a rejection leaves nothing to clean up.
type Initiator struct {
	provider Provider
	store    *store.Store
}

// NewInitiator creates an initiator.
func NewInitiator(provider Provider, s *store.Store) *Initiator {
	return &Initiator{provider: provider, store: s}
}

// StartRequest carries everything needed to open a session.
type StartRequest struct {
	UserID        string
	UserName      string
	CourseID      string
	CourseTopic   string
	ModuleSummary string
	Mode          model.SessionMode
}

// Start requests a conversation room and persists the resulting session.
// Provider rejections come back as *model.InitiationError, which the
// caller surfaces as retryable.
func (i *Initiator) Start(ctx context.Context, req StartRequest) (*model.Session, error) {
	persona := room.PersonaForTopic(req.CourseTopic)

	conv, err := i.provider.CreateConversation(ctx, room.CreateRequest{
		UserID:        req.UserID,
		UserName:      req.UserName,
		CourseTopic:   req.CourseTopic,
		ModuleSummary: req.ModuleSummary,
		Mode:          string(req.Mode),
		PersonaID:     persona,
	})
	if err != nil {
		return nil, &model.InitiationError{Err: err}
	}

	sess := model.Session{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		CourseID:       req.CourseID,
		CourseTopic:    req.CourseTopic,
		ModuleSummary:  req.ModuleSummary,
		Mode:           req.Mode,
		RoomHandle:     conv.RoomHandle,
		ConversationID: conv.ConversationID,
		PersonaID:      conv.PersonaID,
		State:          model.StateIdle,
		CreatedAt:      time.Now().UTC(),
	}
	if err := i.store.InsertSession(ctx, sess); err != nil {
		return nil, &model.InitiationError{Err: err}
	}

	slog.Info("session initiated",
		"session_id", sess.ID,
		"user_id", req.UserID,
		"mode", req.Mode,
		"persona_id", sess.PersonaID,
		"conversation_id", sess.ConversationID,
	)
	return &sess, nil
}
