package store

import (
	"context"
	"database/sql"

	"github.com/viva-learn/viva/internal/model"
)

// InsertSession stores a newly initiated session.
func (s *Store) InsertSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO sessions (id, user_id, course_id, course_topic, module_summary, mode, room_handle, conversation_id, persona_id, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sess.ID, sess.UserID, sess.CourseID, sess.CourseTopic, sess.ModuleSummary,
		sess.Mode, sess.RoomHandle, sess.ConversationID, sess.PersonaID, sess.State, sess.CreatedAt,
	)
	return err
}

// GetSession returns a session by id, or nil when it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, course_id, course_topic, module_summary, mode, room_handle, conversation_id, persona_id, state, created_at
		 FROM sessions WHERE id = ?`), id,
	).Scan(&sess.ID, &sess.UserID, &sess.CourseID, &sess.CourseTopic, &sess.ModuleSummary,
		&sess.Mode, &sess.RoomHandle, &sess.ConversationID, &sess.PersonaID, &sess.State, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSessionState records the session's connection state.
func (s *Store) UpdateSessionState(ctx context.Context, id string, state model.ConnectionState) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET state = ? WHERE id = ?`), state, id)
	return err
}
