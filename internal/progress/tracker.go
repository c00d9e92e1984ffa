// Package progress advances enrollment state. Progress is decoupled from
// certification: a learner can complete a course without qualifying for a
// certificate.
package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viva-learn/viva/internal/model"
	"github.com/viva-learn/viva/internal/store"
)

// Tracker records enrollment and module progress.
type Tracker struct {
	store *store.Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s}
}

// Enroll creates an active enrollment for (user, course). Any prior active
// row is superseded, never deleted.
func (t *Tracker) Enroll(ctx context.Context, userID, courseID string) (*model.EnrollmentProgress, error) {
	enr, err := t.store.CreateEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("enroll %s in %s: %w", userID, courseID, err)
	}
	slog.Info("enrolled", "user_id", userID, "course_id", courseID, "enrollment_id", enr.ID)
	return enr, nil
}

// Advance moves the learner to moduleIndex. The index never regresses: an
// index at or below the current one leaves the row unchanged.
func (t *Tracker) Advance(ctx context.Context, userID, courseID string, moduleIndex int) (*model.EnrollmentProgress, error) {
	enr, err := t.store.GetActiveEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if enr == nil {
		return nil, fmt.Errorf("no active enrollment for user %s in course %s", userID, courseID)
	}
	if moduleIndex <= enr.CurrentModuleIndex {
		return enr, nil
	}
	if err := t.store.SetModuleIndex(ctx, enr.ID, moduleIndex); err != nil {
		return nil, err
	}
	enr.CurrentModuleIndex = moduleIndex
	return enr, nil
}

// Complete marks the active enrollment completed, independent of any
// certificate outcome. Completing an already-completed or missing
// enrollment is a no-op so repeated completion signals stay harmless.
func (t *Tracker) Complete(ctx context.Context, userID, courseID string) error {
	enr, err := t.store.GetActiveEnrollment(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if enr == nil {
		return nil
	}
	if err := t.store.SetEnrollmentStatus(ctx, enr.ID, model.EnrollmentCompleted); err != nil {
		return fmt.Errorf("complete enrollment %d: %w", enr.ID, err)
	}
	slog.Info("course completed", "user_id", userID, "course_id", courseID, "enrollment_id", enr.ID)
	return nil
}
