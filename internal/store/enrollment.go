package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// CreateEnrollment inserts an active enrollment, superseding any prior
// active row for the same (user, course): the old row transitions to
// dropped rather than being deleted, so history is preserved.
func (s *Store) CreateEnrollment(ctx context.Context, userID, courseID string) (*model.EnrollmentProgress, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE enrollments SET status = ? WHERE user_id = ? AND course_id = ? AND status = ?`),
		model.EnrollmentDropped, userID, courseID, model.EnrollmentActive); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	enr := model.EnrollmentProgress{
		UserID:     userID,
		CourseID:   courseID,
		Status:     model.EnrollmentActive,
		EnrolledAt: now,
	}
	if s.driver == DriverPostgres {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO enrollments (user_id, course_id, current_module_index, status, enrolled_at)
			 VALUES ($1, $2, 0, $3, $4) RETURNING id`,
			userID, courseID, model.EnrollmentActive, now).Scan(&enr.ID)
		if err != nil {
			return nil, err
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO enrollments (user_id, course_id, current_module_index, status, enrolled_at)
			 VALUES (?, ?, 0, ?, ?)`,
			userID, courseID, model.EnrollmentActive, now)
		if err != nil {
			return nil, err
		}
		enr.ID, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	}
	return &enr, tx.Commit()
}

// GetActiveEnrollment returns the active enrollment for (user, course),
// or nil when none exists.
func (s *Store) GetActiveEnrollment(ctx context.Context, userID, courseID string) (*model.EnrollmentProgress, error) {
	var enr model.EnrollmentProgress
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, course_id, current_module_index, status, enrolled_at
		 FROM enrollments WHERE user_id = ? AND course_id = ? AND status = ?`),
		userID, courseID, model.EnrollmentActive,
	).Scan(&enr.ID, &enr.UserID, &enr.CourseID, &enr.CurrentModuleIndex, &enr.Status, &enr.EnrolledAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enr, nil
}

// ListEnrollments returns all enrollment rows for a user, newest first.
func (s *Store) ListEnrollments(ctx context.Context, userID string) ([]model.EnrollmentProgress, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, course_id, current_module_index, status, enrolled_at
		 FROM enrollments WHERE user_id = ? ORDER BY id DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EnrollmentProgress
	for rows.Next() {
		var enr model.EnrollmentProgress
		if err := rows.Scan(&enr.ID, &enr.UserID, &enr.CourseID, &enr.CurrentModuleIndex, &enr.Status, &enr.EnrolledAt); err != nil {
			return nil, err
		}
		out = append(out, enr)
	}
	return out, rows.Err()
}

// SetModuleIndex writes the module index on an enrollment row. The
// monotonicity guard lives in the tracker, which reads before writing.
func (s *Store) SetModuleIndex(ctx context.Context, enrollmentID int64, index int) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE enrollments SET current_module_index = ? WHERE id = ?`), index, enrollmentID)
	return err
}

// SetEnrollmentStatus updates an enrollment row's status.
func (s *Store) SetEnrollmentStatus(ctx context.Context, enrollmentID int64, status model.EnrollmentStatus) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE enrollments SET status = ? WHERE id = ?`), status, enrollmentID)
	return err
}

// CountEnrollments returns how many rows with the given status exist for
// (user, course).
func (s *Store) CountEnrollments(ctx context.Context, userID, courseID string, status model.EnrollmentStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND course_id = ? AND status = ?`),
		userID, courseID, status).Scan(&count)
	return count, err
}
