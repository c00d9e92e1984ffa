package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// InsertCertificate persists a certificate record and appends the matching
// pending ledger event.
func (s *Store) InsertCertificate(ctx context.Context, cert model.CertificateRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO certificates (certificate_id, student_id, course_id, score, max_score, transcript_fingerprint, tier, issued_at, status, ledger_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		cert.CertificateID, cert.StudentID, cert.CourseID, cert.Score, cert.MaxScore,
		cert.TranscriptFingerprint, cert.Tier, cert.IssuedAt, cert.Status, cert.LedgerRef,
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO ledger_events (certificate_id, fingerprint, created_at) VALUES (?, ?, ?)`),
		cert.CertificateID, cert.TranscriptFingerprint, time.Now().Unix(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetCertificate returns a certificate by id, or nil when not found.
func (s *Store) GetCertificate(ctx context.Context, certificateID string) (*model.CertificateRecord, error) {
	var cert model.CertificateRecord
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT certificate_id, student_id, course_id, score, max_score, transcript_fingerprint, tier, issued_at, status, ledger_ref
		 FROM certificates WHERE certificate_id = ?`), certificateID,
	).Scan(&cert.CertificateID, &cert.StudentID, &cert.CourseID, &cert.Score, &cert.MaxScore,
		&cert.TranscriptFingerprint, &cert.Tier, &cert.IssuedAt, &cert.Status, &cert.LedgerRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListCertificates returns certificates, optionally filtered by student
// and course. Empty strings mean no filtering on that field.
func (s *Store) ListCertificates(ctx context.Context, studentID, courseID string) ([]model.CertificateRecord, error) {
	query := `SELECT certificate_id, student_id, course_id, score, max_score, transcript_fingerprint, tier, issued_at, status, ledger_ref
	          FROM certificates WHERE 1=1`
	var args []any
	if studentID != "" {
		query += ` AND student_id = ?`
		args = append(args, studentID)
	}
	if courseID != "" {
		query += ` AND course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY issued_at DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var certs []model.CertificateRecord
	for rows.Next() {
		var cert model.CertificateRecord
		if err := rows.Scan(&cert.CertificateID, &cert.StudentID, &cert.CourseID, &cert.Score, &cert.MaxScore,
			&cert.TranscriptFingerprint, &cert.Tier, &cert.IssuedAt, &cert.Status, &cert.LedgerRef); err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

// AttachLedgerRef records the ledger reference on both the certificate and
// its ledger event once anchoring succeeds.
func (s *Store) AttachLedgerRef(ctx context.Context, certificateID, ledgerRef string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE certificates SET ledger_ref = ? WHERE certificate_id = ?`), ledgerRef, certificateID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE ledger_events SET ledger_ref = ? WHERE certificate_id = ?`), ledgerRef, certificateID); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeCertificate flips a certificate to revoked. The record is kept.
func (s *Store) RevokeCertificate(ctx context.Context, certificateID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE certificates SET status = ? WHERE certificate_id = ?`),
		model.CertificateRevoked, certificateID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}
