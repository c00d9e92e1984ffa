package certify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/viva-learn/viva/internal/model"
)

// Store persists certificate records. Satisfied by *store.Store.
type Store interface {
	InsertCertificate(ctx context.Context, cert model.CertificateRecord) error
	AttachLedgerRef(ctx context.Context, certificateID, ledgerRef string) error
}

// Ledger anchors fingerprints externally. Anchoring is best-effort: a nil
// Ledger or an anchoring failure leaves the record valid without a ref.
type Ledger interface {
	Anchor(ctx context.Context, certificateID, fingerprint string) (ledgerRef string, err error)
}

// Issuer mints and persists certificates for qualifying evaluations.
type Issuer struct {
	store  Store
	ledger Ledger
}

// NewIssuer creates an issuer. ledger may be nil.
func NewIssuer(store Store, ledger Ledger) *Issuer {
	return &Issuer{store: store, ledger: ledger}
}

// Issue persists a certificate for a qualifying evaluation and then
// attempts ledger anchoring opportunistically. Each qualifying completion
// mints a fresh certificate id. A *model.IssuanceError means nothing was
// persisted; anchoring failures are logged and swallowed.
func (i *Issuer) Issue(ctx context.Context, studentID, courseID string, result *model.EvaluationResult, entries []model.TranscriptEntry, tier model.Tier) (*model.CertificateRecord, error) {
	now := time.Now().UTC()
	cert := model.CertificateRecord{
		CertificateID:         newCertificateID(now),
		StudentID:             studentID,
		CourseID:              courseID,
		Score:                 result.Score,
		MaxScore:              model.MaxScore,
		TranscriptFingerprint: Fingerprint(entries, result),
		Tier:                  tier,
		IssuedAt:              now,
		Status:                model.CertificateActive,
	}

	if err := i.store.InsertCertificate(ctx, cert); err != nil {
		return nil, &model.IssuanceError{Err: err}
	}
	slog.Info("certificate issued",
		"certificate_id", cert.CertificateID,
		"student_id", studentID,
		"course_id", courseID,
		"score", result.Score,
		"tier", tier,
	)

	if i.ledger != nil {
		i.anchor(cert)
	}
	return &cert, nil
}

// anchor runs ledger anchoring on its own goroutine with a deadline
// detached from the issuing request. The record stays valid either way.
func (i *Issuer) anchor(cert model.CertificateRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ref, err := i.ledger.Anchor(ctx, cert.CertificateID, cert.TranscriptFingerprint)
		if err != nil {
			slog.Warn("ledger anchoring failed", "certificate_id", cert.CertificateID, "error", err)
			return
		}
		if err := i.store.AttachLedgerRef(ctx, cert.CertificateID, ref); err != nil {
			slog.Warn("attach ledger ref failed", "certificate_id", cert.CertificateID, "error", err)
			return
		}
		slog.Info("certificate anchored", "certificate_id", cert.CertificateID, "ledger_ref", ref)
	}()
}

// Fingerprint computes a stable digest of the graded transcript and
// evaluation payload for tamper evidence.
func Fingerprint(entries []model.TranscriptEntry, result *model.EvaluationResult) string {
	payload := struct {
		Entries []model.TranscriptEntry `json:"entries"`
		Result  *model.EvaluationResult `json:"result"`
	}{entries, result}
	data, _ := json.Marshal(payload)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// newCertificateID builds a globally unique id from the issuance timestamp
// plus a random suffix.
func newCertificateID(now time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("cert-%s-%s", now.Format("20060102150405"), suffix)
}
