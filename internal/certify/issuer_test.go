package certify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted []model.CertificateRecord
	refs     map[string]string
	insertErr error
	attached chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{refs: make(map[string]string), attached: make(chan struct{}, 1)}
}

func (f *fakeStore) InsertCertificate(_ context.Context, cert model.CertificateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, cert)
	return nil
}

func (f *fakeStore) AttachLedgerRef(_ context.Context, certificateID, ledgerRef string) error {
	f.mu.Lock()
	f.refs[certificateID] = ledgerRef
	f.mu.Unlock()
	f.attached <- struct{}{}
	return nil
}

type fakeLedger struct {
	ref      string
	err      error
	anchored chan struct{}
}

func (f *fakeLedger) Anchor(_ context.Context, _, _ string) (string, error) {
	defer func() { f.anchored <- struct{}{} }()
	return f.ref, f.err
}

func sampleResult() *model.EvaluationResult {
	return &model.EvaluationResult{
		Score:           82,
		Breakdown:       model.ScoreBreakdown{Conceptual: 24, Depth: 33, Practical: 25},
		Strengths:       []string{"s"},
		Weaknesses:      []string{"w"},
		Quotes:          []string{"q"},
		Assessment:      strings.Repeat("a", 60),
		Recommendations: []string{"r"},
	}
}

func sampleEntries() []model.TranscriptEntry {
	return []model.TranscriptEntry{
		{Role: model.RoleAssistant, Content: "tell me about channels"},
		{Role: model.RoleUser, Content: "channels are typed conduits"},
	}
}

func TestIssuePersistsRecord(t *testing.T) {
	fs := newFakeStore()
	issuer := NewIssuer(fs, nil)

	cert, err := issuer.Issue(context.Background(), "student-1", "course-1", sampleResult(), sampleEntries(), model.TierGold)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if cert.CertificateID == "" || !strings.HasPrefix(cert.CertificateID, "cert-") {
		t.Errorf("unexpected certificate id %q", cert.CertificateID)
	}
	if cert.Score != 82 || cert.MaxScore != model.MaxScore {
		t.Errorf("score %d/%d, want 82/%d", cert.Score, cert.MaxScore, model.MaxScore)
	}
	if cert.Tier != model.TierGold {
		t.Errorf("tier %s, want gold", cert.Tier)
	}
	if cert.Status != model.CertificateActive {
		t.Errorf("status %s, want active", cert.Status)
	}
	if cert.TranscriptFingerprint == "" {
		t.Error("missing transcript fingerprint")
	}
	if len(fs.inserted) != 1 {
		t.Fatalf("inserted %d records, want 1", len(fs.inserted))
	}
}

func TestIssueUniqueIDs(t *testing.T) {
	fs := newFakeStore()
	issuer := NewIssuer(fs, nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		cert, err := issuer.Issue(context.Background(), "s", "c", sampleResult(), sampleEntries(), model.TierBronze)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[cert.CertificateID] {
			t.Fatalf("duplicate certificate id %q", cert.CertificateID)
		}
		seen[cert.CertificateID] = true
	}
}

func TestIssueStoreFailure(t *testing.T) {
	fs := newFakeStore()
	fs.insertErr = errors.New("disk full")
	issuer := NewIssuer(fs, nil)

	_, err := issuer.Issue(context.Background(), "s", "c", sampleResult(), sampleEntries(), model.TierBronze)
	var issErr *model.IssuanceError
	if !errors.As(err, &issErr) {
		t.Fatalf("Issue error = %T, want *model.IssuanceError", err)
	}
}

func TestIssueAnchorsOpportunistically(t *testing.T) {
	fs := newFakeStore()
	ledger := &fakeLedger{ref: "ledger-ref-1", anchored: make(chan struct{}, 1)}
	issuer := NewIssuer(fs, ledger)

	cert, err := issuer.Issue(context.Background(), "s", "c", sampleResult(), sampleEntries(), model.TierSilver)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	select {
	case <-fs.attached:
	case <-time.After(2 * time.Second):
		t.Fatal("ledger ref was never attached")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.refs[cert.CertificateID] != "ledger-ref-1" {
		t.Errorf("attached ref %q, want ledger-ref-1", fs.refs[cert.CertificateID])
	}
}

func TestIssueLedgerFailureSwallowed(t *testing.T) {
	fs := newFakeStore()
	ledger := &fakeLedger{err: errors.New("chain unreachable"), anchored: make(chan struct{}, 1)}
	issuer := NewIssuer(fs, ledger)

	cert, err := issuer.Issue(context.Background(), "s", "c", sampleResult(), sampleEntries(), model.TierBronze)
	if err != nil {
		t.Fatalf("Issue should not surface anchoring failures, got %v", err)
	}

	select {
	case <-ledger.anchored:
	case <-time.After(2 * time.Second):
		t.Fatal("ledger was never called")
	}
	if cert.LedgerRef != "" {
		t.Errorf("ledger ref %q, want empty", cert.LedgerRef)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(sampleEntries(), sampleResult())
	b := Fingerprint(sampleEntries(), sampleResult())
	if a != b {
		t.Errorf("fingerprint not stable: %q vs %q", a, b)
	}

	changed := sampleEntries()
	changed[1].Content = "channels are magic"
	if Fingerprint(changed, sampleResult()) == a {
		t.Error("fingerprint did not change with transcript content")
	}
}
