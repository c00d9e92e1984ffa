package model

import (
	"time"
)

// SessionMode distinguishes ungraded practice conversations from formal exams.
type SessionMode string

const (
	ModePractice SessionMode = "practice"
	ModeExam     SessionMode = "exam"
)

// ConnectionState is the live-session connection state.
type ConnectionState string

const (
	StateIdle       ConnectionState = "idle"
	StateConnecting ConnectionState = "connecting"
	StateConnected  ConnectionState = "connected"
	StateDegraded   ConnectionState = "degraded"
	StateEnded      ConnectionState = "ended"
	StateFailed     ConnectionState = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ConnectionState) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Session is a single live conversational assessment session.
// Created by the initiator once the provider accepts the request;
// its connection state is owned exclusively by the connection manager.
type Session struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	CourseID       string          `json:"course_id"`
	CourseTopic    string          `json:"course_topic"`
	ModuleSummary  string          `json:"module_summary"`
	Mode           SessionMode     `json:"mode"`
	RoomHandle     string          `json:"room_handle"`
	ConversationID string          `json:"conversation_id"`
	PersonaID      string          `json:"persona_id"`
	State          ConnectionState `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Role is a transcript speaker role after normalization.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one normalized turn of the conversation.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RawTranscriptEntry is a conversation-log entry as the provider returns it,
// before role normalization and noise filtering.
type RawTranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Tier is the achievement banding attached to issued certificates.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// CertificateStatus marks whether a certificate is still valid.
type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateRevoked CertificateStatus = "revoked"
)

// CertificateRecord is the persisted credential for a qualifying completion.
// LedgerRef attaches asynchronously; its absence never invalidates the record.
type CertificateRecord struct {
	CertificateID         string            `json:"certificate_id"`
	StudentID             string            `json:"student_id"`
	CourseID              string            `json:"course_id"`
	Score                 int               `json:"score"`
	MaxScore              int               `json:"max_score"`
	TranscriptFingerprint string            `json:"transcript_fingerprint"`
	Tier                  Tier              `json:"tier"`
	IssuedAt              time.Time         `json:"issued_at"`
	Status                CertificateStatus `json:"status"`
	LedgerRef             string            `json:"ledger_ref,omitempty"`
}

// EnrollmentStatus is the lifecycle state of an enrollment row.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// EnrollmentProgress records a learner's position in a course.
// At most one active row exists per (user, course); re-enrollment drops
// the prior active row rather than deleting it.
type EnrollmentProgress struct {
	ID                 int64            `json:"id"`
	UserID             string           `json:"user_id"`
	CourseID           string           `json:"course_id"`
	CurrentModuleIndex int              `json:"current_module_index"`
	Status             EnrollmentStatus `json:"status"`
	EnrolledAt         time.Time        `json:"enrolled_at"`
}

// SessionOutcome is what the pipeline produces for a completed session.
// Evaluation and Certificate are nil when grading did not happen
// (practice mode, or transcript unavailable).
type SessionOutcome struct {
	SessionID   string             `json:"session_id"`
	Graded      bool               `json:"graded"`
	Evaluation  *EvaluationResult  `json:"evaluation,omitempty"`
	Certificate *CertificateRecord `json:"certificate,omitempty"`
	GradingNote string             `json:"grading_note,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

// CertificateExport is the JSON shape of the export command output.
type CertificateExport struct {
	ExportedAt   time.Time           `json:"exported_at"`
	Count        int                 `json:"count"`
	Certificates []CertificateRecord `json:"certificates"`
}
