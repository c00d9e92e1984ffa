package model

import (
	"errors"
	"fmt"
)

// ConnectionReason classifies why a connection attempt failed.
type ConnectionReason string

const (
	ReasonPermissionDenied      ConnectionReason = "permission-denied"
	ReasonNetwork               ConnectionReason = "network"
	ReasonTimeout               ConnectionReason = "timeout"
	ReasonTransportIncompatible ConnectionReason = "transport-incompatible"
	ReasonUnknown               ConnectionReason = "unknown"
)

// InitiationError means the video-session provider rejected the request.
// No local session exists when it is returned; the user may simply retry.
type InitiationError struct {
	Err error
}

func (e *InitiationError) Error() string { return fmt.Sprintf("session initiation: %v", e.Err) }
func (e *InitiationError) Unwrap() error { return e.Err }

// ConnectionError is fatal to the current connection attempt. Retry and
// fallback are caller decisions.
type ConnectionError struct {
	Reason ConnectionReason
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connection failed (%s)", e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Transcript failures degrade an exam to an ungraded completion; they are
// never fatal to the learner's flow.
var (
	ErrTranscriptUnavailable = errors.New("transcript unavailable after polling")
	ErrEmptyTranscript       = errors.New("no learner entries in transcript")
)

// ValidationError means the oracle's response violated the result contract.
// Contract mismatches are not transient, so these are never retried.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("evaluation result invalid: %s: %s", e.Field, e.Detail)
}

// ProviderError wraps a transport or provider failure from the scoring
// oracle. The caller retries these a bounded number of times with backoff.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("evaluation provider: %v", e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// IssuanceError is logged and swallowed: certificate persistence failures
// never surface as pipeline failures.
type IssuanceError struct {
	Err error
}

func (e *IssuanceError) Error() string { return fmt.Sprintf("certificate issuance: %v", e.Err) }
func (e *IssuanceError) Unwrap() error { return e.Err }
