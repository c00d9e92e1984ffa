package session

import "sync"

// EndSource identifies which side reported that the session ended.
type EndSource string

const (
	EndLocal  EndSource = "local"
	EndRemote EndSource = "remote"
)

// CompletionDetector latches on the first "ended" signal regardless of
// source and ignores the rest, so near-simultaneous local and remote end
// signals cannot trigger duplicate downstream processing.
type CompletionDetector struct {
	once sync.Once
	fn   func(source EndSource)
}

// NewCompletionDetector wraps the completion callback.
func NewCompletionDetector(fn func(source EndSource)) *CompletionDetector {
	return &CompletionDetector{fn: fn}
}

// Signal reports a session end. Only the first call runs the callback;
// it returns true when this call was the one that latched.
func (d *CompletionDetector) Signal(source EndSource) bool {
	fired := false
	d.once.Do(func() {
		fired = true
		if d.fn != nil {
			d.fn(source)
		}
	})
	return fired
}
