// Package transcript turns raw provider conversation logs into the
// canonical user/assistant sequence used for grading.
package transcript

import (
	"strings"
	"unicode/utf8"

	"github.com/viva-learn/viva/internal/model"
)

// minEntryLength filters out noise entries (acknowledgements, partial
// fragments) that carry no grading signal.
const minEntryLength = 6

// roleMap maps the heterogeneous role labels seen across providers onto
// the binary user/assistant set. Lookup is case-insensitive; unknown
// labels default to user.
var roleMap = map[string]model.Role{
	"user":        model.RoleUser,
	"student":     model.RoleUser,
	"learner":     model.RoleUser,
	"human":       model.RoleUser,
	"participant": model.RoleUser,
	"assistant":   model.RoleAssistant,
	"ai":          model.RoleAssistant,
	"agent":       model.RoleAssistant,
	"replica":     model.RoleAssistant,
	"system":      model.RoleAssistant,
	"tutor":       model.RoleAssistant,
}

// NormalizeRole maps a raw role label to user or assistant.
func NormalizeRole(raw string) model.Role {
	if r, ok := roleMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return r
	}
	return model.RoleUser
}

// Normalize converts raw entries into the canonical ordered sequence.
// Entries shorter than minEntryLength are dropped. It returns
// ErrEmptyTranscript when no user entries remain after filtering.
func Normalize(raw []model.RawTranscriptEntry) ([]model.TranscriptEntry, error) {
	out := make([]model.TranscriptEntry, 0, len(raw))
	users := 0
	for _, e := range raw {
		content := strings.TrimSpace(e.Content)
		if utf8.RuneCountInString(content) < minEntryLength {
			continue
		}
		role := NormalizeRole(e.Role)
		if role == model.RoleUser {
			users++
		}
		out = append(out, model.TranscriptEntry{
			Role:      role,
			Content:   content,
			Timestamp: e.Timestamp,
		})
	}
	if users == 0 {
		return nil, model.ErrEmptyTranscript
	}
	return out, nil
}
