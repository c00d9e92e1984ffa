package transcript

import (
	"errors"
	"testing"

	"github.com/viva-learn/viva/internal/model"
)

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Role
	}{
		{"user", model.RoleUser},
		{"Student", model.RoleUser},
		{"LEARNER", model.RoleUser},
		{"  human  ", model.RoleUser},
		{"assistant", model.RoleAssistant},
		{"AI", model.RoleAssistant},
		{"Replica", model.RoleAssistant},
		{"tutor", model.RoleAssistant},
		{"narrator", model.RoleUser}, // unknown defaults to user
		{"", model.RoleUser},
	}

	for _, tt := range tests {
		if got := NormalizeRole(tt.raw); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeFiltersNoise(t *testing.T) {
	raw := []model.RawTranscriptEntry{
		{Role: "assistant", Content: "Tell me about goroutines."},
		{Role: "user", Content: "ok"},   // too short, dropped
		{Role: "user", Content: "mm "},  // too short after trim, dropped
		{Role: "user", Content: "はい"}, // 2 characters across 6 bytes, dropped
		{Role: "user", Content: "A goroutine is a lightweight thread."},
		{Role: "user", Content: "ゴルーチンは軽量スレッドです"}, // long enough in characters
	}

	entries, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Role != model.RoleAssistant {
		t.Errorf("entry 0 role %s, want assistant", entries[0].Role)
	}
	if entries[1].Role != model.RoleUser {
		t.Errorf("entry 1 role %s, want user", entries[1].Role)
	}
	if entries[2].Content != "ゴルーチンは軽量スレッドです" {
		t.Errorf("entry 2 = %q, multibyte entry above the length floor was dropped", entries[2].Content)
	}
}

func TestNormalizePreservesOrder(t *testing.T) {
	raw := []model.RawTranscriptEntry{
		{Role: "assistant", Content: "first question"},
		{Role: "user", Content: "first answer"},
		{Role: "assistant", Content: "second question"},
		{Role: "user", Content: "second answer"},
	}
	entries, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"first question", "first answer", "second question", "second answer"}
	for i, w := range want {
		if entries[i].Content != w {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Content, w)
		}
	}
}

func TestNormalizeEmptyTranscript(t *testing.T) {
	tests := []struct {
		name string
		raw  []model.RawTranscriptEntry
	}{
		{"no entries", nil},
		{"only assistant", []model.RawTranscriptEntry{
			{Role: "assistant", Content: "anyone there? hello?"},
		}},
		{"only noise from user", []model.RawTranscriptEntry{
			{Role: "assistant", Content: "tell me about channels"},
			{Role: "user", Content: "uh"},
			{Role: "user", Content: "hm"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			if !errors.Is(err, model.ErrEmptyTranscript) {
				t.Errorf("Normalize() error = %v, want ErrEmptyTranscript", err)
			}
		})
	}
}
