package certify

import (
	"testing"

	"github.com/viva-learn/viva/internal/model"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		score     int
		wantIssue bool
		wantTier  model.Tier
	}{
		{0, false, model.TierBronze},
		{69, false, model.TierBronze},
		{70, true, model.TierBronze},
		{74, true, model.TierBronze},
		{75, true, model.TierSilver},
		{84, true, model.TierSilver},
		{85, true, model.TierGold},
		{94, true, model.TierGold},
		{95, true, model.TierPlatinum},
		{100, true, model.TierPlatinum},
	}

	for _, tt := range tests {
		d := Decide(tt.score)
		if d.Issue != tt.wantIssue {
			t.Errorf("Decide(%d).Issue = %v, want %v", tt.score, d.Issue, tt.wantIssue)
		}
		if d.Tier != tt.wantTier {
			t.Errorf("Decide(%d).Tier = %s, want %s", tt.score, d.Tier, tt.wantTier)
		}
	}
}
