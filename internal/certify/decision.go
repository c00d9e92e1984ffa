// Package certify decides certificate qualification and issues
// certificate records for qualifying evaluations.
package certify

import "github.com/viva-learn/viva/internal/model"

// PassingScore is the qualification threshold for certificate issuance.
const PassingScore = 70

// Decision is the outcome of the qualification check.
type Decision struct {
	Issue bool
	Tier  model.Tier
}

// Decide maps a score to issue/no-issue and an achievement tier. The tier
// is informational metadata: it is computed for any score but only attached
// when a certificate is actually issued.
func Decide(score int) Decision {
	return Decision{
		Issue: score >= PassingScore,
		Tier:  tierFor(score),
	}
}

func tierFor(score int) model.Tier {
	switch {
	case score >= 95:
		return model.TierPlatinum
	case score >= 85:
		return model.TierGold
	case score >= 75:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}
