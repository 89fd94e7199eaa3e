package models

// Tier is a visitor threat classification.
type Tier string

const (
	TierClean  Tier = "CLEAN"
	TierWarn   Tier = "WARN"
	TierTarpit Tier = "TARPIT"
	TierBlock  Tier = "BLOCK"
)

// Rank orders tiers from CLEAN (0) to BLOCK (3).
func (t Tier) Rank() int {
	switch t {
	case TierWarn:
		return 1
	case TierTarpit:
		return 2
	case TierBlock:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t is the same tier as other or higher.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}
