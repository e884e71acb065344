package models

// ThreatTier is a discrete escalation level derived from an identity's
// failure count. It is computed fresh on every read and never stored.
type ThreatTier string

const (
	TierNone             ThreatTier = "none"
	TierLight            ThreatTier = "light"
	TierModerate         ThreatTier = "moderate"
	TierElevated         ThreatTier = "elevated"
	TierHigh             ThreatTier = "high"
	TierSevere           ThreatTier = "severe"
	TierBlockedShort     ThreatTier = "blocked_short"
	TierBlockedLong      ThreatTier = "blocked_long"
	TierBlockedPermanent ThreatTier = "blocked_permanent"
)

// Tier floors: the failure count at which each tier begins.
const (
	lightFloor            = 3
	moderateFloor         = 5
	elevatedFloor         = 10
	highFloor             = 15
	severeFloor           = 20
	BlockedShortFloor     = 30
	BlockedLongFloor      = 50
	BlockedPermanentFloor = 100
)

// TierForCount maps a failure count to its threat tier.
func TierForCount(count int) ThreatTier {
	switch {
	case count >= BlockedPermanentFloor:
		return TierBlockedPermanent
	case count >= BlockedLongFloor:
		return TierBlockedLong
	case count >= BlockedShortFloor:
		return TierBlockedShort
	case count >= severeFloor:
		return TierSevere
	case count >= highFloor:
		return TierHigh
	case count >= elevatedFloor:
		return TierElevated
	case count >= moderateFloor:
		return TierModerate
	case count >= lightFloor:
		return TierLight
	default:
		return TierNone
	}
}

// Blocked reports whether the tier rejects requests outright.
func (t ThreatTier) Blocked() bool {
	switch t {
	case TierBlockedShort, TierBlockedLong, TierBlockedPermanent:
		return true
	}
	return false
}

// ChallengeType returns the challenge type the tier demands. Blocked tiers
// return ChallengeTypeNone since no challenge is issued while blocked.
func (t ThreatTier) ChallengeType() ChallengeType {
	switch t {
	case TierLight:
		return ChallengeTypeArithmetic
	case TierModerate:
		return ChallengeTypeProofOfWork
	case TierElevated, TierHigh, TierSevere:
		return ChallengeTypeProofOfWorkExtended
	default:
		return ChallengeTypeNone
	}
}

// DifficultyForCount returns the proof-of-work difficulty (leading zero hex
// digits) for a failure count. Within the moderate band difficulty scales
// with the count; the extended bands use fixed difficulties.
func DifficultyForCount(count int) int {
	switch TierForCount(count) {
	case TierLight:
		return 1
	case TierModerate:
		d := 3 + (count - moderateFloor)
		if d > 6 {
			d = 6
		}
		return d
	case TierElevated:
		return 3
	case TierHigh:
		return 4
	case TierSevere:
		return 5
	default:
		return 0
	}
}
