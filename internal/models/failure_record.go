package models

import "time"

// FailureRecord tracks recent authentication failures for one identity.
// Count never goes negative: it only climbs via recorded failures and only
// drops via halving on success or expiry of the whole record.
type FailureRecord struct {
	IdentityKey   string    `db:"identity_key"`
	Count         int       `db:"count"`
	WindowStart   time.Time `db:"window_start"`
	LastFailureAt time.Time `db:"last_failure_at"`
	ExpiresAt     time.Time `db:"expires_at"`
}

// Tier derives the threat tier for the record's current count.
func (r *FailureRecord) Tier() ThreatTier {
	if r == nil {
		return TierNone
	}
	return TierForCount(r.Count)
}
