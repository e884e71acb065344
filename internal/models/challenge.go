package models

import "time"

// ChallengeType identifies the kind of work a client must perform before an
// authentication attempt is allowed to proceed.
type ChallengeType string

const (
	ChallengeTypeNone                ChallengeType = "none"
	ChallengeTypeArithmetic          ChallengeType = "arithmetic"
	ChallengeTypeProofOfWork         ChallengeType = "proof_of_work"
	ChallengeTypeProofOfWorkExtended ChallengeType = "proof_of_work_extended"
)

// Valid reports whether the type is one of the known challenge kinds.
func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeTypeNone, ChallengeTypeArithmetic,
		ChallengeTypeProofOfWork, ChallengeTypeProofOfWorkExtended:
		return true
	}
	return false
}

// Challenge is a single-use, time-bounded task bound to one identity.
//
// For arithmetic challenges only the question text and a keyed hash of the
// expected answer are stored, never the answer itself. For proof-of-work
// variants Seed holds the random seed the client must extend with a nonce.
// Consumed flips exactly once via a compare-and-set in storage; a consumed
// challenge is never judged again, even under racing duplicate submissions.
type Challenge struct {
	ID          string        `db:"id"`
	Type        ChallengeType `db:"type"`
	IdentityKey string        `db:"identity_key"`
	Question    string        `db:"question"`
	AnswerHash  string        `db:"answer_hash"`
	Seed        string        `db:"seed"`
	Difficulty  int           `db:"difficulty"`
	IssuedAt    time.Time     `db:"issued_at"`
	ExpiresAt   time.Time     `db:"expires_at"`
	Consumed    bool          `db:"consumed"`
	ConsumedAt  *time.Time    `db:"consumed_at"`
}

// Expired reports whether the challenge's TTL has elapsed at the given time.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
