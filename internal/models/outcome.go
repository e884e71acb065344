package models

// Outcome is the typed result of a verification or assessment. All outcomes
// except storage faults are routine and reported to callers as values, not
// errors; the caller decides whether to re-issue a harder challenge or stop.
type Outcome string

const (
	OutcomeVerified          Outcome = "verified"
	OutcomeChallengeNotFound Outcome = "challenge_not_found"
	OutcomeChallengeExpired  Outcome = "challenge_expired"
	OutcomeChallengeUsed     Outcome = "challenge_already_used"
	OutcomeIdentityMismatch  Outcome = "identity_mismatch"
	OutcomeInvalidSolution   Outcome = "invalid_solution"
)

// VerifyResult is what the verifier hands back to the calling endpoint.
type VerifyResult struct {
	Outcome Outcome
	Record  *FailureRecord // updated counters after the verdict
}

// Verified reports whether exactly this call won the challenge.
func (r *VerifyResult) Verified() bool {
	return r.Outcome == OutcomeVerified
}
