// Package pow defines the proof-of-work protocol shared between challenge
// issuance and verification.
//
// The contract: given a seed string and difficulty d, the client must find a
// nonce such that the hexadecimal SHA-256 digest of seed || nonce begins with
// d zero hex digits. Expected client work is 16^d hash evaluations in the
// worst case; verification is a single hash regardless of how the client
// parallelized its search.
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// MaxDifficulty bounds how many leading zero hex digits a challenge may
// demand. SHA-256 hex digests are 64 digits long, but anything past 8 is
// unsolvable in practice.
const MaxDifficulty = 8

// Digest returns the hex SHA-256 digest of seed || nonce.
func Digest(seed, nonce string) string {
	sum := sha256.Sum256([]byte(seed + nonce))
	return hex.EncodeToString(sum[:])
}

// CheckSolution reports whether nonce solves the challenge at the given
// difficulty. Difficulty zero accepts any nonce.
func CheckSolution(seed, nonce string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > MaxDifficulty {
		return false
	}
	return strings.HasPrefix(Digest(seed, nonce), strings.Repeat("0", difficulty))
}

// Solve performs the brute-force nonce search a client would run. It exists
// as the reference implementation of the client side of the protocol and for
// tests; the service itself never calls it. Returns the first solving nonce,
// or ok=false if maxIterations is exhausted first.
func Solve(seed string, difficulty int, maxIterations uint64) (nonce string, ok bool) {
	if difficulty <= 0 {
		return "0", true
	}
	prefix := strings.Repeat("0", difficulty)
	for i := uint64(0); i < maxIterations; i++ {
		candidate := strconv.FormatUint(i, 10)
		if strings.HasPrefix(Digest(seed, candidate), prefix) {
			return candidate, true
		}
	}
	return "", false
}
