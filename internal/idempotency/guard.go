// Package idempotency provides the atomic claim primitive that
// side-effecting handlers use to guarantee at-most-once execution under
// duplicate or concurrent deliveries of the same request.
//
// A claim is an insert-if-absent on (key, scope): for any given key,
// exactly one concurrent claimer wins within the TTL window. Claims are
// never released early; they expire passively, so rapid retries after a
// downstream failure are still deduplicated.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTTL is how long a claim blocks re-execution of the same key.
const DefaultTTL = time.Hour

// Guard is the atomic claim port backing idempotent execution.
type Guard interface {
	// Claim attempts to insert a record for (keyHash, scope) with the
	// given TTL. It returns true when this caller won the slot, false
	// when a live record already exists. The insert must be atomic at the
	// storage layer: a check-then-act implementation is not acceptable.
	Claim(ctx context.Context, keyHash, scope string, ttl time.Duration) (bool, error)
}

// Key derives a deterministic idempotency key hash from its parts,
// typically principal, resource ID and operation scope.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
