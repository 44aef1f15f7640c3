package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrUnreachable marks transient ledger failures. Read paths recover from it
// with an off-chain fallback instead of surfacing it to the caller.
var ErrUnreachable = errors.New("ledger: unreachable")

type TallyEntry struct {
	OpaqueID string
	Count    int64
}

// Client is the read side of the external election contract. Writes (deploy,
// vote) are signed and submitted by the end user's own wallet; this service
// never holds write credentials.
type Client interface {
	Exists(ctx context.Context, handle int64) (bool, error)
	GetTally(ctx context.Context, handle int64) ([]TallyEntry, error)
}

// Hash is the digest primitive used for opaque on-ledger identifiers. The
// contract stores these instead of raw student identifiers.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
