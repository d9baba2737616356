package paycore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// IdempotencyKeyGenerator derives gateway idempotency keys from the logical
// operation rather than the wire request, so a client-side retry of the same
// purchase reuses the same key and the gateway deduplicates instead of
// double-charging. Two distinct operations collide only if they share an
// operation id, amount and salt within one time bucket, in which case the
// gateway's own key dedup is the backstop.
type IdempotencyKeyGenerator struct {
	// Bucket coarsens the timestamp folded into the key. Retries inside one
	// bucket produce identical keys; defaults to 5 minutes.
	Bucket time.Duration

	now func() time.Time
}

// NewIdempotencyKeyGenerator returns a generator with the default bucket.
func NewIdempotencyKeyGenerator() *IdempotencyKeyGenerator {
	return &IdempotencyKeyGenerator{Bucket: 5 * time.Minute, now: time.Now}
}

// Derive computes the key for one logical financial operation.
func (g *IdempotencyKeyGenerator) Derive(operationID string, amountCents int64, salt string) string {
	bucket := g.Bucket
	if bucket <= 0 {
		bucket = 5 * time.Minute
	}
	nowFn := g.now
	if nowFn == nil {
		nowFn = time.Now
	}

	slot := nowFn().UnixMilli() / bucket.Milliseconds()
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s|%d", operationID, amountCents, salt, slot))
	return hex.EncodeToString(sum[:])
}

// DeriveIdempotencyKey derives a key with the default generator.
func DeriveIdempotencyKey(operationID string, amountCents int64, salt string) string {
	return NewIdempotencyKeyGenerator().Derive(operationID, amountCents, salt)
}
