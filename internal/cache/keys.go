package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// JobViewKey binds a cached job projection to the account that read it, so
// a cache hit can never bypass the ownership check.
func JobViewKey(accountID, jobID uuid.UUID) string {
	return fmt.Sprintf("job:view:%s:%s", accountID, jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// DedupKey identifies an in-flight topic for an account. Topics are hashed
// after case folding so resubmissions of the same subject collapse.
func DedupKey(accountID uuid.UUID, topic string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(topic))))
	return fmt.Sprintf("dedup:%s:%s", accountID, hex.EncodeToString(sum[:8]))
}
