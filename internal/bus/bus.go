// Package bus is the keyed notification queue between the producers
// (evaluator, ingestor, scheduler) and the push worker. Entries collapse
// by key, so a (user, subject) pair holds at most one undelivered
// message at any instant.
package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const keyPrefix = "notification"

// Bus is a keyed message queue with TTL expiry. Publish overwrites by
// key and resets the TTL; acking a missing key is a no-op.
type Bus interface {
	Publish(ctx context.Context, key, body string, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Fetch(ctx context.Context, key string) (body string, ok bool, err error)
	Ack(ctx context.Context, key string) error
	Close() error
}

// Key builds the fingerprint for one (recipient, subject) pair.
func Key(userID int64, subject string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, userID, subject)
}

// Pattern matches every notification key.
func Pattern() string {
	return keyPrefix + ":*:*"
}

// ParseKey splits a fingerprint back into its recipient and subject.
func ParseKey(key string) (userID int64, subject string, err error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != keyPrefix {
		return 0, "", errors.Errorf("malformed bus key %q", key)
	}
	userID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", errors.Wrapf(err, "malformed recipient in bus key %q", key)
	}
	return userID, parts[2], nil
}
