// Package lock provides the short-lived mutual exclusion that lets many consumer
// processes share one event stream while each recipient is delivered to once.
package lock

import (
	"context"
	"strings"
	"time"
)

// Locker grants a key to one holder until it is released or its TTL passes.
type Locker interface {
	// Acquire reports whether this holder now owns key. A false result with a nil error
	// means another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up key if this holder still owns it.
	Release(ctx context.Context, key string) error
}

// Lock is the stored state of one key.
type Lock struct {
	Key       string
	Holder    string
	ExpiresAt time.Time
}

// Key builds "<prefix>:<event identity>:<email>".
func Key(prefix, identity, email string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(':')
	}
	b.WriteString(identity)
	b.WriteByte(':')
	b.WriteString(email)
	return b.String()
}
