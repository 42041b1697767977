package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewConnectionID identifies one accepted push connection for its lifetime.
func NewConnectionID() string {
	return "conn-" + CreateULID()
}

// NewClientID builds a broker client identifier such as "blazor-net-app-01J...".
func NewClientID(prefix string) string {
	if prefix == "" {
		return CreateULID()
	}
	return prefix + "-" + CreateULID()
}
