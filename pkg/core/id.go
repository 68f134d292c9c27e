package core

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewVersionID returns a short sortable identifier for workflow
// versions and genomes. Collision probability is negligible at expected
// population sizes; uniqueness is not cryptographically guaranteed.
func NewVersionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return "wfv_" + strings.ToLower(id.String())
}

// NewRunID returns an identifier for one workflow run.
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// NewInvocationID returns an identifier for one node invocation.
func NewInvocationID() string {
	return "inv_" + uuid.NewString()
}
