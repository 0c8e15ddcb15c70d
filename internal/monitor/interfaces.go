package monitor

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Hasher produces a stable hex digest of a byte slice.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator mints unique identifiers for scheduler runs.
type IDGenerator interface {
	NewID() (string, error)
}
