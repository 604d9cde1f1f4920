// Package ledger records proof-of-generation entries keyed by response digest.
//
// Every generated response is hashed (see package digest) and the digest is
// recorded together with the time it was produced, the kind of generation and
// a short preview of the payload. A client holding a response can later ask
// whether its digest is on record.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, lives as long as the process does.
//   - PostgresStore: durable, for deployments that need lookups to survive restarts.
//
// Recording a digest that is already present replaces the entry (last write
// wins). Entries are never deleted.
package ledger

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Lookup when the digest has never been recorded.
var ErrNotFound = errors.New("digest not found in ledger")

// Store is the interface for the generation ledger.
type Store interface {
	// Record stores an entry for digest, stamped with the current time.
	// An existing entry for the same digest is overwritten.
	Record(ctx context.Context, digest string, kind Kind, preview string) (*Entry, error)

	// Lookup returns the entry for digest or ErrNotFound.
	Lookup(ctx context.Context, digest string) (*Entry, error)

	// Len returns the number of distinct digests on record.
	Len(ctx context.Context) (int, error)
}
