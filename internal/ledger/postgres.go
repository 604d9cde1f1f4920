package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/genledger/internal/digest"
	"go.uber.org/zap"
)

// PostgresStore persists the generation ledger to a PostgreSQL database.
// It implements the Store interface. The schema lives in
// migrations/001_generation_ledger.up.sql.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Record implements Store.
// The upsert makes a re-recorded digest take the newer timestamp, kind and
// preview, matching MemoryStore.
func (s *PostgresStore) Record(ctx context.Context, d string, kind Kind, preview string) (*Entry, error) {
	d = digest.Normalize(d)
	if d == "" {
		return nil, fmt.Errorf("record: empty digest")
	}
	if kind == "" {
		return nil, fmt.Errorf("record %s: empty kind", d)
	}

	entry := &Entry{
		Digest:     d,
		RecordedAt: time.Now().UTC().Truncate(time.Microsecond), // TIMESTAMPTZ resolution
		Kind:       kind,
		Preview:    preview,
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO generation_ledger (digest, recorded_at, kind, preview)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (digest) DO UPDATE
		 SET recorded_at = EXCLUDED.recorded_at,
		     kind        = EXCLUDED.kind,
		     preview     = EXCLUDED.preview`,
		entry.Digest, entry.RecordedAt, string(entry.Kind), entry.Preview,
	); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	s.logger.Debug("ledger entry recorded",
		zap.String("digest", entry.Digest),
		zap.String("kind", string(entry.Kind)),
	)
	return entry, nil
}

// Lookup implements Store.
func (s *PostgresStore) Lookup(ctx context.Context, d string) (*Entry, error) {
	entry := &Entry{}
	var kind string
	err := s.pool.QueryRow(ctx,
		`SELECT digest, recorded_at, kind, preview
		 FROM generation_ledger WHERE digest = $1`, digest.Normalize(d),
	).Scan(&entry.Digest, &entry.RecordedAt, &kind, &entry.Preview)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup ledger entry: %w", err)
	}
	entry.Kind = Kind(kind)
	entry.RecordedAt = entry.RecordedAt.UTC()
	return entry, nil
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM generation_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}
