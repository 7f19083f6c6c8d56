// Package respcache persists AI-provider responses across process
// restarts so functionally identical requests skip the network.
//
// Records live in an embedded SQLite store (WAL mode, so two application
// instances pointed at the same project folder stay consistent) keyed by
// a context-aware fingerprint. Payloads are zstd-compressed before write
// and decompressed transparently on read. Every failure on the read or
// write path degrades to a cache miss; the caller's AI-request path never
// breaks and never hangs because of this layer.
package respcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/draftcache/draftcache/pkg/cacheerr"
	"github.com/draftcache/draftcache/pkg/types"
	"github.com/draftcache/draftcache/pkg/utils"
)

const (
	// DefaultTTL bounds how long a cached response stays valid.
	DefaultTTL = 24 * time.Hour

	// DefaultOpTimeout bounds every store operation so the AI-request
	// path cannot hang on disk I/O.
	DefaultOpTimeout = 3 * time.Second

	// DefaultSweepInterval is how often expired rows are purged to
	// bound disk growth.
	DefaultSweepInterval = 24 * time.Hour
)

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	key         TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at);
`

// Store is the disk-backed, compressed, TTL-bounded response cache.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
	logger    *utils.StructuredLogger

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	hits        atomic.Uint64
	misses      atomic.Uint64
	expirations atomic.Uint64
	writeErrors atomic.Uint64

	// now is swappable for TTL tests.
	now func() time.Time

	sweepStop chan struct{}
	sweepWg   sync.WaitGroup
	closeOnce sync.Once
}

// Options configures a Store.
type Options struct {
	OpTimeout     time.Duration
	SweepInterval time.Duration
	// DisableSweep turns off the background purge; Sweep can still be
	// called explicitly.
	DisableSweep bool
	Logger       *utils.StructuredLogger
}

// Open opens (creating if necessary) the response store at path.
func Open(path string, optFns ...func(*Options)) (*Store, error) {
	opts := Options{
		OpTimeout:     DefaultOpTimeout,
		SweepInterval: DefaultSweepInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewStructuredLogger(nil)
	}

	// WAL mode gives concurrent readers plus cross-process durability;
	// busy_timeout keeps concurrent writers from failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cacheerr.New(cacheerr.ErrCodeStorageRead, "opening response store").
			WithComponent("respcache").
			WithCause(err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, cacheerr.New(cacheerr.ErrCodeStorageWrite, "creating response schema").
			WithComponent("respcache").
			WithCause(err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger.WithComponent("respcache"),
		encoder:   encoder,
		decoder:   decoder,
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}

	if !opts.DisableSweep {
		s.sweepWg.Add(1)
		go s.sweepLoop(opts.SweepInterval)
	}
	return s, nil
}

// Get returns the decompressed payload for fingerprint, or a miss. A row
// past its TTL is a miss and is deleted asynchronously; a row that fails
// to decompress is treated as corrupt, deleted, and reported as a miss.
func (s *Store) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var (
		compressed []byte
		createdAt  int64
		ttlSeconds int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at, ttl_seconds FROM responses WHERE key = ?`,
		fingerprint,
	).Scan(&compressed, &createdAt, &ttlSeconds)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.misses.Add(1)
		return nil, false
	case err != nil:
		// Read failures degrade to a miss by design.
		s.misses.Add(1)
		s.logger.Warn("response read failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}

	if s.isExpired(createdAt, ttlSeconds) {
		s.misses.Add(1)
		s.expirations.Add(1)
		s.deleteAsync(fingerprint)
		return nil, false
	}

	payload, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		// Corrupt record: drop the row, report a miss.
		s.misses.Add(1)
		s.logger.Warn("corrupt response record dropped", map[string]interface{}{
			"key":   fingerprint,
			"error": err.Error(),
		})
		s.deleteAsync(fingerprint)
		return nil, false
	}

	s.hits.Add(1)
	return payload, true
}

// Put stores a compressed payload under fingerprint with the given TTL.
// Concurrent writers are last-write-wins. Write failures (disk full, I/O
// error, timeout) are non-fatal: the error is returned for logging but
// the caller proceeds exactly as on a cache miss.
func (s *Store) Put(ctx context.Context, fingerprint string, payload []byte, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		ttlSeconds = int64(DefaultTTL / time.Second)
	}

	compressed := s.encoder.EncodeAll(payload, nil)

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (key, payload, created_at, ttl_seconds) VALUES (?, ?, ?, ?)`,
		fingerprint, compressed, s.now().Unix(), ttlSeconds,
	)
	if err != nil {
		s.writeErrors.Add(1)
		s.logger.Warn("response write dropped", map[string]interface{}{
			"key":   fingerprint,
			"error": err.Error(),
		})
		return cacheerr.New(cacheerr.ErrCodeStorageWrite, "response write dropped").
			WithComponent("respcache").
			WithCause(err)
	}
	return nil
}

// Delete removes a record if present.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE key = ?`, fingerprint)
	if err != nil {
		return cacheerr.New(cacheerr.ErrCodeStorageWrite, "response delete failed").
			WithComponent("respcache").
			WithCause(err)
	}
	return nil
}

// Sweep purges all expired rows and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM responses WHERE created_at + ttl_seconds < ?`, s.now().Unix())
	if err != nil {
		return 0, cacheerr.New(cacheerr.ErrCodeStorageWrite, "sweep failed").
			WithComponent("respcache").
			WithCause(err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		s.expirations.Add(uint64(removed))
		s.logger.Info("swept expired responses", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// Stats returns a snapshot of store statistics.
func (s *Store) Stats() types.ResponseCacheStats {
	stats := types.ResponseCacheStats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Expirations: s.expirations.Load(),
		WriteErrors: s.writeErrors.Load(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM responses`)
	_ = row.Scan(&stats.Rows, &stats.PayloadSize)
	return stats
}

// Ping verifies the database is reachable. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close stops the sweeper and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.sweepStop)
		s.sweepWg.Wait()
		s.encoder.Close()
		s.decoder.Close()
		err = s.db.Close()
	})
	return err
}

func (s *Store) isExpired(createdAt, ttlSeconds int64) bool {
	return s.now().Unix() > createdAt+ttlSeconds
}

// deleteAsync drops a row without blocking the read path. Errors are
// ignored; the periodic sweep will retry.
func (s *Store) deleteAsync(fingerprint string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()
		_, _ = s.db.ExecContext(ctx, `DELETE FROM responses WHERE key = ?`, fingerprint)
	}()
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer s.sweepWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			if _, err := s.Sweep(context.Background()); err != nil {
				s.logger.Warn("periodic sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
