package hashindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-worker/internal/keylock"
	"media-worker/internal/logging"
	"media-worker/internal/metrics"
)

// ErrNotFound is returned by Get for a path with no entry.
var ErrNotFound = errors.New("hash index entry not found")

// AlgorithmPHash identifies the DCT perceptual hash over a 5x5 frame sprite.
const AlgorithmPHash = "phash-dct-5x5"

const defaultTimeout = 5 * time.Second

// Entry is one fingerprint row.
type Entry struct {
	Path      string    `json:"path"`
	Hash      uint64    `json:"hash"`
	Algorithm string    `json:"algorithm"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	Signature string    `json:"signature"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity returns the file identity the entry was computed from.
func (e Entry) Identity() Identity {
	return Identity{Size: e.Size, ModTime: e.ModTime, Signature: e.Signature}
}

// Store is the SQLite-backed perceptual hash index.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the index at dbPath. The parent directory
// must exist and be writable.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Hash index path: %s", dbPath)

	if err := diagnosePermissions(dbPath); err != nil {
		logging.Warn("Hash index permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open hash index: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close hash index after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to hash index: %w", err)
	}

	// One writer at a time; WAL keeps readers unblocked.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close hash index after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize hash index schema: %w", err)
	}

	if n, err := s.Count(ctx); err == nil {
		metrics.HashIndexEntries.Set(float64(n))
		logging.Info("Hash index ready with %d entries", n)
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		path TEXT PRIMARY KEY,
		hash INTEGER NOT NULL,
		algorithm TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_fingerprints_hash ON fingerprints(hash);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return s.runMigrations(ctx)
}

// runMigrations applies schema changes to indexes created by older versions.
func (s *Store) runMigrations(ctx context.Context) error {
	// Migration 1: content signature column
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('fingerprints')
		WHERE name='signature'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for signature column: %w", err)
	}

	if !exists {
		logging.Info("Migrating hash index: adding signature column")
		// Rows without a signature are never current and get recomputed.
		if _, err := s.db.ExecContext(ctx, `
			ALTER TABLE fingerprints ADD COLUMN signature TEXT NOT NULL DEFAULT ''
		`); err != nil {
			return fmt.Errorf("failed to add signature column: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for a library-relative path.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT path, hash, algorithm, size, mod_time, signature, updated_at
		FROM fingerprints WHERE path = ?
	`, keylock.Normalize(path))

	e, err := scanEntry(row)
	recordQuery("get", start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint for %s: %w", path, err)
	}
	return e, nil
}

// Put inserts or replaces an entry.
func (s *Store) Put(ctx context.Context, e Entry) error {
	start := time.Now()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (path, hash, algorithm, size, mod_time, signature, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			algorithm = excluded.algorithm,
			size = excluded.size,
			mod_time = excluded.mod_time,
			signature = excluded.signature,
			updated_at = excluded.updated_at
	`, keylock.Normalize(e.Path), int64(e.Hash), e.Algorithm, e.Size, e.ModTime.Unix(), e.Signature, e.UpdatedAt.Unix())
	recordQuery("put", start)
	if err != nil {
		return fmt.Errorf("put fingerprint for %s: %w", e.Path, err)
	}
	s.refreshCount(ctx)
	return nil
}

// Delete removes the entry for path. Deleting a missing path is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE path = ?`, keylock.Normalize(path))
	recordQuery("delete", start)
	if err != nil {
		return fmt.Errorf("delete fingerprint for %s: %w", path, err)
	}
	s.refreshCount(ctx)
	return nil
}

// List returns entries under scope ordered by path. scope is a
// library-relative directory; "" is the whole library. Without recursive only
// direct children of scope are returned.
func (s *Store) List(ctx context.Context, scope string, recursive bool) ([]Entry, error) {
	start := time.Now()
	scope = keylock.Normalize(scope)

	query := `SELECT path, hash, algorithm, size, mod_time, signature, updated_at FROM fingerprints`
	var args []any
	if scope != "" {
		query += ` WHERE path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(scope)+"/%")
	}
	query += ` ORDER BY path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		recordQuery("list", start)
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close fingerprint rows: %v", err)
		}
	}()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		if !recursive && !directChild(scope, e.Path) {
			continue
		}
		out = append(out, *e)
	}
	recordQuery("list", start)
	return out, rows.Err()
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&n)
	return n, err
}

// Current returns the entry for rel when it still matches the file under
// root; otherwise it returns nil with the file's present identity so the
// caller can recompute without hashing the file twice.
func (s *Store) Current(ctx context.Context, root, rel string) (*Entry, Identity, error) {
	id, err := ComputeIdentity(ctx, filepath.Join(root, filepath.FromSlash(keylock.Normalize(rel))))
	if err != nil {
		return nil, Identity{}, err
	}
	e, err := s.Get(ctx, rel)
	if errors.Is(err, ErrNotFound) {
		return nil, id, nil
	}
	if err != nil {
		return nil, id, err
	}
	if !e.Identity().Same(id) {
		return nil, id, nil
	}
	return e, id, nil
}

// IsCurrent reports whether rel has an up-to-date entry.
func (s *Store) IsCurrent(ctx context.Context, root, rel string) (bool, error) {
	e, _, err := s.Current(ctx, root, rel)
	return e != nil, err
}

func (s *Store) refreshCount(ctx context.Context) {
	if n, err := s.Count(ctx); err == nil {
		metrics.HashIndexEntries.Set(float64(n))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e         Entry
		hash      int64
		modTime   int64
		updatedAt int64
	)
	if err := row.Scan(&e.Path, &hash, &e.Algorithm, &e.Size, &modTime, &e.Signature, &updatedAt); err != nil {
		return nil, err
	}
	e.Hash = uint64(hash)
	e.ModTime = time.Unix(modTime, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

func directChild(scope, path string) bool {
	rest := path
	if scope != "" {
		rest = strings.TrimPrefix(path, scope+"/")
	}
	return !strings.Contains(rest, "/")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func recordQuery(operation string, start time.Time) {
	metrics.HashIndexQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// diagnosePermissions checks that the index directory is writable.
func diagnosePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat hash index directory: %w", err)
	}
	logging.Debug("Hash index directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("hash index directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v), writes will fail", filepath.Base(p), info.Mode())
		}
	}
	return nil
}
