package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/gnosis/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Tokenizers accepted for the chunk FTS index.
var validTokenizers = map[string]bool{
	"unicode61": true,
	"porter":    true,
	"simple":    true,
	"trigram":   true,
}

// DefaultTokenizer is used when the configuration names none.
const DefaultTokenizer = "unicode61"

// metaKeyTokenizer records the tokenizer the FTS index was built with.
const metaKeyTokenizer = "fts_tokenizer"

// Ensure Store implements the port.
var _ driven.Store = (*Store)(nil)

// Store is the SQLite-backed content-addressed store.
type Store struct {
	db   *sql.DB
	path string

	// tokenizer is the configured FTS tokenizer for this process; the
	// index may have been built with a different one until rebuilt.
	tokenizer string
}

// Open creates or opens the store at dbPath, runs pending migrations
// and ensures the FTS index exists. An empty tokenizer selects the
// default; an unknown one is a VALIDATION error.
func Open(dbPath, tokenizer string) (*Store, error) {
	if tokenizer == "" {
		tokenizer = DefaultTokenizer
	}
	if !validTokenizers[tokenizer] {
		return nil, domain.NewError(domain.KindValidation,
			fmt.Sprintf("unknown fts tokenizer %q", tokenizer))
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, domain.WrapError(domain.KindIO, "creating data directory", err)
	}

	// WAL for concurrent readers; busy timeout so writers queue
	// instead of failing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, domain.WrapError(domain.KindIO, "opening database", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, domain.WrapError(domain.KindInternal, "enabling foreign keys", err)
	}

	s := &Store{
		db:        db,
		path:      dbPath,
		tokenizer: tokenizer,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.ensureFTSTable(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations inside one transaction and
// refuses to open a database from a newer schema.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "creating schema_migrations table", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "getting current schema version", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return domain.WrapError(domain.KindInternal, "reading migrations directory", err)
	}

	type migration struct {
		version int
		name    string
	}
	var pending []migration
	maxVersion := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version > maxVersion {
			maxVersion = version
		}
		if version > currentVersion {
			pending = append(pending, migration{version: version, name: name})
		}
	}

	if currentVersion > maxVersion {
		return domain.NewError(domain.KindValidation,
			fmt.Sprintf("database schema version %d is newer than supported %d", currentVersion, maxVersion))
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	tx, err := s.db.Begin()
	if err != nil {
		return domain.WrapError(domain.KindInternal, "beginning migration transaction", err)
	}
	defer tx.Rollback()

	for _, m := range pending {
		content, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "reading migration "+m.name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			return domain.WrapError(domain.KindInternal, "executing migration "+m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return domain.WrapError(domain.KindInternal, "recording migration "+m.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.KindInternal, "committing migrations", err)
	}
	return nil
}

// Stats reports a status snapshot of the store.
func (s *Store) Stats(ctx context.Context) (*domain.StoreStats, error) {
	stats := &domain.StoreStats{
		Vectors: make(map[string]int),
		Backlog: make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM documents WHERE active = 1", &stats.ActiveDocuments},
		{"SELECT COUNT(*) FROM content", &stats.Contents},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM links", &stats.Links},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "counting rows", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT model, COUNT(*) FROM content_vectors GROUP BY model")
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "counting vectors", err)
	}
	defer rows.Close()
	var models []string
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning vector counts", err)
		}
		stats.Vectors[model] = n
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating vector counts", err)
	}

	for _, model := range models {
		backlog, err := s.CountBacklog(ctx, model)
		if err != nil {
			return nil, err
		}
		stats.Backlog[model] = backlog
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&stats.SchemaVersion); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "reading schema version", err)
	}

	builtWith, err := s.FTSTokenizer(ctx)
	if err != nil {
		return nil, err
	}
	stats.FTSTokenizer = builtWith

	return stats, nil
}

// inPlaceholders returns "?, ?, ..." with one placeholder per value.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// float32SliceToBytes converts a []float32 to a little-endian byte
// slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
