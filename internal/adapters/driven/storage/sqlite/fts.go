package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// ensureFTSTable creates the chunk FTS5 index with the configured
// tokenizer if it does not exist, and records the tokenizer it was
// built with in the meta table.
func (s *Store) ensureFTSTable() error {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'chunk_fts'").Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.createFTSTable(s.tokenizer)
	case err != nil:
		return domain.WrapError(domain.KindQueryFailed, "checking fts table", err)
	}
	return nil
}

// createFTSTable builds the FTS index and records its tokenizer.
// Tokenizer names are validated at open, never interpolated from user
// input.
func (s *Store) createFTSTable(tokenizer string) error {
	ddl := fmt.Sprintf(`
		CREATE VIRTUAL TABLE chunk_fts USING fts5(
			text,
			mirror_hash UNINDEXED,
			seq UNINDEXED,
			tokenize = '%s'
		)
	`, tokenizer)
	if _, err := s.db.Exec(ddl); err != nil {
		return domain.WrapError(domain.KindInternal, "creating fts table", err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaKeyTokenizer, tokenizer); err != nil {
		return domain.WrapError(domain.KindInternal, "recording fts tokenizer", err)
	}
	return nil
}

// FTSTokenizer returns the tokenizer the index was built with.
func (s *Store) FTSTokenizer(ctx context.Context) (string, error) {
	var tokenizer string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", metaKeyTokenizer).Scan(&tokenizer)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultTokenizer, nil
	}
	if err != nil {
		return "", domain.WrapError(domain.KindQueryFailed, "reading fts tokenizer", err)
	}
	return tokenizer, nil
}

// NeedsFTSRebuild reports whether the configured tokenizer differs from
// the one the index was built with.
func (s *Store) NeedsFTSRebuild(ctx context.Context) (bool, error) {
	builtWith, err := s.FTSTokenizer(ctx)
	if err != nil {
		return false, err
	}
	return builtWith != s.tokenizer, nil
}

// RebuildFTS drops and repopulates the full-text index with the
// configured tokenizer.
func (s *Store) RebuildFTS(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS chunk_fts"); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "dropping fts table", err)
	}
	if err := s.createFTSTable(s.tokenizer); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunk_fts (text, mirror_hash, seq)
		SELECT text, mirror_hash, seq FROM chunks
	`)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "repopulating fts table", err)
	}
	return nil
}

// SearchFTS runs a full-text query over chunk text, joined to active
// documents for identity fields. Scores follow the BM25 convention
// (more negative is better); rows come back sorted ascending.
func (s *Store) SearchFTS(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.FTSHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.KindValidation, "empty query", domain.ErrInvalidInput)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT f.mirror_hash, f.seq, bm25(chunk_fts) AS score,
		       d.docid, d.uri, d.title, d.collection, d.rel_path
		FROM chunk_fts f
		JOIN documents d ON d.mirror_hash = f.mirror_hash AND d.active = 1
		WHERE chunk_fts MATCH ?`
	args := []any{ftsQuote(query)}
	if opts.Collection != "" {
		sqlQuery += " AND d.collection = ?"
		args = append(args, opts.Collection)
	}
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "fts query", err)
	}
	defer rows.Close()

	var hits []domain.FTSHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var h domain.FTSHit
		var seq int
		if err := rows.Scan(&h.MirrorHash, &seq, &h.Score,
			&h.DocID, &h.URI, &h.Title, &h.Collection, &h.RelPath); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning fts hit", err)
		}
		h.Seq = seq
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating fts hits", err)
	}
	return hits, nil
}

// ftsQuote turns free text into an FTS5 query of quoted terms so user
// punctuation cannot break the match syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}
