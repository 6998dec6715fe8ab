package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// UpsertContent stores canonical markdown under its hash. Idempotent:
// an existing hash is left untouched, so shared mirrors never churn.
func (s *Store) UpsertContent(ctx context.Context, mirrorHash, markdown string) error {
	if mirrorHash == "" {
		return domain.WrapError(domain.KindValidation, "empty mirror hash", domain.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (mirror_hash, markdown)
		VALUES (?, ?)
		ON CONFLICT(mirror_hash) DO NOTHING
	`, mirrorHash, markdown)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "saving content", err)
	}
	return nil
}

// GetContent retrieves a mirror by hash.
func (s *Store) GetContent(ctx context.Context, mirrorHash string) (*domain.Content, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT mirror_hash, markdown, created_at FROM content WHERE mirror_hash = ?",
		mirrorHash)

	var c domain.Content
	if err := row.Scan(&c.MirrorHash, &c.Markdown, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapError(domain.KindQueryFailed, "scanning content", err)
	}
	return &c, nil
}

// PutChunks replaces all chunks and FTS rows for a mirror in one
// transaction. Readers see either the old or the new chunk set.
func (s *Store) PutChunks(ctx context.Context, mirrorHash string, chunks []domain.Chunk) error {
	if mirrorHash == "" {
		return domain.WrapError(domain.KindValidation, "empty mirror hash", domain.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "beginning chunk transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE mirror_hash = ?", mirrorHash); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "clearing chunks", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_fts WHERE mirror_hash = ?", mirrorHash); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "clearing fts rows", err)
	}

	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (mirror_hash, seq, pos, text, start_line, end_line, language, token_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, mirrorHash, chunk.Seq, chunk.Pos, chunk.Text,
			chunk.StartLine, chunk.EndLine, chunk.Language, chunk.TokenCount); err != nil {
			return domain.WrapError(domain.KindQueryFailed, "inserting chunk", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_fts (text, mirror_hash, seq)
			VALUES (?, ?, ?)
		`, chunk.Text, mirrorHash, chunk.Seq); err != nil {
			return domain.WrapError(domain.KindQueryFailed, "inserting fts row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "committing chunks", err)
	}
	return nil
}

// GetChunksBatch fetches chunks for many mirrors in a single query.
// Within each hash, chunks come back ordered by seq.
func (s *Store) GetChunksBatch(ctx context.Context, hashes []string) (map[string][]domain.Chunk, error) {
	out := make(map[string][]domain.Chunk, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mirror_hash, seq, pos, text, start_line, end_line, language, token_count
		FROM chunks
		WHERE mirror_hash IN (`+inPlaceholders(len(hashes))+`)
		ORDER BY mirror_hash, seq
	`, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying chunk batch", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.MirrorHash, &c.Seq, &c.Pos, &c.Text,
			&c.StartLine, &c.EndLine, &c.Language, &c.TokenCount); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning chunk", err)
		}
		out[c.MirrorHash] = append(out[c.MirrorHash], c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating chunk batch", err)
	}
	return out, nil
}
