package sqlite

import (
	"context"
	"time"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// InsertVectorRows stores embeddings keyed by (mirror_hash, seq,
// model), replacing on conflict, in one transaction.
func (s *Store) InsertVectorRows(ctx context.Context, rows []domain.VectorRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "beginning vector transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range rows {
		row := &rows[i]
		if len(row.Embedding) == 0 {
			return domain.WrapError(domain.KindValidation, "empty embedding", domain.ErrInvalidInput)
		}
		row.EmbeddedAt = now
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content_vectors (mirror_hash, seq, model, embedding, embedded_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(mirror_hash, seq, model) DO UPDATE SET
				embedding = excluded.embedding,
				embedded_at = excluded.embedded_at
		`, row.MirrorHash, row.Seq, row.Model,
			float32SliceToBytes(row.Embedding), row.EmbeddedAt); err != nil {
			return domain.WrapError(domain.KindQueryFailed, "inserting vector", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "committing vectors", err)
	}
	return nil
}

// DeleteVectorRowsForMirror removes all vectors of one mirror under one
// model.
func (s *Store) DeleteVectorRowsForMirror(ctx context.Context, mirrorHash, model string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM content_vectors WHERE mirror_hash = ? AND model = ?",
		mirrorHash, model)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "deleting vectors", err)
	}
	return nil
}

// ListVectorKeys returns all stored (mirror_hash, seq) keys for a
// model, ordered, for side-index reconciliation.
func (s *Store) ListVectorKeys(ctx context.Context, model string) ([]domain.ChunkKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mirror_hash, seq FROM content_vectors
		WHERE model = ?
		ORDER BY mirror_hash, seq
	`, model)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying vector keys", err)
	}
	defer rows.Close()

	var keys []domain.ChunkKey //nolint:prealloc // size unknown from query
	for rows.Next() {
		var k domain.ChunkKey
		if err := rows.Scan(&k.MirrorHash, &k.Seq); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning vector key", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating vector keys", err)
	}
	return keys, nil
}

// GetVectorRows loads the stored embeddings for the given keys.
func (s *Store) GetVectorRows(ctx context.Context, model string, keys []domain.ChunkKey) ([]domain.VectorRow, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	out := make([]domain.VectorRow, 0, len(keys))
	stmt, err := s.db.PrepareContext(ctx, `
		SELECT mirror_hash, seq, model, embedding, embedded_at
		FROM content_vectors
		WHERE mirror_hash = ? AND seq = ? AND model = ?
	`)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "preparing vector fetch", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		var row domain.VectorRow
		var blob []byte
		err := stmt.QueryRowContext(ctx, key.MirrorHash, key.Seq, model).Scan(
			&row.MirrorHash, &row.Seq, &row.Model, &blob, &row.EmbeddedAt)
		if err != nil {
			continue // missing keys are simply absent from the result
		}
		row.Embedding = bytesToFloat32Slice(blob)
		out = append(out, row)
	}
	return out, nil
}

// NextBacklog returns up to limit chunks past the cursor that have no
// vector under the model, in (mirror_hash, seq) order, each with one
// owning document title for contextual formatting.
func (s *Store) NextBacklog(ctx context.Context, model string, cursor domain.BacklogCursor, limit int) ([]domain.BacklogItem, error) {
	if limit <= 0 {
		limit = 32
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.mirror_hash, c.seq, c.text,
		       COALESCE((
		           SELECT d.title FROM documents d
		           WHERE d.mirror_hash = c.mirror_hash AND d.active = 1
		           ORDER BY d.id LIMIT 1
		       ), '') AS title
		FROM chunks c
		WHERE (c.mirror_hash > ? OR (c.mirror_hash = ? AND c.seq > ?))
		  AND NOT EXISTS (
		      SELECT 1 FROM content_vectors v
		      WHERE v.mirror_hash = c.mirror_hash AND v.seq = c.seq AND v.model = ?
		  )
		  AND EXISTS (
		      SELECT 1 FROM documents d
		      WHERE d.mirror_hash = c.mirror_hash AND d.active = 1
		  )
		ORDER BY c.mirror_hash, c.seq
		LIMIT ?
	`, cursor.MirrorHash, cursor.MirrorHash, cursor.Seq, model, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying backlog", err)
	}
	defer rows.Close()

	var items []domain.BacklogItem //nolint:prealloc // size unknown from query
	for rows.Next() {
		var item domain.BacklogItem
		if err := rows.Scan(&item.MirrorHash, &item.Seq, &item.Text, &item.Title); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning backlog item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating backlog", err)
	}
	return items, nil
}

// CountBacklog counts chunks of active documents without a vector under
// the model.
func (s *Store) CountBacklog(ctx context.Context, model string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM chunks c
		WHERE NOT EXISTS (
		      SELECT 1 FROM content_vectors v
		      WHERE v.mirror_hash = c.mirror_hash AND v.seq = c.seq AND v.model = ?
		  )
		  AND EXISTS (
		      SELECT 1 FROM documents d
		      WHERE d.mirror_hash = c.mirror_hash AND d.active = 1
		  )
	`, model).Scan(&n)
	if err != nil {
		return 0, domain.WrapError(domain.KindQueryFailed, "counting backlog", err)
	}
	return n, nil
}
