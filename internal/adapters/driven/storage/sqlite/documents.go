package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// UpsertCollection registers or updates a collection by name.
func (s *Store) UpsertCollection(ctx context.Context, c domain.Collection) error {
	if !domain.ValidCollection(c.Name) {
		return domain.WrapError(domain.KindValidation, "collection name "+c.Name, domain.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, root_path)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET root_path = excluded.root_path
	`, c.Name, c.RootPath)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "saving collection", err)
	}
	return nil
}

// ListCollections returns all registered collections.
func (s *Store) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, root_path, created_at FROM collections ORDER BY name")
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying collections", err)
	}
	defer rows.Close()

	var collections []domain.Collection //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.Name, &c.RootPath, &c.CreatedAt); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning collection", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating collections", err)
	}
	return collections, nil
}

// UpsertDocument inserts or updates a document keyed by (collection,
// rel_path). The docid and created_at of an existing row are never
// mutated.
func (s *Store) UpsertDocument(ctx context.Context, doc *domain.Document) error {
	if doc.Collection == "" || doc.RelPath == "" {
		return domain.WrapError(domain.KindValidation, "document needs collection and rel_path", domain.ErrInvalidInput)
	}
	if doc.DocID == "" {
		doc.DocID = domain.DeriveDocID(doc.Collection, doc.RelPath)
	}
	if doc.URI == "" {
		doc.URI = domain.DocumentURI(doc.Collection, doc.RelPath)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			collection, rel_path, docid, uri,
			source_hash, source_mime, source_ext, source_size, source_mtime,
			mirror_hash, title, converter_id, converter_version, language_hint,
			active, last_error_code, last_error_message, last_error_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, rel_path) DO UPDATE SET
			uri = excluded.uri,
			source_hash = excluded.source_hash,
			source_mime = excluded.source_mime,
			source_ext = excluded.source_ext,
			source_size = excluded.source_size,
			source_mtime = excluded.source_mtime,
			mirror_hash = excluded.mirror_hash,
			title = excluded.title,
			converter_id = excluded.converter_id,
			converter_version = excluded.converter_version,
			language_hint = excluded.language_hint,
			active = excluded.active,
			last_error_code = excluded.last_error_code,
			last_error_message = excluded.last_error_message,
			last_error_at = excluded.last_error_at,
			updated_at = excluded.updated_at
	`, doc.Collection, doc.RelPath, doc.DocID, doc.URI,
		doc.SourceHash, doc.SourceMIME, doc.SourceExt, doc.SourceSize, nullTime(doc.SourceMTime),
		nullString(doc.MirrorHash), doc.Title, doc.ConverterID, doc.ConverterVersion, doc.LanguageHint,
		doc.Active, nullString(doc.LastErrorCode), nullString(doc.LastErrorMessage), nullTime(doc.LastErrorAt),
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "saving document", err)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT id, docid, created_at FROM documents WHERE collection = ? AND rel_path = ?",
		doc.Collection, doc.RelPath)
	if err := row.Scan(&doc.ID, &doc.DocID, &doc.CreatedAt); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "reading back document identity", err)
	}
	return nil
}

const documentColumns = `
	id, collection, rel_path, docid, uri,
	source_hash, source_mime, source_ext, source_size, source_mtime,
	mirror_hash, title, converter_id, converter_version, language_hint,
	active, last_error_code, last_error_message, last_error_at,
	created_at, updated_at`

// GetDocument retrieves a document by (collection, rel_path).
func (s *Store) GetDocument(ctx context.Context, collection, relPath string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+documentColumns+" FROM documents WHERE collection = ? AND rel_path = ?",
		collection, relPath)
	return scanDocument(row)
}

// GetDocumentByDocID retrieves a document by its short identifier.
// Accepts both the bare hex and the external "#"-prefixed form.
func (s *Store) GetDocumentByDocID(ctx context.Context, docid string) (*domain.Document, error) {
	if !strings.HasPrefix(docid, "#") {
		docid = domain.FormatDocID(docid)
	}
	hex, err := domain.ParseDocID(docid)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT"+documentColumns+" FROM documents WHERE docid = ?", hex)
	return scanDocument(row)
}

// ListDocuments returns documents, optionally restricted to one
// collection, tombstones included.
func (s *Store) ListDocuments(ctx context.Context, collection string) ([]domain.Document, error) {
	query := "SELECT" + documentColumns + " FROM documents"
	args := []any{}
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY collection, rel_path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying documents", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating documents", err)
	}
	return docs, nil
}

// GetDocumentsForMirrors returns the active documents referring to each
// mirror hash in one query, keyed by hash.
func (s *Store) GetDocumentsForMirrors(ctx context.Context, hashes []string) (map[string][]domain.Document, error) {
	out := make(map[string][]domain.Document)
	if len(hashes) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(hashes)-1) + "?"
	args := make([]any, len(hashes))
	for i, hash := range hashes {
		args[i] = hash
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT"+documentColumns+" FROM documents WHERE mirror_hash IN ("+placeholders+
			") AND active = 1 ORDER BY collection, rel_path",
		args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying documents by mirror", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		out[doc.MirrorHash] = append(out[doc.MirrorHash], *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating documents by mirror", err)
	}
	return out, nil
}

// TombstoneDocument marks a document inactive, keeping the row for
// history. Deep removal happens only via cleanup.
func (s *Store) TombstoneDocument(ctx context.Context, collection, relPath string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET active = 0, updated_at = ?
		WHERE collection = ? AND rel_path = ?
	`, time.Now().UTC(), collection, relPath)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "tombstoning document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "tombstoning document", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetDocumentError records the latest ingest failure on the row.
func (s *Store) SetDocumentError(ctx context.Context, collection, relPath string, code domain.Kind, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET last_error_code = ?, last_error_message = ?, last_error_at = ?, updated_at = ?
		WHERE collection = ? AND rel_path = ?
	`, string(code), message, time.Now().UTC(), time.Now().UTC(), collection, relPath)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "recording document error", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	doc, err := scanDocumentInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func scanDocumentRow(rows *sql.Rows) (*domain.Document, error) {
	return scanDocumentInto(rows)
}

func scanDocumentInto(r rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var sourceMTime, lastErrorAt sql.NullTime
	var mirrorHash, errCode, errMessage sql.NullString

	if err := r.Scan(
		&doc.ID, &doc.Collection, &doc.RelPath, &doc.DocID, &doc.URI,
		&doc.SourceHash, &doc.SourceMIME, &doc.SourceExt, &doc.SourceSize, &sourceMTime,
		&mirrorHash, &doc.Title, &doc.ConverterID, &doc.ConverterVersion, &doc.LanguageHint,
		&doc.Active, &errCode, &errMessage, &lastErrorAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapError(domain.KindQueryFailed, "scanning document", err)
	}

	doc.MirrorHash = mirrorHash.String
	doc.LastErrorCode = errCode.String
	doc.LastErrorMessage = errMessage.String
	if sourceMTime.Valid {
		doc.SourceMTime = sourceMTime.Time
	}
	if lastErrorAt.Valid {
		doc.LastErrorAt = lastErrorAt.Time
	}
	return &doc, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
