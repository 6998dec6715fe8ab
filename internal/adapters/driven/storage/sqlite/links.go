package sqlite

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// PutLinks replaces all stored links of a source document in one
// transaction.
func (s *Store) PutLinks(ctx context.Context, sourceDocID int64, links []domain.Link) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "beginning link transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM links WHERE source_doc_id = ?", sourceDocID); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "clearing links", err)
	}

	for _, link := range links {
		if !domain.ValidLinkType(link.Type) {
			return domain.WrapError(domain.KindValidation,
				"link type "+string(link.Type), domain.ErrInvalidInput)
		}
		source := link.Source
		if source == "" {
			source = domain.LinkSourceParsed
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO links (
				source_doc_id, target_ref, target_ref_norm, target_anchor,
				target_collection, link_type, link_text,
				start_line, start_col, end_line, end_col, source
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sourceDocID, link.TargetRef, link.TargetRefNorm, link.TargetAnchor,
			link.TargetCollection, string(link.Type), link.Text,
			link.StartLine, link.StartCol, link.EndLine, link.EndCol,
			string(source)); err != nil {
			return domain.WrapError(domain.KindQueryFailed, "inserting link", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.KindQueryFailed, "committing links", err)
	}
	return nil
}

const linkColumns = `
	source_doc_id, target_ref, target_ref_norm, target_anchor,
	target_collection, link_type, link_text,
	start_line, start_col, end_line, end_col, source`

// GetLinksForDoc returns a document's outgoing links in insertion
// order.
func (s *Store) GetLinksForDoc(ctx context.Context, sourceDocID int64) ([]domain.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+linkColumns+" FROM links WHERE source_doc_id = ? ORDER BY id",
		sourceDocID)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying links", err)
	}
	defer rows.Close()

	var links []domain.Link //nolint:prealloc // size unknown from query
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating links", err)
	}
	return links, nil
}

// GetBacklinksForDoc returns links from active documents whose
// normalized target resolves to doc, joined to the linking document's
// identity. A reference resolves when it matches the document's
// rel_path, its rel_path without extension, its bare filename, its
// docid, or its title, all under the same normalization links are
// stored with.
func (s *Store) GetBacklinksForDoc(ctx context.Context, doc *domain.Document) ([]domain.Backlink, error) {
	refs := backlinkRefs(doc)
	args := make([]any, 0, len(refs)+1)
	for _, ref := range refs {
		args = append(args, ref)
	}
	args = append(args, doc.ID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+linkColumns+`, d.uri, d.docid, d.title
		FROM links l
		JOIN documents d ON d.id = l.source_doc_id AND d.active = 1
		WHERE l.target_ref_norm IN (`+inPlaceholders(len(refs))+`)
		  AND l.source_doc_id != ?
		ORDER BY d.collection, d.rel_path, l.id
	`, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying backlinks", err)
	}
	defer rows.Close()

	var backlinks []domain.Backlink //nolint:prealloc // size unknown from query
	for rows.Next() {
		var b domain.Backlink
		var linkType, source string
		if err := rows.Scan(
			&b.SourceDocID, &b.TargetRef, &b.TargetRefNorm, &b.TargetAnchor,
			&b.TargetCollection, &linkType, &b.Text,
			&b.StartLine, &b.StartCol, &b.EndLine, &b.EndCol, &source,
			&b.SourceURI, &b.SourceDocIDHex, &b.SourceTitle,
		); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning backlink", err)
		}
		b.Type = domain.LinkType(linkType)
		b.Source = domain.LinkSource(source)
		backlinks = append(backlinks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating backlinks", err)
	}
	return backlinks, nil
}

// backlinkRefs lists the normalized reference forms under which other
// documents may point at doc.
func backlinkRefs(doc *domain.Document) []string {
	seen := make(map[string]bool)
	var refs []string
	add := func(ref string) {
		norm := domain.NormalizeRef(ref)
		if norm == "" || seen[norm] {
			return
		}
		seen[norm] = true
		refs = append(refs, norm)
	}

	add(doc.RelPath)
	add(strings.TrimSuffix(doc.RelPath, filepath.Ext(doc.RelPath)))
	base := filepath.Base(doc.RelPath)
	add(base)
	add(strings.TrimSuffix(base, filepath.Ext(base)))
	add(doc.DocID)
	add(doc.Title)
	return refs
}

func scanLink(r rowScanner) (*domain.Link, error) {
	var link domain.Link
	var linkType, source string
	if err := r.Scan(
		&link.SourceDocID, &link.TargetRef, &link.TargetRefNorm, &link.TargetAnchor,
		&link.TargetCollection, &linkType, &link.Text,
		&link.StartLine, &link.StartCol, &link.EndLine, &link.EndCol, &source,
	); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "scanning link", err)
	}
	link.Type = domain.LinkType(linkType)
	link.Source = domain.LinkSource(source)
	return &link, nil
}
