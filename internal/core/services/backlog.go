package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// Ensure BacklogService implements the interface.
var _ driving.BacklogProcessor = (*BacklogService)(nil)

// DefaultBacklogBatchSize is the number of chunks embedded per call.
const DefaultBacklogBatchSize = 32

// backlogStore is the slice of the store the processor reads from.
type backlogStore interface {
	NextBacklog(ctx context.Context, model string, cursor domain.BacklogCursor, limit int) ([]domain.BacklogItem, error)
	CountBacklog(ctx context.Context, model string) (int, error)
}

// embedder is the slice of the embedding service the processor uses.
type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// BacklogService embeds chunks that have no vector under the active
// model. It advances a (mirror_hash, seq) cursor past every returned
// batch, failed or not, so a bad row can never stall the run. The
// cursor survives across runs on the same instance: a re-run after a
// failed batch does not re-hammer the failing rows. A clean run resets
// it so later runs pick up skipped rows again.
type BacklogService struct {
	store     backlogStore
	embedder  embedder
	index     driven.VectorIndex
	batchSize int

	mu     sync.Mutex
	cursor domain.BacklogCursor
}

// BacklogOption configures the backlog service.
type BacklogOption func(*BacklogService)

// WithBacklogBatchSize sets the per-call embedding batch size.
func WithBacklogBatchSize(n int) BacklogOption {
	return func(s *BacklogService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewBacklogService creates a backlog processor.
func NewBacklogService(store backlogStore, embeddingService embedder, index driven.VectorIndex, opts ...BacklogOption) *BacklogService {
	s := &BacklogService{
		store:     store,
		embedder:  embeddingService,
		index:     index,
		batchSize: DefaultBacklogBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process drains the backlog in batches. Batch failures are counted
// and skipped, not retried; retryable errors stop the run so the
// caller can re-run it later. The side-index is synced at most once,
// at the end.
func (s *BacklogService) Process(ctx context.Context) (*domain.BacklogResult, error) {
	result := &domain.BacklogResult{}
	model := s.embedder.ModelName()

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()
	defer func() {
		// A clean pass restarts from the top next time; otherwise the
		// cursor stays past the rows this run already attempted.
		if result.Errors == 0 {
			cursor = domain.BacklogCursor{}
		}
		s.mu.Lock()
		s.cursor = cursor
		s.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		items, err := s.store.NextBacklog(ctx, model, cursor, s.batchSize)
		if err != nil {
			return result, err
		}
		if len(items) == 0 {
			break
		}

		prev := cursor
		last := items[len(items)-1]
		cursor = domain.BacklogCursor{MirrorHash: last.MirrorHash, Seq: last.Seq}

		if err := s.embedBatch(ctx, model, items, result); err != nil {
			// Transient failure: rewind so a re-run retries this batch.
			if domain.IsRetryable(err) {
				cursor = prev
			}
			return result, err
		}
	}

	s.syncIndex(ctx, result)

	logger.Info("Backlog run: %d embedded, %d errors (model %s)",
		result.Embedded, result.Errors, model)
	return result, nil
}

// embedBatch embeds one batch and stores the vectors. Failures that
// are not retryable are absorbed into the error count.
func (s *BacklogService) embedBatch(ctx context.Context, model string, items []domain.BacklogItem, result *domain.BacklogResult) error {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = formatForEmbedding(item)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		result.Errors += len(items)
		if domain.IsRetryable(err) {
			return err
		}
		logger.Warn("Embedding batch failed, skipping %d chunks: %v", len(items), err)
		return nil
	}
	if len(vectors) != len(items) {
		result.Errors += len(items)
		logger.Warn("Embedder returned %d vectors for %d chunks, skipping batch",
			len(vectors), len(items))
		return nil
	}

	rows := make([]domain.VectorRow, len(items))
	for i, item := range items {
		rows[i] = domain.VectorRow{
			MirrorHash: item.MirrorHash,
			Seq:        item.Seq,
			Model:      model,
			Embedding:  vectors[i],
		}
	}
	if err := s.index.UpsertVectors(ctx, rows); err != nil {
		// The durable write failed; nothing was stored for this batch.
		result.Errors += len(items)
		return err
	}

	result.Embedded += len(items)
	return nil
}

// syncIndex reconciles the side-index once if it diverged during the
// run. A sync failure is reported on the result, not as a run error.
func (s *BacklogService) syncIndex(ctx context.Context, result *domain.BacklogResult) {
	needs, err := s.index.NeedsSync(ctx)
	if err != nil {
		result.SyncError = err
		return
	}
	if !needs {
		return
	}

	added, removed, err := s.index.Sync(ctx)
	if err != nil {
		result.SyncError = err
		return
	}
	logger.Debug("Vector side-index synced: %d added, %d removed", added, removed)
}

// Pending reports the backlog size for the active model.
func (s *BacklogService) Pending(ctx context.Context) (int, error) {
	return s.store.CountBacklog(ctx, s.embedder.ModelName())
}

// formatForEmbedding prefixes the chunk with its document title so the
// embedding carries document context.
func formatForEmbedding(item domain.BacklogItem) string {
	if item.Title == "" {
		return item.Text
	}
	return item.Title + "\n\n" + item.Text
}
