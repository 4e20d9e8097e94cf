package memory

import (
	"context"
	"log/slog"

	"github.com/easeaico/project-dear/internal/types"
)

// Searcher is the recall side of the fact store.
type Searcher interface {
	ListByChat(ctx context.Context, chatID string) ([]types.MemoryItem, error)
	SearchSimilar(ctx context.Context, chatID string, embedding []float32, topK int, threshold float64) ([]types.MemoryItem, error)
}

// Recaller selects the memory items injected into the system instruction.
// With TopK zero every stored item is injected; otherwise the query text is
// embedded and only the TopK most similar items above Threshold are used.
type Recaller struct {
	searcher  Searcher
	embedder  Embedder // may be nil
	TopK      int
	Threshold float64
}

// NewRecaller returns a memory recaller.
func NewRecaller(searcher Searcher, embedder Embedder, topK int, threshold float64) *Recaller {
	return &Recaller{
		searcher:  searcher,
		embedder:  embedder,
		TopK:      topK,
		Threshold: threshold,
	}
}

// Recall returns the items relevant to the incoming user text.
func (r *Recaller) Recall(ctx context.Context, chatID, query string) ([]types.MemoryItem, error) {
	if r == nil || r.searcher == nil {
		return nil, nil
	}
	if r.TopK <= 0 || r.embedder == nil || query == "" {
		return r.searcher.ListByChat(ctx, chatID)
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		// Degrade to the full list rather than losing memory entirely.
		slog.Warn("failed to embed recall query, listing all memories", "chat", chatID, "error", err.Error())
		return r.searcher.ListByChat(ctx, chatID)
	}
	return r.searcher.SearchSimilar(ctx, chatID, embedding, r.TopK, r.Threshold)
}
