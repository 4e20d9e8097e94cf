package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/project-dear/internal/types"
)

type memoryModel struct {
	ID       string `gorm:"primaryKey"`
	ChatID   string `gorm:"index"`
	Category string
	Text     string
	// Embedding stores the vector representation for similarity recall.
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt time.Time
}

func (memoryModel) TableName() string {
	return "memory_items"
}

// MemoryRepo accesses per-conversation long-term memory.
type MemoryRepo struct {
	db *gorm.DB
}

func (r *MemoryRepo) Append(ctx context.Context, item *types.MemoryItem) error {
	if item == nil {
		return fmt.Errorf("memory item cannot be nil")
	}
	var vector *pgvector.Vector
	if len(item.Embedding) > 0 {
		v := pgvector.NewVector(item.Embedding)
		vector = &v
	}
	record := memoryModel{
		ID:        item.ID,
		ChatID:    item.ChatID,
		Category:  item.Category,
		Text:      item.Text,
		Embedding: vector,
		CreatedAt: item.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert memory item: %w", err)
	}
	return nil
}

func (r *MemoryRepo) ListByChat(ctx context.Context, chatID string) ([]types.MemoryItem, error) {
	var models []memoryModel
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list memory items: %w", err)
	}
	results := make([]types.MemoryItem, 0, len(models))
	for _, model := range models {
		results = append(results, memoryFromModel(model))
	}
	return results, nil
}

// ExistsText reports whether an item with the exact text is already stored.
func (r *MemoryRepo) ExistsText(ctx context.Context, chatID, text string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&memoryModel{}).
		Where("chat_id = ? AND text = ?", chatID, text).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check memory text: %w", err)
	}
	return count > 0, nil
}

// searchSimilarQuery filters by cosine similarity and ranks by distance.
// The threshold filter and the ORDER BY share the same operator so the
// vector index serves both.
const searchSimilarQuery = `
	SELECT id, chat_id, category, text, embedding, created_at
	FROM memory_items
	WHERE chat_id = $1 AND embedding IS NOT NULL
	  AND 1 - (embedding <=> $2) > $3
	ORDER BY embedding <=> $2
	LIMIT $4`

// SearchSimilar returns up to topK items ranked by cosine similarity against
// the query embedding, filtered by the similarity threshold.
func (r *MemoryRepo) SearchSimilar(ctx context.Context, chatID string, embedding []float32, topK int, threshold float64) ([]types.MemoryItem, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	var models []memoryModel
	vec := pgvector.NewVector(embedding)
	if err := r.db.WithContext(ctx).
		Raw(searchSimilarQuery, chatID, vec, threshold, topK).
		Scan(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}
	results := make([]types.MemoryItem, 0, len(models))
	for _, model := range models {
		results = append(results, memoryFromModel(model))
	}
	return results, nil
}

func (r *MemoryRepo) DeleteByChat(ctx context.Context, chatID string) error {
	if err := r.db.WithContext(ctx).Delete(&memoryModel{}, "chat_id = ?", chatID).Error; err != nil {
		return fmt.Errorf("failed to delete memory items: %w", err)
	}
	return nil
}

func memoryFromModel(model memoryModel) types.MemoryItem {
	item := types.MemoryItem{
		ID:        model.ID,
		ChatID:    model.ChatID,
		Category:  model.Category,
		Text:      model.Text,
		CreatedAt: model.CreatedAt,
	}
	if model.Embedding != nil {
		item.Embedding = model.Embedding.Slice()
	}
	return item
}
