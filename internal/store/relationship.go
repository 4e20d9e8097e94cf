package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-dear/internal/types"
)

type relationshipModel struct {
	CharacterID string `gorm:"primaryKey"`
	Level       string
	Score       int
	FirstMetAt  time.Time
	LastScoreAt time.Time
	LastEvalAt  time.Time
	UpdatedAt   time.Time
}

func (relationshipModel) TableName() string {
	return "relationship_states"
}

// RelationshipRepo accesses per-character relationship state.
type RelationshipRepo struct {
	db *gorm.DB
}

func (r *RelationshipRepo) Get(ctx context.Context, characterID string) (*types.RelationshipState, error) {
	var model relationshipModel
	err := r.db.WithContext(ctx).First(&model, "character_id = ?", characterID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get relationship state: %w", err)
	}
	return &types.RelationshipState{
		CharacterID: model.CharacterID,
		Level:       model.Level,
		Score:       model.Score,
		FirstMetAt:  model.FirstMetAt,
		LastScoreAt: model.LastScoreAt,
		LastEvalAt:  model.LastEvalAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

func (r *RelationshipRepo) Put(ctx context.Context, state *types.RelationshipState) error {
	if state == nil {
		return fmt.Errorf("relationship state cannot be nil")
	}
	record := relationshipModel{
		CharacterID: state.CharacterID,
		Level:       state.Level,
		Score:       state.Score,
		FirstMetAt:  state.FirstMetAt,
		LastScoreAt: state.LastScoreAt,
		LastEvalAt:  state.LastEvalAt,
	}
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert relationship state: %w", err)
	}
	return nil
}

func (r *RelationshipRepo) Delete(ctx context.Context, characterID string) error {
	if err := r.db.WithContext(ctx).Delete(&relationshipModel{}, "character_id = ?", characterID).Error; err != nil {
		return fmt.Errorf("failed to delete relationship state: %w", err)
	}
	return nil
}
