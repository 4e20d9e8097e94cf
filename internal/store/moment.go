package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-dear/internal/types"
)

type momentModel struct {
	ID          string `gorm:"primaryKey"`
	CharacterID string `gorm:"index"`
	Title       string
	Emoji       string
	Description string
	Timestamp   time.Time
}

func (momentModel) TableName() string {
	return "moments"
}

// MomentRepo accesses the append-only moment log.
type MomentRepo struct {
	db *gorm.DB
}

func (r *MomentRepo) Append(ctx context.Context, moment *types.Moment) error {
	if moment == nil {
		return fmt.Errorf("moment cannot be nil")
	}
	record := momentModel{
		ID:          moment.ID,
		CharacterID: moment.CharacterID,
		Title:       moment.Title,
		Emoji:       moment.Emoji,
		Description: moment.Description,
		Timestamp:   moment.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert moment: %w", err)
	}
	return nil
}

func (r *MomentRepo) ListByCharacter(ctx context.Context, characterID string) ([]types.Moment, error) {
	var models []momentModel
	if err := r.db.WithContext(ctx).Where("character_id = ?", characterID).
		Order("timestamp ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list moments: %w", err)
	}
	results := make([]types.Moment, 0, len(models))
	for _, model := range models {
		results = append(results, types.Moment{
			ID:          model.ID,
			CharacterID: model.CharacterID,
			Title:       model.Title,
			Emoji:       model.Emoji,
			Description: model.Description,
			Timestamp:   model.Timestamp,
		})
	}
	return results, nil
}

func (r *MomentRepo) DeleteByCharacter(ctx context.Context, characterID string) error {
	if err := r.db.WithContext(ctx).Delete(&momentModel{}, "character_id = ?", characterID).Error; err != nil {
		return fmt.Errorf("failed to delete moments: %w", err)
	}
	return nil
}
