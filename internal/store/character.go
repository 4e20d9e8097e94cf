package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-dear/internal/types"
)

type characterModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Avatar       string
	Description  string
	FirstMessage string `gorm:"column:first_mes"`
	PersonaID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

type personaModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Description string
	Avatar      string
	CreatedAt   time.Time
}

func (personaModel) TableName() string {
	return "personas"
}

// CharacterRepo accesses character data.
type CharacterRepo struct {
	db *gorm.DB
}

func (r *CharacterRepo) Put(ctx context.Context, character *types.Character) error {
	if character == nil {
		return fmt.Errorf("character cannot be nil")
	}
	record := characterModel{
		ID:           character.ID,
		Name:         character.Name,
		Avatar:       character.Avatar,
		Description:  character.Description,
		FirstMessage: character.FirstMessage,
		PersonaID:    character.PersonaID,
		CreatedAt:    character.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert character: %w", err)
	}
	return nil
}

func (r *CharacterRepo) GetByID(ctx context.Context, id string) (*types.Character, error) {
	var model characterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get character by id: %w", err)
	}
	return characterFromModel(model), nil
}

func (r *CharacterRepo) GetAll(ctx context.Context) ([]types.Character, error) {
	var models []characterModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	results := make([]types.Character, 0, len(models))
	for _, model := range models {
		results = append(results, *characterFromModel(model))
	}
	return results, nil
}

func (r *CharacterRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&characterModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return nil
}

func characterFromModel(model characterModel) *types.Character {
	return &types.Character{
		ID:           model.ID,
		Name:         model.Name,
		Avatar:       model.Avatar,
		Description:  model.Description,
		FirstMessage: model.FirstMessage,
		PersonaID:    model.PersonaID,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// PersonaRepo accesses persona data.
type PersonaRepo struct {
	db *gorm.DB
}

func (r *PersonaRepo) Put(ctx context.Context, persona *types.Persona) error {
	if persona == nil {
		return fmt.Errorf("persona cannot be nil")
	}
	record := personaModel{
		ID:          persona.ID,
		Name:        persona.Name,
		Description: persona.Description,
		Avatar:      persona.Avatar,
		CreatedAt:   persona.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert persona: %w", err)
	}
	return nil
}

func (r *PersonaRepo) GetByID(ctx context.Context, id string) (*types.Persona, error) {
	var model personaModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get persona by id: %w", err)
	}
	return &types.Persona{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		Avatar:      model.Avatar,
		CreatedAt:   model.CreatedAt,
	}, nil
}

func (r *PersonaRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&personaModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	return nil
}
