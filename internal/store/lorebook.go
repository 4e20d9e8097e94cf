package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/easeaico/project-dear/internal/types"
)

type lorebookModel struct {
	ID             string `gorm:"primaryKey"`
	Scope          string `gorm:"index"`
	OwnerID        string `gorm:"index"`
	Name           string
	Keys           json.RawMessage `gorm:"type:jsonb"`
	SecondaryKeys  json.RawMessage `gorm:"type:jsonb"`
	Content        string
	Enabled        bool
	Constant       bool
	Selective      bool
	CaseSensitive  bool
	InsertionOrder int
	Position       string
	ScanDepth      int
	TokenBudget    int
}

func (lorebookModel) TableName() string {
	return "lorebook_entries"
}

// LorebookRepo accesses world-info entries across all three scopes.
type LorebookRepo struct {
	db *gorm.DB
}

func (r *LorebookRepo) Put(ctx context.Context, entry *types.LorebookEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	keys, err := json.Marshal(entry.Keys)
	if err != nil {
		return fmt.Errorf("failed to encode entry keys: %w", err)
	}
	secondary, err := json.Marshal(entry.SecondaryKeys)
	if err != nil {
		return fmt.Errorf("failed to encode entry secondary keys: %w", err)
	}
	// The default order is resolved at write time so an explicit 0 survives.
	order := types.DefaultInsertionOrder
	if entry.InsertionOrder != nil {
		order = *entry.InsertionOrder
	}
	record := lorebookModel{
		ID:             entry.ID,
		Scope:          string(entry.Scope),
		OwnerID:        entry.OwnerID,
		Name:           entry.Name,
		Keys:           keys,
		SecondaryKeys:  secondary,
		Content:        entry.Content,
		Enabled:        entry.Enabled,
		Constant:       entry.Constant,
		Selective:      entry.Selective,
		CaseSensitive:  entry.CaseSensitive,
		InsertionOrder: order,
		Position:       entry.Position,
		ScanDepth:      entry.ScanDepth,
		TokenBudget:    entry.TokenBudget,
	}
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert lorebook entry: %w", err)
	}
	return nil
}

// ListForScopes unions global entries with those owned by the given
// character and chat. Filtering and ordering happen in the resolver.
func (r *LorebookRepo) ListForScopes(ctx context.Context, characterID, chatID string) ([]types.LorebookEntry, error) {
	var models []lorebookModel
	query := r.db.WithContext(ctx).
		Where("scope = ?", string(types.ScopeGlobal)).
		Or("scope = ? AND owner_id = ?", string(types.ScopeCharacter), characterID).
		Or("scope = ? AND owner_id = ?", string(types.ScopeChat), chatID)
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list lorebook entries: %w", err)
	}
	results := make([]types.LorebookEntry, 0, len(models))
	for _, model := range models {
		entry, err := lorebookFromModel(model)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, nil
}

func (r *LorebookRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&lorebookModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete lorebook entry: %w", err)
	}
	return nil
}

func (r *LorebookRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	if err := r.db.WithContext(ctx).Delete(&lorebookModel{}, "owner_id = ?", ownerID).Error; err != nil {
		return fmt.Errorf("failed to delete lorebook entries by owner: %w", err)
	}
	return nil
}

func lorebookFromModel(model lorebookModel) (types.LorebookEntry, error) {
	var keys, secondary []string
	if len(model.Keys) > 0 {
		if err := json.Unmarshal(model.Keys, &keys); err != nil {
			return types.LorebookEntry{}, fmt.Errorf("failed to decode entry keys: %w", err)
		}
	}
	if len(model.SecondaryKeys) > 0 {
		if err := json.Unmarshal(model.SecondaryKeys, &secondary); err != nil {
			return types.LorebookEntry{}, fmt.Errorf("failed to decode entry secondary keys: %w", err)
		}
	}
	return types.LorebookEntry{
		ID:             model.ID,
		Scope:          types.LorebookScope(model.Scope),
		OwnerID:        model.OwnerID,
		Name:           model.Name,
		Keys:           keys,
		SecondaryKeys:  secondary,
		Content:        model.Content,
		Enabled:        model.Enabled,
		Constant:       model.Constant,
		Selective:      model.Selective,
		CaseSensitive:  model.CaseSensitive,
		InsertionOrder: &model.InsertionOrder,
		Position:       model.Position,
		ScanDepth:      model.ScanDepth,
		TokenBudget:    model.TokenBudget,
	}, nil
}
