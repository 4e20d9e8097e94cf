// Package store persists companion entities in PostgreSQL via gorm.
//
// Collections are independent: there are no cross-collection transactions,
// and cascading deletes are applied manually by the caller-facing helpers.
package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store holds the DB pool and repositories.
type Store struct {
	db            *gorm.DB
	Characters    *CharacterRepo
	Personas      *PersonaRepo
	Chats         *ChatRepo
	Lorebook      *LorebookRepo
	Memories      *MemoryRepo
	Relationships *RelationshipRepo
	Moments       *MomentRepo
}

// NewStore initializes the PostgreSQL pool and repositories.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&characterModel{},
		&personaModel{},
		&chatModel{},
		&messageModel{},
		&lorebookModel{},
		&memoryModel{},
		&relationshipModel{},
		&momentModel{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{
		db:            db,
		Characters:    &CharacterRepo{db: db},
		Personas:      &PersonaRepo{db: db},
		Chats:         &ChatRepo{db: db},
		Lorebook:      &LorebookRepo{db: db},
		Memories:      &MemoryRepo{db: db},
		Relationships: &RelationshipRepo{db: db},
		Moments:       &MomentRepo{db: db},
	}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}

// DeleteCharacter removes a character and everything hanging off it.
// Collections are deleted one by one; there is no multi-table transaction.
func (s *Store) DeleteCharacter(ctx context.Context, characterID string) error {
	chats, err := s.Chats.ListByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if err := s.Memories.DeleteByChat(ctx, chat.ID); err != nil {
			return err
		}
		if err := s.Lorebook.DeleteByOwner(ctx, chat.ID); err != nil {
			return err
		}
		if err := s.Chats.Delete(ctx, chat.ID); err != nil {
			return err
		}
	}
	if err := s.Lorebook.DeleteByOwner(ctx, characterID); err != nil {
		return err
	}
	if err := s.Moments.DeleteByCharacter(ctx, characterID); err != nil {
		return err
	}
	if err := s.Relationships.Delete(ctx, characterID); err != nil {
		return err
	}
	return s.Characters.Delete(ctx, characterID)
}
