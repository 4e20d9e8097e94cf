package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-dear/internal/types"
)

type chatModel struct {
	ID          string `gorm:"primaryKey"`
	CharacterID string `gorm:"index"`
	CreatedAt   time.Time
}

func (chatModel) TableName() string {
	return "chats"
}

type messageModel struct {
	// Seq preserves insertion order between equal timestamps.
	Seq       int64  `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"uniqueIndex"`
	ChatID    string `gorm:"index"`
	Role      string
	Type      string
	Content   string
	ImageRef  string
	Timestamp time.Time `gorm:"index"`
}

func (messageModel) TableName() string {
	return "messages"
}

// ChatRepo accesses chats and their messages.
type ChatRepo struct {
	db *gorm.DB
}

func (r *ChatRepo) Put(ctx context.Context, chat *types.Chat) error {
	if chat == nil {
		return fmt.Errorf("chat cannot be nil")
	}
	record := chatModel{ID: chat.ID, CharacterID: chat.CharacterID, CreatedAt: chat.CreatedAt}
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

func (r *ChatRepo) GetByID(ctx context.Context, id string) (*types.Chat, error) {
	var model chatModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get chat by id: %w", err)
	}
	return &types.Chat{ID: model.ID, CharacterID: model.CharacterID, CreatedAt: model.CreatedAt}, nil
}

func (r *ChatRepo) ListByCharacter(ctx context.Context, characterID string) ([]types.Chat, error) {
	var models []chatModel
	if err := r.db.WithContext(ctx).Where("character_id = ?", characterID).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	results := make([]types.Chat, 0, len(models))
	for _, model := range models {
		results = append(results, types.Chat{ID: model.ID, CharacterID: model.CharacterID, CreatedAt: model.CreatedAt})
	}
	return results, nil
}

// Delete removes a chat and its messages.
func (r *ChatRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&messageModel{}, "chat_id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}
	if err := r.db.WithContext(ctx).Delete(&chatModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// AppendMessage stores a message. Listing always orders by timestamp then
// insertion sequence, so a backdated offline message lands in the right
// place without touching its neighbors.
func (r *ChatRepo) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	record := messageModel{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		Role:      string(msg.Role),
		Type:      string(msg.Type),
		Content:   msg.Content,
		ImageRef:  msg.ImageRef,
		Timestamp: msg.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *ChatRepo) UpdateMessage(ctx context.Context, id string, content string) error {
	if err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("id = ?", id).Update("content", content).Error; err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (r *ChatRepo) DeleteMessage(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&messageModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ListMessages returns every message of a chat ordered by timestamp.
func (r *ChatRepo) ListMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	var models []messageModel
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("timestamp ASC, seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	results := make([]types.Message, 0, len(models))
	for _, model := range models {
		results = append(results, messageFromModel(model))
	}
	return results, nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (r *ChatRepo) RecentMessages(ctx context.Context, chatID string, limit int) ([]types.Message, error) {
	var models []messageModel
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("timestamp DESC, seq DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	results := make([]types.Message, 0, len(models))
	for _, model := range models {
		results = append(results, messageFromModel(model))
	}
	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func (r *ChatRepo) LastMessage(ctx context.Context, chatID string) (*types.Message, error) {
	var model messageModel
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("timestamp DESC, seq DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last message: %w", err)
	}
	result := messageFromModel(model)
	return &result, nil
}

func (r *ChatRepo) CountMessages(ctx context.Context, chatID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(count), nil
}

// EarliestMessageAt returns the timestamp of the oldest message across all
// of a character's chats, or the zero time when no message exists yet.
func (r *ChatRepo) EarliestMessageAt(ctx context.Context, characterID string) (time.Time, error) {
	var model messageModel
	err := r.db.WithContext(ctx).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.character_id = ?", characterID).
		Order("messages.timestamp ASC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query earliest message: %w", err)
	}
	return model.Timestamp, nil
}

func messageFromModel(model messageModel) types.Message {
	return types.Message{
		ID:        model.ID,
		ChatID:    model.ChatID,
		Role:      types.MessageRole(model.Role),
		Type:      types.MessageType(model.Type),
		Content:   model.Content,
		ImageRef:  model.ImageRef,
		Timestamp: model.Timestamp,
	}
}
