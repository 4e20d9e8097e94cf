// Package types defines the persisted entities of the companion engine.
package types

import "time"

// MessageRole distinguishes who authored a message.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleAI   MessageRole = "ai"
)

// MessageType is the rendering kind of a message bubble.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageSticker MessageType = "sticker"
)

// Character is an AI persona the user converses with.
type Character struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"` // emoji or image reference, may be empty
	Description  string    `json:"description"`
	FirstMessage string    `json:"first_message"`
	PersonaID    string    `json:"persona_id"` // bound persona, may be empty
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Persona is the user's own self-representation bound to a character.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Avatar      string    `json:"avatar"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is one chat bubble. Ordering is by insertion except for
// background-inserted offline messages, which are ordered by timestamp.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	Role      MessageRole `json:"role"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	ImageRef  string      `json:"image_ref"` // optional attachment reference
	Timestamp time.Time   `json:"timestamp"`
}

// Chat is a conversation owned by a character.
type Chat struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// LorebookScope marks where an entry lives; all scopes merge at resolution.
type LorebookScope string

const (
	ScopeGlobal    LorebookScope = "global"
	ScopeCharacter LorebookScope = "character"
	ScopeChat      LorebookScope = "chat"
)

// DefaultInsertionOrder is applied when an entry carries no explicit order.
const DefaultInsertionOrder = 100

// LorebookEntry is a conditionally injected world-info snippet.
type LorebookEntry struct {
	ID             string        `json:"id"`
	Scope          LorebookScope `json:"scope"`
	OwnerID        string        `json:"owner_id"` // character or chat id, empty for global
	Name           string        `json:"name"`
	Keys           []string      `json:"keys"`           // primary trigger keys
	SecondaryKeys  []string      `json:"secondary_keys"` // used when Selective is set
	Content        string        `json:"content"`
	Enabled        bool          `json:"enabled"`
	Constant       bool          `json:"constant"`
	Selective      bool          `json:"selective"`
	CaseSensitive  bool          `json:"case_sensitive"`
	InsertionOrder *int          `json:"insertion_order,omitempty"` // lower sorts first; nil means DefaultInsertionOrder
	Position       string        `json:"position"`
	ScanDepth      int           `json:"scan_depth"`
	TokenBudget    int           `json:"token_budget"`
}

// MemoryItem is one durable extracted fact, grouped by conversation.
// Append-only; deduplicated by exact text within a conversation.
type MemoryItem struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Category  string    `json:"category"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"` // similarity recall, not serialized
	CreatedAt time.Time `json:"created_at"`
}

// RelationshipState tracks the evolving bond with one character.
// Exactly one exists per character; the level only moves forward.
type RelationshipState struct {
	CharacterID string    `json:"character_id"`
	Level       string    `json:"level"`
	Score       int       `json:"score"` // cumulative, never negative
	FirstMetAt  time.Time `json:"first_met_at"`
	LastScoreAt time.Time `json:"last_score_at"`
	LastEvalAt  time.Time `json:"last_eval_at"` // last qualitative evaluation
	UpdatedAt   time.Time `json:"updated_at"`
}

// Moment is a detected special event, appended and never mutated.
type Moment struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id"`
	Title       string    `json:"title"`
	Emoji       string    `json:"emoji"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
