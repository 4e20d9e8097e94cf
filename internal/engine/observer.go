package engine

import (
	"time"

	"github.com/easeaico/project-dear/internal/types"
)

// Observer receives delivery events for the UI layer. Implementations must
// be safe for concurrent use; delivery runs on background goroutines.
type Observer interface {
	// TypingStarted signals the typing indicator for roughly the given
	// duration before the next bubble.
	TypingStarted(chatID string, duration time.Duration)
	// MessageAdded delivers one persisted message for rendering.
	MessageAdded(chatID string, msg types.Message)
	// MomentBanner asks for a transient celebratory banner.
	MomentBanner(moment types.Moment)
	// LevelChanged reports a relationship promotion.
	LevelChanged(state types.RelationshipState)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) TypingStarted(string, time.Duration)  {}
func (NopObserver) MessageAdded(string, types.Message)   {}
func (NopObserver) MomentBanner(types.Moment)            {}
func (NopObserver) LevelChanged(types.RelationshipState) {}
