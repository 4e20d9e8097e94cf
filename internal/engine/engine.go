// Package engine orchestrates a conversation turn: persist the user
// message, assemble context, call the model, split the reply into paced
// bubbles, and kick off the background enrichments.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/llm"
	"github.com/easeaico/project-dear/internal/lorebook"
	"github.com/easeaico/project-dear/internal/prompt"
	"github.com/easeaico/project-dear/internal/relationship"
	"github.com/easeaico/project-dear/internal/segment"
	"github.com/easeaico/project-dear/internal/types"
)

// loreScanTurns is how many trailing history messages join the user text
// when matching lorebook keys.
const loreScanTurns = 3

// enrichmentTimeout bounds each fire-and-forget background pass.
const enrichmentTimeout = 2 * time.Minute

// Characters reads character cards.
type Characters interface {
	GetByID(ctx context.Context, id string) (*types.Character, error)
}

// Personas reads the user's self-representations.
type Personas interface {
	GetByID(ctx context.Context, id string) (*types.Persona, error)
}

// Chats persists conversations and their messages.
type Chats interface {
	Put(ctx context.Context, chat *types.Chat) error
	GetByID(ctx context.Context, id string) (*types.Chat, error)
	AppendMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, chatID string) ([]types.Message, error)
}

// Lorebooks lists the entries visible to a conversation.
type Lorebooks interface {
	ListForScopes(ctx context.Context, characterID, chatID string) ([]types.LorebookEntry, error)
}

// MemoryRecaller selects the memory items for the system instruction.
type MemoryRecaller interface {
	Recall(ctx context.Context, chatID, query string) ([]types.MemoryItem, error)
}

// States persists relationship state.
type States interface {
	Get(ctx context.Context, characterID string) (*types.RelationshipState, error)
	Put(ctx context.Context, state *types.RelationshipState) error
}

// Completer is the chat model call.
type Completer interface {
	CompleteText(ctx context.Context, system string, turns []*genai.Content, cfg llm.GenerationConfig) (string, error)
}

// Scorer is the relationship enrichment hook.
type Scorer interface {
	ScoreConversation(ctx context.Context, characterID string, recent []types.Message)
}

// Extractor is the memory enrichment hook.
type Extractor interface {
	MaybeExtract(ctx context.Context, chatID string)
}

// Detector is the moment enrichment hook.
type Detector interface {
	MaybeDetect(ctx context.Context, characterID, chatID string)
}

// Pacing produces bubble delivery delays.
type Pacing interface {
	BubbleDelay(bubble string) time.Duration
	TypingDuration() time.Duration
}

// Engine runs the interaction loop for all conversations.
type Engine struct {
	characters Characters
	personas   Personas
	chats      Chats
	lorebooks  Lorebooks
	memories   MemoryRecaller
	states     States

	chatModel      Completer
	proactiveModel Completer // defaults to chatModel
	genConfig      llm.GenerationConfig
	builder        *prompt.Builder
	styler         *Styler
	pacer          Pacing
	observer       Observer

	scorer    Scorer
	extractor Extractor
	detector  Detector

	nowFunc func() time.Time
	wg      sync.WaitGroup

	mu         sync.Mutex
	activeChat string
}

// New creates an Engine. Observer, styler, and the enrichment hooks may be
// nil.
func New(characters Characters, personas Personas, chats Chats, lorebooks Lorebooks, memories MemoryRecaller, states States, chatModel Completer, genConfig llm.GenerationConfig, builder *prompt.Builder, styler *Styler, pacer Pacing, observer Observer) *Engine {
	if observer == nil {
		observer = NopObserver{}
	}
	if pacer == nil {
		pacer = segment.NewPacer()
	}
	return &Engine{
		characters: characters,
		personas:   personas,
		chats:      chats,
		lorebooks:  lorebooks,
		memories:   memories,
		states:     states,
		chatModel:  chatModel,
		genConfig:  genConfig,
		builder:    builder,
		styler:     styler,
		pacer:      pacer,
		observer:   observer,
		nowFunc:    time.Now,
	}
}

// SetEnrichments attaches the background hooks.
func (e *Engine) SetEnrichments(scorer Scorer, extractor Extractor, detector Detector) {
	e.scorer = scorer
	e.extractor = extractor
	e.detector = detector
}

// NotifyMoment forwards a recorded moment to the observer as a transient
// banner. Wire it to the moment detector's callback.
func (e *Engine) NotifyMoment(moment *types.Moment) {
	if moment != nil {
		e.observer.MomentBanner(*moment)
	}
}

// NotifyLevelUp forwards a relationship promotion to the observer. Wire it
// to the relationship engine's callback.
func (e *Engine) NotifyLevelUp(state *types.RelationshipState) {
	if state != nil {
		e.observer.LevelChanged(*state)
	}
}

// SetProactiveModel overrides the model used for character-initiated
// messages. Without an override the chat model serves them.
func (e *Engine) SetProactiveModel(completer Completer) {
	e.proactiveModel = completer
}

// SetActiveChat marks which conversation is on screen. Bubbles for other
// chats are delivered without pacing.
func (e *Engine) SetActiveChat(chatID string) {
	e.mu.Lock()
	e.activeChat = chatID
	e.mu.Unlock()
}

func (e *Engine) isActive(chatID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeChat == chatID
}

// Wait blocks until in-flight deliveries and enrichments finish. For
// shutdown and tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// StartChat creates a conversation with a character and seeds its first
// message when the card has one.
func (e *Engine) StartChat(ctx context.Context, characterID string) (*types.Chat, error) {
	char, err := e.characters.GetByID(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load character: %w", err)
	}
	now := e.nowFunc()
	chat := &types.Chat{ID: uuid.NewString(), CharacterID: characterID, CreatedAt: now}
	if err := e.chats.Put(ctx, chat); err != nil {
		return nil, err
	}

	if err := e.ensureState(ctx, characterID, now); err != nil {
		return nil, err
	}

	if first := strings.TrimSpace(char.FirstMessage); first != "" {
		persona, _ := e.loadPersona(ctx, char)
		msg := &types.Message{
			ID:        uuid.NewString(),
			ChatID:    chat.ID,
			Role:      types.RoleAI,
			Type:      types.MessageText,
			Content:   prompt.ReplaceVars(first, char.Name, personaName(persona)),
			Timestamp: now,
		}
		if err := e.chats.AppendMessage(ctx, msg); err != nil {
			return nil, err
		}
		e.observer.MessageAdded(chat.ID, *msg)
	}
	return chat, nil
}

// SendMessage runs one user-initiated turn. The returned messages are the
// persisted reply bubbles; their on-screen delivery is paced asynchronously
// through the Observer. A model failure is persisted as a visible error
// bubble and also returned as an error.
func (e *Engine) SendMessage(ctx context.Context, chatID, text string, attachments []prompt.Attachment) ([]types.Message, error) {
	chat, err := e.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	char, err := e.characters.GetByID(ctx, chat.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load character: %w", err)
	}

	now := e.nowFunc()
	if err := e.ensureState(ctx, char.ID, now); err != nil {
		return nil, err
	}

	msgType := types.MessageText
	imageRef := ""
	if len(attachments) > 0 {
		msgType = types.MessageImage
		imageRef = attachments[0].MIMEType
	}
	userMsg := &types.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      types.RoleUser,
		Type:      msgType,
		Content:   text,
		ImageRef:  imageRef,
		Timestamp: now,
	}
	if err := e.chats.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	reply, err := e.complete(ctx, e.chatModel, char, chat, text, attachments)
	if err != nil {
		errMsg := &types.Message{
			ID:        uuid.NewString(),
			ChatID:    chatID,
			Role:      types.RoleAI,
			Type:      types.MessageText,
			Content:   "⚠️ 消息发送失败：" + err.Error(),
			Timestamp: e.nowFunc(),
		}
		if appendErr := e.chats.AppendMessage(ctx, errMsg); appendErr != nil {
			slog.Error("failed to persist error bubble", "chat", chatID, "error", appendErr.Error())
		} else {
			e.observer.MessageAdded(chatID, *errMsg)
		}
		return nil, err
	}

	bubbles := segment.Split(e.styler.Apply(reply))
	persisted := make([]types.Message, 0, len(bubbles))
	for _, bubble := range bubbles {
		msg := &types.Message{
			ID:        uuid.NewString(),
			ChatID:    chatID,
			Role:      types.RoleAI,
			Type:      types.MessageText,
			Content:   bubble,
			Timestamp: e.nowFunc(),
		}
		if err := e.chats.AppendMessage(ctx, msg); err != nil {
			return nil, err
		}
		persisted = append(persisted, *msg)
	}

	e.deliverAsync(chatID, persisted)
	e.enrichAsync(ctx, char.ID, chatID)
	return persisted, nil
}

// SendProactive generates one character-initiated message. A non-zero
// timestamp backdates it into the history; ordering by timestamp places it
// correctly. Implements the scheduler's delivery contract.
func (e *Engine) SendProactive(ctx context.Context, chatID, hint string, timestamp time.Time) error {
	chat, err := e.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}
	char, err := e.characters.GetByID(ctx, chat.CharacterID)
	if err != nil {
		return fmt.Errorf("failed to load character: %w", err)
	}

	completer := e.proactiveModel
	if completer == nil {
		completer = e.chatModel
	}
	reply, err := e.complete(ctx, completer, char, chat, "（"+hint+"）", nil)
	if err != nil {
		return err
	}

	if timestamp.IsZero() {
		timestamp = e.nowFunc()
	}
	msg := &types.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      types.RoleAI,
		Type:      types.MessageText,
		Content:   e.styler.Apply(reply),
		Timestamp: timestamp,
	}
	if err := e.chats.AppendMessage(ctx, msg); err != nil {
		return err
	}
	e.observer.MessageAdded(chatID, *msg)
	return nil
}

// complete assembles the request and calls the given model.
func (e *Engine) complete(ctx context.Context, completer Completer, char *types.Character, chat *types.Chat, userText string, attachments []prompt.Attachment) (string, error) {
	history, err := e.chats.ListMessages(ctx, chat.ID)
	if err != nil {
		return "", err
	}

	entries, err := e.lorebooks.ListForScopes(ctx, char.ID, chat.ID)
	if err != nil {
		slog.Warn("failed to load lorebook entries", "chat", chat.ID, "error", err.Error())
	}
	lore := lorebook.Resolve(entries, scanText(history, userText))

	var memories []types.MemoryItem
	if e.memories != nil {
		memories, err = e.memories.Recall(ctx, chat.ID, userText)
		if err != nil {
			slog.Warn("failed to recall memories", "chat", chat.ID, "error", err.Error())
		}
	}

	level := relationship.LevelStranger
	if state, err := e.states.Get(ctx, char.ID); err == nil && state != nil {
		level = state.Level
	}

	persona, _ := e.loadPersona(ctx, char)
	req, err := e.builder.Build(prompt.BuildContext{
		Character:         char,
		Persona:           persona,
		RelationshipLevel: level,
		RelationshipLabel: relationship.Label(level),
		LoreContents:      lore,
		Memories:          memories,
		History:           history,
		UserText:          userText,
		Attachments:       attachments,
	})
	if err != nil {
		return "", err
	}
	return completer.CompleteText(ctx, req.System, req.Turns, e.genConfig)
}

// deliverAsync pushes bubbles to the observer with human pacing. The first
// bubble arrives immediately; the typing indicator runs between bubbles
// only. Bubbles for a chat that is not on screen arrive without delays.
func (e *Engine) deliverAsync(chatID string, bubbles []types.Message) {
	if len(bubbles) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for i, bubble := range bubbles {
			if i > 0 && e.isActive(chatID) {
				typing := e.pacer.TypingDuration()
				e.observer.TypingStarted(chatID, typing)
				time.Sleep(typing)
				time.Sleep(e.pacer.BubbleDelay(bubble.Content))
			}
			e.observer.MessageAdded(chatID, bubble)
		}
	}()
}

// enrichAsync runs scoring, memory extraction, and moment detection in the
// background, detached from the request context.
func (e *Engine) enrichAsync(ctx context.Context, characterID, chatID string) {
	base := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		bg, cancel := context.WithTimeout(base, enrichmentTimeout)
		defer cancel()

		if e.scorer != nil {
			recent, err := e.chats.ListMessages(bg, chatID)
			if err == nil {
				if len(recent) > 6 {
					recent = recent[len(recent)-6:]
				}
				e.scorer.ScoreConversation(bg, characterID, recent)
			}
		}
		if e.extractor != nil {
			e.extractor.MaybeExtract(bg, chatID)
		}
		if e.detector != nil {
			e.detector.MaybeDetect(bg, characterID, chatID)
		}
	}()
}

// ensureState creates the initial relationship state on first contact.
func (e *Engine) ensureState(ctx context.Context, characterID string, now time.Time) error {
	state, err := e.states.Get(ctx, characterID)
	if err != nil {
		return err
	}
	if state != nil {
		return nil
	}
	return e.states.Put(ctx, relationship.NewState(characterID, relationship.LevelStranger, now))
}

func (e *Engine) loadPersona(ctx context.Context, char *types.Character) (*types.Persona, error) {
	if char.PersonaID == "" || e.personas == nil {
		return nil, nil
	}
	persona, err := e.personas.GetByID(ctx, char.PersonaID)
	if err != nil {
		slog.Warn("failed to load persona", "persona", char.PersonaID, "error", err.Error())
		return nil, err
	}
	return persona, nil
}

func personaName(persona *types.Persona) string {
	if persona == nil || persona.Name == "" {
		return "user"
	}
	return persona.Name
}

// scanText is the text lorebook keys are matched against: the incoming
// user text plus the trailing turns of history.
func scanText(history []types.Message, userText string) string {
	var sb strings.Builder
	start := len(history) - loreScanTurns
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString(userText)
	return sb.String()
}
