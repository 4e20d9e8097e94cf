// Package prompt deterministically assembles the model request for a
// conversation turn: layered system instruction, trimmed history, and the
// final user turn carrying attachments and the jailbreak text.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/config"
	"github.com/easeaico/project-dear/internal/types"
)

// Attachment is one inline image sent with the user turn.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// BuildContext contains all inputs for request assembly.
type BuildContext struct {
	Character         *types.Character
	Persona           *types.Persona // may be nil
	RelationshipLevel string         // machine id
	RelationshipLabel string         // human-readable label
	LoreContents      []string       // resolver output, already ordered
	Memories          []types.MemoryItem
	History           []types.Message
	UserText          string
	Attachments       []Attachment
}

// Request is the assembled model call.
type Request struct {
	System string
	Turns  []*genai.Content
}

// Builder assembles requests. It is a pure function of its inputs plus the
// clock; the network call belongs to collaborators.
type Builder struct {
	window            int
	jailbreakText     string
	jailbreakPosition config.JailbreakPosition
	nowFunc           func() time.Time
}

// NewBuilder creates a prompt Builder with the configured history window.
func NewBuilder(window int, jailbreakText string, position config.JailbreakPosition) *Builder {
	if window <= 0 {
		window = 30
	}
	return &Builder{
		window:            window,
		jailbreakText:     jailbreakText,
		jailbreakPosition: position,
		nowFunc:           time.Now,
	}
}

// Build assembles the full request for one turn.
func (b *Builder) Build(ctx BuildContext) (Request, error) {
	if ctx.Character == nil {
		return Request{}, fmt.Errorf("character is required")
	}

	userName := "user"
	if ctx.Persona != nil && ctx.Persona.Name != "" {
		userName = ctx.Persona.Name
	}

	system, err := b.buildSystem(ctx, userName)
	if err != nil {
		return Request{}, err
	}

	turns := b.historyTurns(ctx.History)
	turns = append(turns, b.finalTurn(ctx))

	return Request{System: system, Turns: turns}, nil
}

func (b *Builder) buildSystem(ctx BuildContext, userName string) (string, error) {
	char := ctx.Character

	var personaBlock string
	if ctx.Persona != nil {
		personaBlock = strings.TrimSpace(ctx.Persona.Name + "：" + ctx.Persona.Description)
	}

	var memoryBlock strings.Builder
	for _, item := range ctx.Memories {
		memoryBlock.WriteString(fmt.Sprintf("- [%s] %s\n", item.Category, item.Text))
	}

	jailbreak := ""
	if b.jailbreakPosition == config.JailbreakSystem {
		jailbreak = b.jailbreakText
	}

	data := struct {
		Description       string
		RelationshipLevel string
		RelationshipLabel string
		PersonaBlock      string
		LoreBlock         string
		MemoryBlock       string
		Jailbreak         string
	}{
		Description:       strings.TrimSpace(char.Description),
		RelationshipLevel: ctx.RelationshipLevel,
		RelationshipLabel: ctx.RelationshipLabel,
		PersonaBlock:      personaBlock,
		LoreBlock:         strings.TrimSpace(strings.Join(ctx.LoreContents, "\n")),
		MemoryBlock:       strings.TrimSpace(memoryBlock.String()),
		Jailbreak:         strings.TrimSpace(jailbreak),
	}

	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build system instruction: %w", err)
	}

	system := buf.String()
	system = ReplaceVars(system, char.Name, userName)
	system = strings.ReplaceAll(system, "{{now}}", b.nowFunc().Format(time.RFC3339))
	return system, nil
}

// historyTurns maps the most recent window of messages to model turns.
// A trailing user message is dropped: it comes back as the final turn so
// the jailbreak can be injected at exactly that position.
func (b *Builder) historyTurns(history []types.Message) []*genai.Content {
	if len(history) > b.window {
		history = history[len(history)-b.window:]
	}
	if n := len(history); n > 0 && history[n-1].Role == types.RoleUser {
		history = history[:n-1]
	}

	turns := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == types.RoleAI {
			role = "model"
		}
		turns = append(turns, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	return turns
}

// finalTurn carries attachments first, then the jailbreak-prefixed or
// plain user text.
func (b *Builder) finalTurn(ctx BuildContext) *genai.Content {
	var parts []*genai.Part
	for _, att := range ctx.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mimeType, Data: att.Data},
		})
	}

	text := ctx.UserText
	if b.jailbreakPosition == config.JailbreakBeforeLastTurn && b.jailbreakText != "" {
		text = b.jailbreakText + "\n" + text
	}
	if text != "" {
		parts = append(parts, &genai.Part{Text: text})
	}

	return &genai.Content{Role: "user", Parts: parts}
}
