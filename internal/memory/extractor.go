package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/llm"
	"github.com/easeaico/project-dear/internal/types"
)

const (
	// Extraction fires on every extractInterval-th message once the chat
	// has at least extractMinMessages.
	extractInterval    = 6
	extractMinMessages = 4

	extractWindow   = 12
	maxFactsPerRun  = 3
	defaultCategory = "其他"
)

// extractorInstruction 要求模型仅返回符合结构的 JSON。
const extractorInstruction = `你是一个对话记忆提取器。阅读下面的聊天记录，提取值得长期记住的用户事实。

提取范围：
1. 用户透露的个人信息（姓名、职业、生日、住处等）
2. 明确的偏好与厌恶
3. 重要的事件、计划或约定
4. 对双方关系有意义的时刻

输出要求：
- 只返回 JSON 数组，不要输出其他内容
- 每项形如 {"category": "分类", "text": "一句话事实"}
- 最多 3 项；没有值得记住的内容时返回 []
- text 用第三人称、简短完整的一句话`

// ChatHistory is the message access the extractor needs.
type ChatHistory interface {
	CountMessages(ctx context.Context, chatID string) (int, error)
	RecentMessages(ctx context.Context, chatID string, limit int) ([]types.Message, error)
}

// MemoryBank is the durable fact store.
type MemoryBank interface {
	ExistsText(ctx context.Context, chatID, text string) (bool, error)
	Append(ctx context.Context, item *types.MemoryItem) error
}

// Completer is the single LLM operation the extractor needs.
type Completer interface {
	CompleteText(ctx context.Context, system string, turns []*genai.Content, cfg llm.GenerationConfig) (string, error)
}

type extractedFact struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Extractor mines recent turns for durable facts. All failures are logged
// and swallowed: extraction is background enrichment.
type Extractor struct {
	completer Completer
	history   ChatHistory
	bank      MemoryBank
	embedder  Embedder // may be nil
	genConfig llm.GenerationConfig
	schema    *jsonschema.Resolved
	nowFunc   func() time.Time
}

// NewExtractor returns a memory extractor.
func NewExtractor(completer Completer, history ChatHistory, bank MemoryBank, embedder Embedder, genConfig llm.GenerationConfig) *Extractor {
	return &Extractor{
		completer: completer,
		history:   history,
		bank:      bank,
		embedder:  embedder,
		genConfig: genConfig,
		schema:    factListSchema(),
		nowFunc:   time.Now,
	}
}

func factListSchema() *jsonschema.Resolved {
	schema := &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"category": {Type: "string"},
				"text":     {Type: "string"},
			},
			Required: []string{"text"},
		},
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("invalid fact schema: %v", err))
	}
	return resolved
}

// ShouldExtract reports whether the message count triggers extraction.
func ShouldExtract(messageCount int) bool {
	return messageCount >= extractMinMessages && messageCount%extractInterval == 0
}

// MaybeExtract runs an extraction pass when the chat's message count hits
// the trigger. Called after every completed AI reply.
func (e *Extractor) MaybeExtract(ctx context.Context, chatID string) {
	if e == nil || e.completer == nil {
		return
	}
	count, err := e.history.CountMessages(ctx, chatID)
	if err != nil {
		slog.Warn("failed to count messages for extraction", "chat", chatID, "error", err.Error())
		return
	}
	if !ShouldExtract(count) {
		return
	}
	if _, err := e.Extract(ctx, chatID); err != nil {
		slog.Debug("memory extraction failed", "chat", chatID, "error", err.Error())
	}
}

// Extract mines the recent window once and returns how many new facts were
// stored.
func (e *Extractor) Extract(ctx context.Context, chatID string) (int, error) {
	window, err := e.history.RecentMessages(ctx, chatID, extractWindow)
	if err != nil {
		return 0, err
	}
	if len(window) == 0 {
		return 0, nil
	}

	reply, err := e.completer.CompleteText(ctx, extractorInstruction, []*genai.Content{
		genai.NewContentFromText(transcript(window), "user"),
	}, e.genConfig)
	if err != nil {
		return 0, err
	}

	facts, err := e.parseFacts(reply)
	if err != nil {
		return 0, err
	}
	if len(facts) > maxFactsPerRun {
		facts = facts[:maxFactsPerRun]
	}

	stored := 0
	for _, fact := range facts {
		text := strings.TrimSpace(fact.Text)
		if text == "" {
			continue
		}
		exists, err := e.bank.ExistsText(ctx, chatID, text)
		if err != nil {
			slog.Warn("failed to check memory duplicate", "chat", chatID, "error", err.Error())
			continue
		}
		if exists {
			continue
		}

		category := strings.TrimSpace(fact.Category)
		if category == "" {
			category = defaultCategory
		}

		item := &types.MemoryItem{
			ID:        uuid.NewString(),
			ChatID:    chatID,
			Category:  category,
			Text:      text,
			CreatedAt: e.nowFunc(),
		}
		if e.embedder != nil {
			// Best effort: a fact without a vector still recalls by listing.
			embedding, err := e.embedder.EmbedDocument(ctx, text)
			if err != nil {
				slog.Warn("failed to embed memory item", "chat", chatID, "error", err.Error())
			} else {
				item.Embedding = embedding
			}
		}
		if err := e.bank.Append(ctx, item); err != nil {
			slog.Warn("failed to store memory item", "chat", chatID, "error", err.Error())
			continue
		}
		stored++
	}
	return stored, nil
}

// parseFacts decodes and schema-validates the model reply.
func (e *Extractor) parseFacts(reply string) ([]extractedFact, error) {
	payload, ok := llm.ExtractJSON(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON payload in extraction reply")
	}

	var generic any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return nil, fmt.Errorf("failed to parse extraction reply: %w", err)
	}
	if err := e.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("extraction reply rejected by schema: %w", err)
	}

	var facts []extractedFact
	if err := json.Unmarshal([]byte(payload), &facts); err != nil {
		return nil, fmt.Errorf("failed to decode extraction facts: %w", err)
	}
	return facts, nil
}

// transcript renders a message window for judging.
func transcript(window []types.Message) string {
	var sb strings.Builder
	for _, msg := range window {
		speaker := "用户"
		if msg.Role == types.RoleAI {
			speaker = "角色"
		}
		sb.WriteString(speaker)
		sb.WriteString("：")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
