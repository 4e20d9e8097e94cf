// Package moment detects special, remember-worthy events in conversations
// and records them in an append-only log.
package moment

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
	// Detection fires on every detectInterval-th message, at most
	// dailyMomentCap times per character per day.
	detectInterval = 8
	dailyMomentCap = 3

	detectWindow = 8

	markerMoment = "moment"
)

// detectorInstruction 要求模型仅返回符合结构的 JSON。
const detectorInstruction = `你是一个特殊时刻识别器。阅读下面的聊天记录，判断其中是否出现了值得纪念的特殊时刻。

特殊时刻包括：第一次告白、重要约定、深度敞开心扉、关系的转折点、令人难忘的共同经历。
日常寒暄和普通聊天不算特殊时刻。

已记录过的时刻（不要重复识别相似的）：
%s

只返回 JSON 对象，不要输出其他内容：
{"special": true/false, "title": "简短标题", "emoji": "一个表情", "description": "一两句描述"}
special 为 false 时其余字段留空。`

// ChatHistory is the message access the detector needs.
type ChatHistory interface {
	CountMessages(ctx context.Context, chatID string) (int, error)
	RecentMessages(ctx context.Context, chatID string, limit int) ([]types.Message, error)
}

// MomentLog is the append-only moment store.
type MomentLog interface {
	Append(ctx context.Context, moment *types.Moment) error
	ListByCharacter(ctx context.Context, characterID string) ([]types.Moment, error)
}

// Completer is the single LLM operation the detector needs.
type Completer interface {
	CompleteText(ctx context.Context, system string, turns []*genai.Content, cfg llm.GenerationConfig) (string, error)
}

// Markers tracks the daily detection cap.
type Markers interface {
	CountToday(ctx context.Context, feature, scope string) (int, error)
	MarkToday(ctx context.Context, feature, scope string) error
}

type verdict struct {
	Special     bool   `json:"special"`
	Title       string `json:"title"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
}

// Detector scans recent turns for special moments. Failures are logged and
// swallowed: detection is background enrichment.
type Detector struct {
	completer Completer
	history   ChatHistory
	log       MomentLog
	markers   Markers
	genConfig llm.GenerationConfig
	schema    *jsonschema.Resolved
	nowFunc   func() time.Time

	// OnMoment is invoked after a new moment is recorded. May be nil.
	OnMoment func(moment *types.Moment)
}

// NewDetector returns a moment detector.
func NewDetector(completer Completer, history ChatHistory, log MomentLog, markers Markers, genConfig llm.GenerationConfig) *Detector {
	return &Detector{
		completer: completer,
		history:   history,
		log:       log,
		markers:   markers,
		genConfig: genConfig,
		schema:    verdictSchema(),
		nowFunc:   time.Now,
	}
}

func verdictSchema() *jsonschema.Resolved {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"special":     {Type: "boolean"},
			"title":       {Type: "string"},
			"emoji":       {Type: "string"},
			"description": {Type: "string"},
		},
		Required: []string{"special"},
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("invalid verdict schema: %v", err))
	}
	return resolved
}

// ShouldDetect reports whether the message count triggers detection.
func ShouldDetect(messageCount int) bool {
	return messageCount > 0 && messageCount%detectInterval == 0
}

// MaybeDetect runs a detection pass when the chat's message count hits the
// trigger and the daily cap has room. Called after every completed AI reply.
func (d *Detector) MaybeDetect(ctx context.Context, characterID, chatID string) {
	if d == nil || d.completer == nil {
		return
	}
	count, err := d.history.CountMessages(ctx, chatID)
	if err != nil {
		slog.Warn("failed to count messages for moment detection", "chat", chatID, "error", err.Error())
		return
	}
	if !ShouldDetect(count) {
		return
	}
	today, err := d.markers.CountToday(ctx, markerMoment, characterID)
	if err != nil {
		slog.Warn("failed to read moment cap", "character", characterID, "error", err.Error())
		return
	}
	if today >= dailyMomentCap {
		return
	}
	if _, err := d.Detect(ctx, characterID, chatID); err != nil {
		slog.Debug("moment detection failed", "chat", chatID, "error", err.Error())
	}
}

// Detect runs one detection pass and returns the recorded moment, or nil
// when nothing special happened.
func (d *Detector) Detect(ctx context.Context, characterID, chatID string) (*types.Moment, error) {
	window, err := d.history.RecentMessages(ctx, chatID, detectWindow)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, nil
	}

	existing, err := d.log.ListByCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}

	instruction := fmt.Sprintf(detectorInstruction, existingTitles(existing))
	reply, err := d.completer.CompleteText(ctx, instruction, []*genai.Content{
		genai.NewContentFromText(transcript(window), "user"),
	}, d.genConfig)
	if err != nil {
		return nil, err
	}

	v, err := d.parseVerdict(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to parse moment verdict: %w", err)
	}
	// A parsed verdict consumes the daily budget whether or not it found
	// anything, so uneventful days cannot trigger unbounded detection.
	if err := d.markers.MarkToday(ctx, markerMoment, characterID); err != nil {
		slog.Warn("failed to record moment cap", "character", characterID, "error", err.Error())
	}
	if !v.Special {
		return nil, nil
	}
	title := strings.TrimSpace(v.Title)
	if title == "" {
		return nil, fmt.Errorf("special moment without a title")
	}
	for _, m := range existing {
		if m.Title == title {
			return nil, nil
		}
	}

	moment := &types.Moment{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		Title:       title,
		Emoji:       strings.TrimSpace(v.Emoji),
		Description: strings.TrimSpace(v.Description),
		Timestamp:   d.nowFunc(),
	}
	if err := d.log.Append(ctx, moment); err != nil {
		return nil, err
	}
	slog.Info("moment recorded", "character", characterID, "title", title)
	if d.OnMoment != nil {
		d.OnMoment(moment)
	}
	return moment, nil
}

// parseVerdict extracts the JSON object from the reply and validates it
// before decoding, so off-schema replies are rejected wholesale.
func (d *Detector) parseVerdict(reply string) (verdict, error) {
	raw, ok := llm.ExtractJSON(reply)
	if !ok {
		return verdict{}, fmt.Errorf("no json payload in model output")
	}

	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return verdict{}, err
	}
	if err := d.schema.Validate(generic); err != nil {
		return verdict{}, fmt.Errorf("verdict rejected by schema: %w", err)
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return verdict{}, err
	}
	return v, nil
}

func existingTitles(moments []types.Moment) string {
	if len(moments) == 0 {
		return "（暂无）"
	}
	titles := make([]string, 0, len(moments))
	for _, m := range moments {
		titles = append(titles, "- "+m.Title)
	}
	return strings.Join(titles, "\n")
}

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
