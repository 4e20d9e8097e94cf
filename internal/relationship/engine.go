package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/llm"
	"github.com/easeaico/project-dear/internal/types"
)

const (
	scoreCooldown    = 3 * time.Minute
	evalCooldown     = 2 * time.Hour
	dailyPositiveCap = 15

	markerScore = "rel_score"
)

const scorerInstruction = `你是恋爱关系评估器。阅读最近的对话，评估这几轮交流对双方关系的影响。
只返回一个 -3 到 3 之间的整数，不要输出其他内容：
+3 表示强烈的正面或亲密连接，0 表示平淡中性，-3 表示严重冲突或伤害。`

const evaluatorInstructionTmpl = `你是恋爱关系评估器。根据最近的对话判断：这段关系是否已经真正达到「%s」阶段？
只回答 yes 或 no，不要输出其他内容。`

// Completer is the single LLM operation the engine needs.
type Completer interface {
	CompleteText(ctx context.Context, system string, turns []*genai.Content, cfg llm.GenerationConfig) (string, error)
}

// StateRepo persists relationship state.
type StateRepo interface {
	Get(ctx context.Context, characterID string) (*types.RelationshipState, error)
	Put(ctx context.Context, state *types.RelationshipState) error
}

// Markers tracks the daily positive-score budget.
type Markers interface {
	IncrToday(ctx context.Context, feature, scope string, n int) (int, error)
	CountToday(ctx context.Context, feature, scope string) (int, error)
}

// Engine applies the two-phase scoring/level-up protocol. Every failure is
// swallowed: relationship progression is best-effort enrichment and must
// never surface errors to the conversation.
type Engine struct {
	completer Completer
	states    StateRepo
	markers   Markers
	genConfig llm.GenerationConfig
	nowFunc   func() time.Time

	// OnLevelUp is invoked after a successful promotion. May be nil.
	OnLevelUp func(state *types.RelationshipState)
}

// NewEngine returns a relationship engine.
func NewEngine(completer Completer, states StateRepo, markers Markers, genConfig llm.GenerationConfig) *Engine {
	return &Engine{
		completer: completer,
		states:    states,
		markers:   markers,
		genConfig: genConfig,
		nowFunc:   time.Now,
	}
}

// NewState returns the initial relationship state for a character.
func NewState(characterID, initialLevel string, now time.Time) *types.RelationshipState {
	if Index(initialLevel) < 0 {
		initialLevel = LevelStranger
	}
	return &types.RelationshipState{
		CharacterID: characterID,
		Level:       initialLevel,
		Score:       0,
		FirstMetAt:  now,
	}
}

// ScoreConversation rates the recent turns and applies the delta, then
// attempts a level-up. Called after every completed AI reply.
func (e *Engine) ScoreConversation(ctx context.Context, characterID string, recent []types.Message) {
	if e == nil || e.completer == nil || e.states == nil {
		return
	}
	now := e.nowFunc()

	state, err := e.states.Get(ctx, characterID)
	if err != nil || state == nil {
		return
	}
	if now.Sub(state.LastScoreAt) < scoreCooldown {
		return
	}
	used, err := e.markers.CountToday(ctx, markerScore, characterID)
	if err != nil {
		slog.Warn("failed to read score budget", "character", characterID, "error", err.Error())
		return
	}
	if used >= dailyPositiveCap {
		// Budget exhausted: no more scoring calls today.
		return
	}

	// The cooldown advances no matter how the call ends. Throttle over
	// retry: a failing model must not be hammered every reply.
	state.LastScoreAt = now
	if err := e.states.Put(ctx, state); err != nil {
		return
	}

	reply, err := e.completer.CompleteText(ctx, scorerInstruction, transcriptTurns(recent), e.genConfig)
	if err != nil {
		slog.Debug("relationship scoring failed", "character", characterID, "error", err.Error())
		return
	}
	delta, err := ParseDelta(reply)
	if err != nil {
		slog.Debug("relationship scoring unparseable", "character", characterID, "reply", reply)
		return
	}

	applied := delta
	if delta > 0 {
		if remaining := dailyPositiveCap - used; delta > remaining {
			applied = remaining
		}
		if _, err := e.markers.IncrToday(ctx, markerScore, characterID, applied); err != nil {
			slog.Warn("failed to record score budget", "character", characterID, "error", err.Error())
		}
	}

	// Re-read before mutating: other enrichments may have written since.
	fresh, err := e.states.Get(ctx, characterID)
	if err != nil || fresh == nil {
		return
	}
	fresh.Score += applied
	if fresh.Score < 0 {
		fresh.Score = 0
	}
	fresh.LastScoreAt = now
	if err := e.states.Put(ctx, fresh); err != nil {
		return
	}

	e.tryLevelUp(ctx, fresh, recent)
}

// tryLevelUp runs the qualitative gate once the quantitative gates hold.
func (e *Engine) tryLevelUp(ctx context.Context, state *types.RelationshipState, recent []types.Message) {
	next, ok := Next(state.Level)
	if !ok {
		return
	}
	gate := Gates[next]
	now := e.nowFunc()

	days := int(now.Sub(state.FirstMetAt).Hours() / 24)
	if state.Score < gate.MinScore || days < gate.MinDays {
		return
	}
	if now.Sub(state.LastEvalAt) < evalCooldown {
		return
	}

	// Unconditional: a "no" or a failure must not be retried every turn.
	state.LastEvalAt = now
	if err := e.states.Put(ctx, state); err != nil {
		return
	}

	instruction := fmt.Sprintf(evaluatorInstructionTmpl, Label(next))
	reply, err := e.completer.CompleteText(ctx, instruction, transcriptTurns(recent), e.genConfig)
	if err != nil {
		slog.Debug("relationship evaluation failed", "character", state.CharacterID, "error", err.Error())
		return
	}
	verdict, err := ParseVerdict(reply)
	if err != nil || !verdict {
		return
	}

	fresh, err := e.states.Get(ctx, state.CharacterID)
	if err != nil || fresh == nil {
		return
	}
	// One step at a time, and only from the level we evaluated.
	if fresh.Level != state.Level {
		return
	}
	fresh.Level = next
	fresh.LastEvalAt = now
	if err := e.states.Put(ctx, fresh); err != nil {
		return
	}
	slog.Info("relationship level up", "character", fresh.CharacterID, "level", next, "score", fresh.Score)
	if e.OnLevelUp != nil {
		e.OnLevelUp(fresh)
	}
}

// ParseDelta extracts the first signed integer from a scoring reply and
// clamps it to the -3..3 scale.
func ParseDelta(reply string) (int, error) {
	reply = strings.TrimSpace(reply)
	start := -1
	for i, r := range reply {
		if unicode.IsDigit(r) || r == '-' || r == '+' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, fmt.Errorf("no integer in scoring reply")
	}
	end := start + 1
	for end < len(reply) && reply[end] >= '0' && reply[end] <= '9' {
		end++
	}
	delta, err := strconv.Atoi(strings.TrimPrefix(reply[start:end], "+"))
	if err != nil {
		return 0, fmt.Errorf("failed to parse scoring reply: %w", err)
	}
	switch {
	case delta > 3:
		return 3, nil
	case delta < -3:
		return -3, nil
	default:
		return delta, nil
	}
}

// ParseVerdict reads a strict yes/no evaluation reply.
func ParseVerdict(reply string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, "。.!！ \"'")
	switch {
	case strings.HasPrefix(normalized, "yes") || strings.HasPrefix(normalized, "是"):
		return true, nil
	case strings.HasPrefix(normalized, "no") || strings.HasPrefix(normalized, "否") || strings.HasPrefix(normalized, "不"):
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized verdict: %s", reply)
	}
}

// transcriptTurns renders recent messages as one user turn for judging.
func transcriptTurns(recent []types.Message) []*genai.Content {
	var sb strings.Builder
	for _, msg := range recent {
		speaker := "用户"
		if msg.Role == types.RoleAI {
			speaker = "角色"
		}
		sb.WriteString(speaker)
		sb.WriteString("：")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return []*genai.Content{genai.NewContentFromText(sb.String(), "user")}
}
