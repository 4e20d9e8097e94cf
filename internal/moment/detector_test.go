package moment

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/llm"
	"github.com/easeaico/project-dear/internal/types"
)

type fakeCompleter struct {
	reply   string
	calls   int
	systems []string
}

func (f *fakeCompleter) CompleteText(_ context.Context, system string, _ []*genai.Content, _ llm.GenerationConfig) (string, error) {
	f.calls++
	f.systems = append(f.systems, system)
	return f.reply, nil
}

type fakeHistory struct {
	count  int
	window []types.Message
}

func (f *fakeHistory) CountMessages(context.Context, string) (int, error) {
	return f.count, nil
}

func (f *fakeHistory) RecentMessages(_ context.Context, _ string, limit int) ([]types.Message, error) {
	if len(f.window) > limit {
		return f.window[len(f.window)-limit:], nil
	}
	return f.window, nil
}

type fakeLog struct {
	moments []types.Moment
}

func (f *fakeLog) Append(_ context.Context, moment *types.Moment) error {
	f.moments = append(f.moments, *moment)
	return nil
}

func (f *fakeLog) ListByCharacter(context.Context, string) ([]types.Moment, error) {
	return f.moments, nil
}

type fakeMarkers struct {
	counts map[string]int
}

func (f *fakeMarkers) CountToday(_ context.Context, feature, scope string) (int, error) {
	return f.counts[feature+"|"+scope], nil
}

func (f *fakeMarkers) MarkToday(_ context.Context, feature, scope string) error {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[feature+"|"+scope]++
	return nil
}

func window(n int) []types.Message {
	msgs := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAI
		}
		msgs = append(msgs, types.Message{Role: role, Content: fmt.Sprintf("msg %d", i)})
	}
	return msgs
}

func TestShouldDetect(t *testing.T) {
	cases := []struct {
		count int
		want  bool
	}{
		{0, false},
		{7, false},
		{8, true},
		{9, false},
		{16, true},
	}
	for _, tc := range cases {
		if got := ShouldDetect(tc.count); got != tc.want {
			t.Errorf("ShouldDetect(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestDetectRecordsSpecialMoment(t *testing.T) {
	completer := &fakeCompleter{reply: `{"special": true, "title": "第一次告白", "emoji": "💗", "description": "她终于说出了心里话。"}`}
	log := &fakeLog{}
	markers := &fakeMarkers{}
	detector := NewDetector(completer, &fakeHistory{window: window(8)}, log, markers, llm.GenerationConfig{})

	var observed *types.Moment
	detector.OnMoment = func(m *types.Moment) { observed = m }

	moment, err := detector.Detect(context.Background(), "char-1", "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if moment == nil || moment.Title != "第一次告白" || moment.Emoji != "💗" {
		t.Fatalf("unexpected moment: %#v", moment)
	}
	if len(log.moments) != 1 {
		t.Fatalf("expected 1 recorded moment, got %d", len(log.moments))
	}
	if observed == nil {
		t.Fatal("expected OnMoment callback")
	}
	if n, _ := markers.CountToday(context.Background(), markerMoment, "char-1"); n != 1 {
		t.Fatalf("expected cap marker incremented, got %d", n)
	}
}

func TestDetectNotSpecial(t *testing.T) {
	completer := &fakeCompleter{reply: `{"special": false, "title": "", "emoji": "", "description": ""}`}
	log := &fakeLog{}
	markers := &fakeMarkers{}
	detector := NewDetector(completer, &fakeHistory{window: window(8)}, log, markers, llm.GenerationConfig{})

	moment, err := detector.Detect(context.Background(), "char-1", "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if moment != nil || len(log.moments) != 0 {
		t.Fatal("nothing must be recorded for an ordinary window")
	}
	// The verdict parsed, so the day's budget is still consumed.
	if n, _ := markers.CountToday(context.Background(), markerMoment, "char-1"); n != 1 {
		t.Fatalf("false verdict must consume the daily budget, got %d", n)
	}
}

func TestDetectSkipsDuplicateTitle(t *testing.T) {
	completer := &fakeCompleter{reply: `{"special": true, "title": "第一次告白", "emoji": "💗", "description": "again"}`}
	log := &fakeLog{moments: []types.Moment{{CharacterID: "char-1", Title: "第一次告白"}}}
	markers := &fakeMarkers{}
	detector := NewDetector(completer, &fakeHistory{window: window(8)}, log, markers, llm.GenerationConfig{})

	moment, err := detector.Detect(context.Background(), "char-1", "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if moment != nil || len(log.moments) != 1 {
		t.Fatal("duplicate title must not be recorded again")
	}
	// Existing titles are shown to the model for semantic dedup too.
	if len(completer.systems) != 1 || !strings.Contains(completer.systems[0], "- 第一次告白") {
		t.Fatalf("existing titles missing from instruction:\n%s", completer.systems[0])
	}
}

func TestDetectRejectsOffSchemaVerdict(t *testing.T) {
	cases := []string{
		`{"special": "yes", "title": "第一次告白"}`,
		`["special", true]`,
		`{"title": "缺少判定字段"}`,
		`今天聊得很开心，但没有 JSON。`,
	}
	for _, reply := range cases {
		log := &fakeLog{}
		markers := &fakeMarkers{}
		detector := NewDetector(&fakeCompleter{reply: reply}, &fakeHistory{window: window(8)}, log, markers, llm.GenerationConfig{})
		if _, err := detector.Detect(context.Background(), "char-1", "chat-1"); err == nil {
			t.Errorf("reply %q must be rejected", reply)
		}
		if len(log.moments) != 0 {
			t.Errorf("reply %q must not record anything", reply)
		}
		// Parse failures do not consume the daily budget.
		if n, _ := markers.CountToday(context.Background(), markerMoment, "char-1"); n != 0 {
			t.Errorf("reply %q must not consume the daily budget, got %d", reply, n)
		}
	}
}

func TestMaybeDetectHonorsTriggerAndCap(t *testing.T) {
	completer := &fakeCompleter{reply: `{"special": false}`}
	markers := &fakeMarkers{}
	detector := NewDetector(completer, &fakeHistory{count: 7, window: window(7)}, &fakeLog{}, markers, llm.GenerationConfig{})

	detector.MaybeDetect(context.Background(), "char-1", "chat-1")
	if completer.calls != 0 {
		t.Fatalf("no detection expected off-trigger, got %d calls", completer.calls)
	}

	detector = NewDetector(completer, &fakeHistory{count: 16, window: window(16)}, &fakeLog{}, markers, llm.GenerationConfig{})
	detector.MaybeDetect(context.Background(), "char-1", "chat-1")
	if completer.calls != 1 {
		t.Fatalf("detection expected on trigger, got %d calls", completer.calls)
	}
	// Even a false verdict consumes one unit of the daily budget.
	if n, _ := markers.CountToday(context.Background(), markerMoment, "char-1"); n != 1 {
		t.Fatalf("expected budget consumed by false verdict, got %d", n)
	}

	markers.counts = map[string]int{markerMoment + "|char-1": dailyMomentCap}
	detector.MaybeDetect(context.Background(), "char-1", "chat-1")
	if completer.calls != 1 {
		t.Fatalf("detection must stop at the daily cap, got %d calls", completer.calls)
	}
}
