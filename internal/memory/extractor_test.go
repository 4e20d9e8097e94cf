package memory

import (
	"context"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"github.com/easeaico/project-dear/internal/llm"
	"github.com/easeaico/project-dear/internal/types"
)

type fakeCompleter struct {
	reply string
	calls int
}

func (f *fakeCompleter) CompleteText(context.Context, string, []*genai.Content, llm.GenerationConfig) (string, error) {
	f.calls++
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

type fakeBank struct {
	items []*types.MemoryItem
}

func (f *fakeBank) ExistsText(_ context.Context, _ string, text string) (bool, error) {
	for _, item := range f.items {
		if item.Text == text {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBank) Append(_ context.Context, item *types.MemoryItem) error {
	f.items = append(f.items, item)
	return nil
}

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.EmbedDocument(context.Background(), text)
}

func (f *fakeEmbedder) EmbedDocument(context.Context, string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func chatWindow(n int) []types.Message {
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

func TestShouldExtract(t *testing.T) {
	cases := []struct {
		count int
		want  bool
	}{
		{0, false},
		{3, false},
		{4, false},
		{6, true},
		{7, false},
		{12, true},
		{18, true},
	}
	for _, tc := range cases {
		if got := ShouldExtract(tc.count); got != tc.want {
			t.Errorf("ShouldExtract(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestExtractStoresFacts(t *testing.T) {
	completer := &fakeCompleter{reply: `[
		{"category": "偏好", "text": "她喜欢抹茶拿铁"},
		{"category": "", "text": "她下周要考试"}
	]`}
	bank := &fakeBank{}
	extractor := NewExtractor(completer, &fakeHistory{count: 6, window: chatWindow(6)}, bank, &fakeEmbedder{}, llm.GenerationConfig{})

	stored, err := extractor.Extract(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored != 2 || len(bank.items) != 2 {
		t.Fatalf("expected 2 stored facts, got %d (%d in bank)", stored, len(bank.items))
	}
	if bank.items[0].Category != "偏好" {
		t.Errorf("expected category kept, got %q", bank.items[0].Category)
	}
	if bank.items[1].Category != defaultCategory {
		t.Errorf("expected default category, got %q", bank.items[1].Category)
	}
	if len(bank.items[0].Embedding) == 0 {
		t.Error("expected embedding attached")
	}
}

func TestExtractTruncatesToCap(t *testing.T) {
	completer := &fakeCompleter{reply: `[
		{"text": "a"}, {"text": "b"}, {"text": "c"}, {"text": "d"}, {"text": "e"}
	]`}
	bank := &fakeBank{}
	extractor := NewExtractor(completer, &fakeHistory{window: chatWindow(6)}, bank, nil, llm.GenerationConfig{})

	stored, err := extractor.Extract(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored != maxFactsPerRun {
		t.Fatalf("expected %d facts, got %d", maxFactsPerRun, stored)
	}
}

func TestExtractDeduplicatesByText(t *testing.T) {
	completer := &fakeCompleter{reply: `[{"category": "偏好", "text": "她喜欢抹茶拿铁"}]`}
	bank := &fakeBank{items: []*types.MemoryItem{{ChatID: "chat-1", Text: "她喜欢抹茶拿铁"}}}
	extractor := NewExtractor(completer, &fakeHistory{window: chatWindow(6)}, bank, nil, llm.GenerationConfig{})

	stored, err := extractor.Extract(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored != 0 || len(bank.items) != 1 {
		t.Fatalf("duplicate must not be stored again, stored=%d bank=%d", stored, len(bank.items))
	}
}

func TestExtractRejectsMalformedReply(t *testing.T) {
	for _, reply := range []string{
		"抱歉，我不知道该提取什么。",
		`{"category": "x", "text": "not an array"}`,
		`[{"category": 3, "text": 5}]`,
	} {
		completer := &fakeCompleter{reply: reply}
		bank := &fakeBank{}
		extractor := NewExtractor(completer, &fakeHistory{window: chatWindow(6)}, bank, nil, llm.GenerationConfig{})
		if _, err := extractor.Extract(context.Background(), "chat-1"); err == nil {
			t.Errorf("expected error for reply %q", reply)
		}
		if len(bank.items) != 0 {
			t.Errorf("nothing must be stored for reply %q", reply)
		}
	}
}

func TestExtractSurvivesEmbeddingFailure(t *testing.T) {
	completer := &fakeCompleter{reply: `[{"text": "她养了一只猫"}]`}
	bank := &fakeBank{}
	extractor := NewExtractor(completer, &fakeHistory{window: chatWindow(6)}, bank, &fakeEmbedder{fail: true}, llm.GenerationConfig{})

	stored, err := extractor.Extract(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored != 1 || len(bank.items[0].Embedding) != 0 {
		t.Fatalf("fact must be stored without embedding, stored=%d", stored)
	}
}

func TestMaybeExtractHonorsTrigger(t *testing.T) {
	completer := &fakeCompleter{reply: `[]`}
	extractor := NewExtractor(completer, &fakeHistory{count: 5, window: chatWindow(5)}, &fakeBank{}, nil, llm.GenerationConfig{})

	extractor.MaybeExtract(context.Background(), "chat-1")
	if completer.calls != 0 {
		t.Fatalf("no extraction expected off-trigger, got %d calls", completer.calls)
	}

	extractor = NewExtractor(completer, &fakeHistory{count: 12, window: chatWindow(12)}, &fakeBank{}, nil, llm.GenerationConfig{})
	extractor.MaybeExtract(context.Background(), "chat-1")
	if completer.calls != 1 {
		t.Fatalf("extraction expected on trigger, got %d calls", completer.calls)
	}
}
