package segment

import (
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSplitParagraphBlocks(t *testing.T) {
	got := Split("A\n\nB\n\nC")
	if !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected bubbles: %#v", got)
	}
}

func TestSplitCapsAtSix(t *testing.T) {
	got := Split("a\n\nb\n\nc\n\nd\n\ne\n\nf\n\ng")
	if len(got) != 6 {
		t.Fatalf("expected 6 bubbles, got %d: %#v", len(got), got)
	}
}

func TestSplitShortSentenceStaysWhole(t *testing.T) {
	text := strings.Repeat("短", 39) + "。"
	got := Split(text)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("expected single bubble, got %#v", got)
	}
}

func TestSplitSingleLines(t *testing.T) {
	got := Split("今天去了海边。\n风很大。")
	if !reflect.DeepEqual(got, []string{"今天去了海边。", "风很大。"}) {
		t.Fatalf("unexpected bubbles: %#v", got)
	}
}

func TestSplitLongLineResplitsOnSentences(t *testing.T) {
	long := strings.Repeat("然后我们走了很久很久的路一直在说话！", 4)
	got := Split("第一行很短\n" + long)
	if len(got) < 3 {
		t.Fatalf("expected long line to be re-split, got %#v", got)
	}
	if got[0] != "第一行很短" {
		t.Fatalf("unexpected first bubble: %q", got[0])
	}
}

func TestSplitSentencePacking(t *testing.T) {
	// Four 13-rune sentences: greedy packing under the 50-rune budget
	// merges three and leaves the fourth.
	sentence := strings.Repeat("啊", 12) + "。"
	got := Split(strings.Repeat(sentence, 4))
	if len(got) != 2 {
		t.Fatalf("expected 2 bubbles, got %d: %#v", len(got), got)
	}
	if utf8.RuneCountInString(got[0]) != 39 {
		t.Fatalf("unexpected first chunk size: %d", utf8.RuneCountInString(got[0]))
	}
}

func TestSplitLossless(t *testing.T) {
	inputs := []string{
		"A\n\nB\n\nC",
		"今天去了海边。\n风很大。",
		"一句话而已",
		"下雨了！记得带伞～还有外套。",
	}
	for _, input := range inputs {
		joined := strings.Join(Split(input), "")
		want := strings.Join(strings.Fields(strings.ReplaceAll(input, "\n", " ")), "")
		gotNorm := strings.Join(strings.Fields(joined), "")
		if gotNorm != want {
			t.Fatalf("content lost for %q: %q", input, joined)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	if got := Split("   \n  "); got != nil {
		t.Fatalf("expected nil for blank input, got %#v", got)
	}
}

func TestBaseDelayMillis(t *testing.T) {
	if got := BaseDelayMillis(""); got != 300 {
		t.Fatalf("expected 300, got %d", got)
	}
	if got := BaseDelayMillis("abcd"); got != 300+55*4 {
		t.Fatalf("expected 520, got %d", got)
	}
	if got := BaseDelayMillis(strings.Repeat("长", 100)); got != 2200 {
		t.Fatalf("expected ceiling 2200, got %d", got)
	}
}

func TestPacerBounds(t *testing.T) {
	pacer := NewPacer()
	for i := 0; i < 100; i++ {
		d := pacer.BubbleDelay("hello")
		base := time.Duration(BaseDelayMillis("hello")) * time.Millisecond
		if d < base || d > base+200*time.Millisecond {
			t.Fatalf("bubble delay out of bounds: %v", d)
		}
		typing := pacer.TypingDuration()
		if typing < 100*time.Millisecond || typing > 600*time.Millisecond {
			t.Fatalf("typing duration out of bounds: %v", typing)
		}
	}
}
