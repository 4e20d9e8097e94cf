package engine

import "testing"

func TestStylerAppliesRulesInOrder(t *testing.T) {
	styler := NewStyler([]string{
		`\*[^*]*\*=>`,
		`！{2,}=>！`,
	}, nil)
	got := styler.Apply("*微微一笑* 好呀！！！")
	if got != "好呀！" {
		t.Fatalf("unexpected styled text: %q", got)
	}
}

func TestStylerSkipsMalformedRules(t *testing.T) {
	styler := NewStyler([]string{
		"no separator",
		`([bad=>x`,
		`foo=>bar`,
	}, nil)
	if got := styler.Apply("foo"); got != "bar" {
		t.Fatalf("valid rule must survive malformed neighbors, got %q", got)
	}
}

func TestStylerStripsForbiddenPhrasesBeforeRules(t *testing.T) {
	styler := NewStyler([]string{`，{2,}=>，`}, []string{"作为一个AI", "  "})
	got := styler.Apply("作为一个AI，，我觉得今天天气不错")
	if got != "，我觉得今天天气不错" {
		t.Fatalf("unexpected styled text: %q", got)
	}
}

func TestNilStylerPassesThrough(t *testing.T) {
	var styler *Styler
	if got := styler.Apply("原样"); got != "原样" {
		t.Fatalf("unexpected: %q", got)
	}
}
