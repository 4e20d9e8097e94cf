package lorebook

import (
	"reflect"
	"testing"

	"github.com/easeaico/project-dear/internal/types"
)

func entry(content string, order int) types.LorebookEntry {
	return types.LorebookEntry{
		Enabled:        true,
		Content:        content,
		Keys:           []string{"晚餐"},
		InsertionOrder: &order,
	}
}

func unordered(content string) types.LorebookEntry {
	return types.LorebookEntry{
		Enabled: true,
		Content: content,
		Keys:    []string{"晚餐"},
	}
}

func TestConstantAlwaysIncluded(t *testing.T) {
	entries := []types.LorebookEntry{
		{Enabled: true, Constant: true, Content: "世界观：架空的海边小镇。"},
	}
	got := Resolve(entries, "完全无关的输入")
	if !reflect.DeepEqual(got, []string{"世界观：架空的海边小镇。"}) {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestDisabledNeverIncluded(t *testing.T) {
	entries := []types.LorebookEntry{
		{Enabled: false, Constant: true, Content: "a"},
		{Enabled: false, Keys: []string{"晚餐"}, Content: "b"},
	}
	if got := Resolve(entries, "今天晚餐吃什么"); len(got) != 0 {
		t.Fatalf("expected nothing, got %#v", got)
	}
}

func TestSortedByInsertionOrder(t *testing.T) {
	entries := []types.LorebookEntry{
		entry("third", 200),
		unordered("second"), // nil order defaults to 100
		entry("first", 0),   // explicit 0 sorts ahead of the default
	}
	got := Resolve(entries, "约好一起吃晚餐")
	if !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Fatalf("unexpected order: %#v", got)
	}
}

func TestCaseSensitivityPerEntry(t *testing.T) {
	entries := []types.LorebookEntry{
		{Enabled: true, Keys: []string{"Tokyo"}, CaseSensitive: true, Content: "strict"},
		{Enabled: true, Keys: []string{"Tokyo"}, Content: "loose"},
	}
	got := Resolve(entries, "we talked about tokyo tower")
	if !reflect.DeepEqual(got, []string{"loose"}) {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestSelectiveRequiresSecondaryWhenPresent(t *testing.T) {
	withSecondary := types.LorebookEntry{
		Enabled:       true,
		Selective:     true,
		Keys:          []string{"生日"},
		SecondaryKeys: []string{"蛋糕"},
		Content:       "secondary-gated",
	}
	degraded := types.LorebookEntry{
		Enabled:   true,
		Selective: true,
		Keys:      []string{"生日"},
		Content:   "primary-only",
	}

	got := Resolve([]types.LorebookEntry{withSecondary, degraded}, "我的生日快到了")
	if !reflect.DeepEqual(got, []string{"primary-only"}) {
		t.Fatalf("unexpected result: %#v", got)
	}

	got = Resolve([]types.LorebookEntry{withSecondary}, "生日要不要买个蛋糕")
	if !reflect.DeepEqual(got, []string{"secondary-gated"}) {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestNoMatchYieldsEmpty(t *testing.T) {
	if got := Resolve([]types.LorebookEntry{entry("x", 1)}, "早上好"); len(got) != 0 {
		t.Fatalf("expected empty, got %#v", got)
	}
}
