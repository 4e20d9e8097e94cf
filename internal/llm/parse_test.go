package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONPlainObject(t *testing.T) {
	got, ok := ExtractJSON(`{"reply":"你好"}`)
	if !ok {
		t.Fatal("expected payload")
	}
	if got != `{"reply":"你好"}` {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestExtractJSONWithFencesAndProse(t *testing.T) {
	raw := "Here you go:\n```json\n{\"items\":[1,2]}\n```\nhope it helps"
	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected payload")
	}
	var parsed struct {
		Items []int `json:"items"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("payload does not parse: %v", err)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("unexpected items: %#v", parsed.Items)
	}
}

func TestExtractJSONArrayBeforeObject(t *testing.T) {
	got, ok := ExtractJSON(`[{"a":1},{"a":2}]`)
	if !ok {
		t.Fatal("expected payload")
	}
	if got[0] != '[' || got[len(got)-1] != ']' {
		t.Fatalf("expected array payload, got %s", got)
	}
}

func TestExtractJSONNoPayload(t *testing.T) {
	if _, ok := ExtractJSON("好的，没有需要记录的内容。"); ok {
		t.Fatal("expected no payload")
	}
}

func TestDecodeJSONTruncated(t *testing.T) {
	var v map[string]any
	if err := DecodeJSON(`{"title":"first da`, &v); err == nil {
		t.Fatal("expected error for truncated json")
	}
}

// FuzzExtractJSON checks the tolerant parser never panics and that any
// reported payload at least begins and ends with matching brackets.
func FuzzExtractJSON(f *testing.F) {
	f.Add(`{"a":1}`)
	f.Add("```json\n[1,2,3]\n```")
	f.Add("prefix {\"a\": \"}\"} suffix")
	f.Add("{{{]]")
	f.Add("")
	f.Fuzz(func(t *testing.T, raw string) {
		payload, ok := ExtractJSON(raw)
		if !ok {
			return
		}
		if len(payload) < 2 {
			t.Fatalf("payload too short: %q", payload)
		}
		first, last := payload[0], payload[len(payload)-1]
		if !(first == '{' && last == '}') && !(first == '[' && last == ']') {
			t.Fatalf("unbalanced payload: %q", payload)
		}
	})
}
