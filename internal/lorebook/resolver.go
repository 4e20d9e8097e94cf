// Package lorebook resolves which world-info snippets apply to a message.
//
// Resolution is a pure function: entries from the global, character, and
// chat scopes are merged, filtered against the input text, and ordered by
// insertion order.
package lorebook

import (
	"sort"
	"strings"

	"github.com/easeaico/project-dear/internal/types"
)

// Resolve filters the merged entries against the latest user text and
// returns the matching contents sorted ascending by insertion order.
// Disabled entries never contribute. Constant entries always match.
func Resolve(entries []types.LorebookEntry, input string) []string {
	matched := make([]types.LorebookEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.Constant || matches(entry, input) {
			matched = append(matched, entry)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return order(matched[i]) < order(matched[j])
	})

	contents := make([]string, 0, len(matched))
	for _, entry := range matched {
		if entry.Content != "" {
			contents = append(contents, entry.Content)
		}
	}
	return contents
}

func matches(entry types.LorebookEntry, input string) bool {
	if !containsAnyKey(entry.Keys, input, entry.CaseSensitive) {
		return false
	}
	// Selective entries additionally require a secondary-key hit, degrading
	// to primary-only when no secondary keys are configured.
	if entry.Selective && len(entry.SecondaryKeys) > 0 {
		return containsAnyKey(entry.SecondaryKeys, input, entry.CaseSensitive)
	}
	return true
}

func containsAnyKey(keys []string, input string, caseSensitive bool) bool {
	haystack := input
	if !caseSensitive {
		haystack = strings.ToLower(input)
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		needle := key
		if !caseSensitive {
			needle = strings.ToLower(key)
		}
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func order(entry types.LorebookEntry) int {
	if entry.InsertionOrder == nil {
		return types.DefaultInsertionOrder
	}
	return *entry.InsertionOrder
}
