// Package segment chops one model reply into short chat bubbles with
// human-feeling pacing.
package segment

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxBubbles caps how many bubbles one reply may produce.
	MaxBubbles = 6

	shortLineRunes  = 60
	packBudgetRunes = 50
)

// terminalRunes end a sentence for splitting purposes.
var terminalRunes = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'…': true,
	'～': true,
}

// Split returns 1 to 6 non-empty bubbles for a reply. The first tier that
// yields at least two parts wins: blank-line blocks, then single lines with
// long lines re-split on sentence punctuation, then sentence packing over
// the whole text.
func Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	// Tier 1: paragraph blocks separated by 2+ newlines.
	if blocks := splitBlocks(trimmed); len(blocks) >= 2 {
		return cap6(blocks)
	}

	// Tier 2: single newlines, long lines re-split on sentence ends.
	lines := nonEmptyLines(trimmed)
	if len(lines) >= 2 {
		var bubbles []string
		for _, line := range lines {
			if utf8.RuneCountInString(line) <= shortLineRunes {
				bubbles = append(bubbles, line)
				continue
			}
			bubbles = append(bubbles, packSentences(splitSentences(line))...)
		}
		return cap6(bubbles)
	}

	// Tier 3: one block, no newlines.
	bubbles := packSentences(splitSentences(trimmed))
	if len(bubbles) == 0 {
		bubbles = []string{trimmed}
	}
	return cap6(bubbles)
}

func splitBlocks(text string) []string {
	var blocks []string
	var current strings.Builder
	newlines := 0
	flush := func() {
		if block := strings.TrimSpace(current.String()); block != "" {
			blocks = append(blocks, block)
		}
		current.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			newlines++
			if newlines >= 2 {
				flush()
				continue
			}
		} else {
			newlines = 0
		}
		current.WriteRune(r)
	}
	flush()
	return blocks
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitSentences cuts text after runs of terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	inTerminal := false
	for _, r := range text {
		if terminalRunes[r] {
			current.WriteRune(r)
			inTerminal = true
			continue
		}
		if inTerminal {
			if sentence := strings.TrimSpace(current.String()); sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
			inTerminal = false
		}
		current.WriteRune(r)
	}
	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}
	return sentences
}

// packSentences greedily merges consecutive sentences while the running
// buffer stays within the pack budget.
func packSentences(sentences []string) []string {
	var chunks []string
	var buffer string
	for _, sentence := range sentences {
		if buffer == "" {
			buffer = sentence
			continue
		}
		if utf8.RuneCountInString(buffer)+utf8.RuneCountInString(sentence) <= packBudgetRunes {
			buffer += sentence
			continue
		}
		chunks = append(chunks, buffer)
		buffer = sentence
	}
	if buffer != "" {
		chunks = append(chunks, buffer)
	}
	return chunks
}

func cap6(bubbles []string) []string {
	if len(bubbles) > MaxBubbles {
		return bubbles[:MaxBubbles]
	}
	return bubbles
}
