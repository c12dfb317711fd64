package notifier

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// chunkHeaderReserve leaves room for the "(i/n)\n" prefix
const chunkHeaderReserve = 16

// SplitMessage breaks text into chunks of at most limit characters,
// preferring line then word boundaries. When more than one chunk results,
// each is prefixed with "(i/n)".
func SplitMessage(text string, limit int) []string {
	if limit <= chunkHeaderReserve || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	budget := limit - chunkHeaderReserve
	runes := []rune(text)
	var parts []string

	for len(runes) > 0 {
		if len(runes) <= budget {
			parts = append(parts, string(runes))
			break
		}

		cut := breakPoint(runes, budget)
		part := strings.TrimRight(string(runes[:cut]), " \n")
		if part != "" {
			parts = append(parts, part)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}

	if len(parts) == 1 {
		return parts
	}
	for i := range parts {
		parts[i] = fmt.Sprintf("(%d/%d)\n%s", i+1, len(parts), parts[i])
	}
	return parts
}

// breakPoint finds the last newline, else space, in the back half of the
// window; otherwise it hard-cuts at budget.
func breakPoint(runes []rune, budget int) int {
	for _, sep := range []rune{'\n', ' '} {
		for i := budget; i > budget/2; i-- {
			if runes[i-1] == sep {
				return i
			}
		}
	}
	return budget
}
