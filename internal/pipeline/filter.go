package pipeline

import (
	"strings"
	"time"
	"unicode"

	"github.com/petems/voicegate/internal/stt"
)

// StripWakePhrase removes the wake phrase from a transcript using model
// timing instead of pattern matching. Word starts are relative to the
// beginning of the fed audio, which is the start of the extracted
// pre-roll; the phrase therefore ends at
//
//	preRoll - modelLatency + safetyMargin
//
// into that audio, and every word starting earlier is part of it.
func StripWakePhrase(words []stt.Word, preRoll, modelLatency, safetyMargin time.Duration) string {
	cutoff := preRoll - modelLatency + safetyMargin

	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w.Start < cutoff {
			continue
		}
		kept = append(kept, w.Text)
	}

	return capitalize(strings.Join(kept, " "))
}

// StripWakePrefix is the degraded fallback when no word timing is
// available: a case-insensitive strip of the known phrase at the front.
func StripWakePrefix(text, phrase string) string {
	trimmed := strings.TrimSpace(text)
	if phrase != "" {
		lower := strings.ToLower(trimmed)
		prefix := strings.ToLower(strings.TrimSpace(phrase))
		if strings.HasPrefix(lower, prefix) {
			trimmed = strings.TrimSpace(trimmed[len(prefix):])
			trimmed = strings.TrimLeft(trimmed, ",.!? ")
		}
	}
	return capitalize(trimmed)
}

func capitalize(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
