package pipeline

import (
	"testing"
	"time"

	"github.com/petems/voicegate/internal/stt"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func TestStripWakePhraseDropsPhraseByTiming(t *testing.T) {
	words := []stt.Word{
		{Text: "hey", Start: ms(0)},
		{Text: "mister", Start: ms(300)},
		{Text: "launch", Start: ms(900)},
		{Text: "mario", Start: ms(1300)},
	}

	// cutoff = 1.5s - 0.88s + 0.10s = 0.72s
	got := StripWakePhrase(words, ms(1500), ms(880), ms(100))
	if got != "Launch mario" {
		t.Errorf("expected %q, got %q", "Launch mario", got)
	}
}

func TestStripWakePhraseAllBeforeCutoff(t *testing.T) {
	words := []stt.Word{
		{Text: "hey", Start: ms(0)},
		{Text: "mister", Start: ms(400)},
	}

	if got := StripWakePhrase(words, ms(1500), ms(880), ms(100)); got != "" {
		t.Errorf("expected empty command, got %q", got)
	}
}

func TestStripWakePhraseNoWords(t *testing.T) {
	if got := StripWakePhrase(nil, ms(1500), ms(880), ms(100)); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestStripWakePrefix(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hey mister, launch mario", "Launch mario"},
		{"Hey Mister launch mario", "Launch mario"},
		{"launch mario", "Launch mario"},
		{"hey mister", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := StripWakePrefix(tt.text, "hey mister"); got != tt.want {
			t.Errorf("StripWakePrefix(%q): expected %q, got %q", tt.text, tt.want, got)
		}
	}
}

func TestStripWakePrefixNoPhraseConfigured(t *testing.T) {
	if got := StripWakePrefix("hello there", ""); got != "Hello there" {
		t.Errorf("expected %q, got %q", "Hello there", got)
	}
}
