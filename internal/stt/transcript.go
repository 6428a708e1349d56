package stt

import "strings"

// Transcript accumulates session results: an ordered sequence of finalized
// segments plus at most one volatile (unconfirmed) tail. Finalized text is
// only ever appended; the volatile tail is only ever replaced.
type Transcript struct {
	finalized []string
	volatile  string

	words    []Word // word timing for the finalized text, when available
	volWords []Word
	revision uint64
}

// Apply folds one result in. An empty final result does not erase anything:
// whatever volatile text covered that span is promoted into the finalized
// sequence instead of being lost.
func (t *Transcript) Apply(r Result) {
	if r.Err != nil {
		return
	}

	if !r.Final {
		if r.Text != t.volatile {
			t.volatile = r.Text
			t.volWords = r.Words
			t.revision++
		}
		return
	}

	text := strings.TrimSpace(r.Text)
	if text == "" {
		// Span had no speech per the backend; keep what the volatile pass heard.
		if t.volatile != "" {
			t.finalized = append(t.finalized, t.volatile)
			t.words = append(t.words, t.volWords...)
		}
	} else {
		t.finalized = append(t.finalized, text)
		t.words = append(t.words, r.Words...)
	}
	t.volatile = ""
	t.volWords = nil
	t.revision++
}

// Text returns the finalized text followed by the volatile tail.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.finalized)+1)
	parts = append(parts, t.finalized...)
	if t.volatile != "" {
		parts = append(parts, t.volatile)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// FinalText returns only the confirmed segments.
func (t *Transcript) FinalText() string {
	return strings.TrimSpace(strings.Join(t.finalized, " "))
}

// Words returns word timing for the finalized text plus the volatile tail,
// or nil if the backend supplied none.
func (t *Transcript) Words() []Word {
	if len(t.words) == 0 && len(t.volWords) == 0 {
		return nil
	}
	out := make([]Word, 0, len(t.words)+len(t.volWords))
	out = append(out, t.words...)
	out = append(out, t.volWords...)
	return out
}

// Revision increments whenever the transcript content changes. The
// endpoint detector's staleness rule watches it.
func (t *Transcript) Revision() uint64 {
	return t.revision
}
