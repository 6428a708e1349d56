package stt

import (
	"testing"
	"time"
)

func TestTranscriptFinalOrderPreserved(t *testing.T) {
	var tr Transcript

	tr.Apply(Result{Text: "open the", Final: true})
	tr.Apply(Result{Text: "pod bay", Final: true})
	tr.Apply(Result{Text: "doors", Final: true})

	if got := tr.FinalText(); got != "open the pod bay doors" {
		t.Errorf("expected segments in arrival order, got %q", got)
	}
}

func TestTranscriptVolatileReplacedNotAppended(t *testing.T) {
	var tr Transcript

	tr.Apply(Result{Text: "laun", Final: false})
	tr.Apply(Result{Text: "launch ma", Final: false})
	tr.Apply(Result{Text: "launch mario", Final: false})

	if got := tr.Text(); got != "launch mario" {
		t.Errorf("volatile results must replace the tail, got %q", got)
	}
	if got := tr.FinalText(); got != "" {
		t.Errorf("nothing is finalized yet, got %q", got)
	}
}

func TestTranscriptEmptyFinalFoldsVolatile(t *testing.T) {
	var tr Transcript

	tr.Apply(Result{Text: "launch mario", Final: true})
	tr.Apply(Result{Text: "and luigi", Final: false})
	// Backend reports "no speech" for the tail span.
	tr.Apply(Result{Text: "", Final: true})

	if got := tr.FinalText(); got != "launch mario and luigi" {
		t.Errorf("empty final must fold prior volatile text, got %q", got)
	}
}

func TestTranscriptEmptyFinalNeverErases(t *testing.T) {
	var tr Transcript

	tr.Apply(Result{Text: "launch mario", Final: true})
	tr.Apply(Result{Text: "", Final: true})
	tr.Apply(Result{Text: "", Final: true})

	if got := tr.FinalText(); got != "launch mario" {
		t.Errorf("later empty finals must not erase accumulated text, got %q", got)
	}
}

func TestTranscriptRevisionTracksChanges(t *testing.T) {
	var tr Transcript

	r0 := tr.Revision()
	tr.Apply(Result{Text: "hello", Final: false})
	if tr.Revision() == r0 {
		t.Fatal("volatile change must bump revision")
	}

	r1 := tr.Revision()
	// Identical volatile text is not a change.
	tr.Apply(Result{Text: "hello", Final: false})
	if tr.Revision() != r1 {
		t.Fatal("identical volatile text must not bump revision")
	}

	tr.Apply(Result{Text: "hello", Final: true})
	if tr.Revision() == r1 {
		t.Fatal("finalization must bump revision")
	}
}

func TestTranscriptWordsAccumulate(t *testing.T) {
	var tr Transcript

	tr.Apply(Result{
		Text:  "hey mister",
		Words: []Word{{Text: "hey", Start: 0}, {Text: "mister", Start: 300 * time.Millisecond}},
		Final: true,
	})
	tr.Apply(Result{
		Text:  "launch mario",
		Words: []Word{{Text: "launch", Start: 900 * time.Millisecond}, {Text: "mario", Start: 1300 * time.Millisecond}},
		Final: true,
	})

	words := tr.Words()
	if len(words) != 4 {
		t.Fatalf("expected 4 words, got %d", len(words))
	}
	if words[2].Text != "launch" || words[2].Start != 900*time.Millisecond {
		t.Errorf("unexpected third word: %+v", words[2])
	}
}
