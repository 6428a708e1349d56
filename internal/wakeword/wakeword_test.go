package wakeword

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/petems/voicegate/internal/audio"
)

// stubScorer fires a fixed score once its trailing context is full.
type stubScorer struct {
	windowSize int
	latency    int
	score      float32
	seen       int
}

func (s *stubScorer) WindowSize() int     { return s.windowSize }
func (s *stubScorer) LatencyWindows() int { return s.latency }
func (s *stubScorer) Reset()              { s.seen = 0 }

func (s *stubScorer) Score(win []float32) (float32, error) {
	s.seen++
	if s.seen < s.latency {
		return 0, nil
	}
	return s.score, nil
}

func feedSamples(d *Detector, n int, startPos uint64) {
	const block = 512
	pos := startPos
	for fed := 0; fed < n; fed += block {
		d.Feed(audio.Frame{Samples: make([]float32, block), Pos: pos})
		pos += block
	}
}

func TestDetectorFiresOnce(t *testing.T) {
	var events []Event
	scorer := &stubScorer{windowSize: 1024, latency: 4, score: 0.9}
	d := NewDetector(scorer, 0.5, 1100*time.Millisecond, 16000, func(e Event) {
		events = append(events, e)
	}, zerolog.Nop())

	// Half a second of audio: many windows above threshold, but every
	// firing after the first lands inside the refractory period.
	feedSamples(d, 8000, 0)

	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	if events[0].Score != 0.9 {
		t.Errorf("expected score 0.9, got %f", events[0].Score)
	}
}

func TestDetectorRefiresAfterRefractory(t *testing.T) {
	var events []Event
	scorer := &stubScorer{windowSize: 1024, latency: 1, score: 0.9}
	d := NewDetector(scorer, 0.5, 1100*time.Millisecond, 16000, func(e Event) {
		events = append(events, e)
	}, zerolog.Nop())

	// Two seconds of audio comfortably spans one refractory period.
	feedSamples(d, 32000, 0)

	if len(events) != 2 {
		t.Fatalf("expected 2 events across 2s with 1.1s refractory, got %d", len(events))
	}
	gap := events[1].SampleIndex - events[0].SampleIndex
	if gap < uint64(1.1*16000) {
		t.Errorf("second firing inside refractory window: gap %d samples", gap)
	}
}

func TestDetectorEventCarriesFiringPosition(t *testing.T) {
	var events []Event
	scorer := &stubScorer{windowSize: 1024, latency: 1, score: 0.9}
	d := NewDetector(scorer, 0.5, time.Hour, 16000, func(e Event) {
		events = append(events, e)
	}, zerolog.Nop())

	feedSamples(d, 2048, 5000)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	// First full window ends windowSize samples past the stream origin.
	if want := uint64(5000 + 1024); events[0].SampleIndex != want {
		t.Errorf("expected sample index %d, got %d", want, events[0].SampleIndex)
	}
}

func writeModel(t *testing.T, fs afero.Fs, path string, windowSize, latency, bins int32) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(modelMagic)
	binary.Write(&buf, binary.LittleEndian, windowSize)
	binary.Write(&buf, binary.LittleEndian, latency)
	binary.Write(&buf, binary.LittleEndian, bins)
	binary.Write(&buf, binary.LittleEndian, make([]float32, latency*bins))
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadScorerRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModel(t, fs, "wake.vgw", 1024, 13, 32)

	s, err := LoadScorer(fs, "wake.vgw")
	if err != nil {
		t.Fatal(err)
	}
	if s.WindowSize() != 1024 || s.LatencyWindows() != 13 {
		t.Errorf("unexpected scorer shape: window %d, latency %d", s.WindowSize(), s.LatencyWindows())
	}

	// Scoring before the trailing context fills must stay at zero.
	score, err := s.Score(make([]float32, 1024))
	if err != nil {
		t.Fatal(err)
	}
	if score != 0 {
		t.Errorf("expected 0 score with cold context, got %f", score)
	}
}

func TestLoadScorerMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadScorer(fs, "nope.vgw")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestLoadScorerBadMagic(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "junk.vgw", []byte("not a model at all"), 0644)
	_, err := LoadScorer(fs, "junk.vgw")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}
