// Package wakeword runs a streaming wake-phrase classifier over the live
// audio stream. The model itself is opaque: anything that can score a
// window of samples can serve as the Scorer.
package wakeword

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voicegate/internal/audio"
)

// ErrModelUnavailable is returned when the bundled model artifact cannot
// be located or parsed. The wake subsystem is disabled in that case;
// manual capture keeps working.
var ErrModelUnavailable = errors.New("wake-word model unavailable")

// Event is emitted when the score crosses the threshold. SampleIndex is
// the stream position at the moment of firing; because the model needs a
// fixed run of trailing context before it can fire, the phrase itself
// ended one model latency before this position.
type Event struct {
	SampleIndex uint64
	Score       float32
}

// Scorer is the opaque classifier. WindowSize is the number of samples per
// analysis window; LatencyWindows is the model-specific count of trailing
// windows required before a detection can fire.
type Scorer interface {
	WindowSize() int
	LatencyWindows() int
	Score(window []float32) (float32, error)
	Reset()
}

// Detector feeds every captured frame through the scorer and emits at most
// one Event per phrase. It must see every frame regardless of capture
// state; a cold buffer misses the first detection.
type Detector struct {
	scorer     Scorer
	threshold  float32
	sampleRate int
	hop        int
	onEvent    func(Event)
	log        zerolog.Logger

	refractorySamples uint64

	buf      []float32
	bufPos   uint64 // stream position of buf[0]
	lastFire uint64
	fired    bool
}

// NewDetector wires a scorer to an event callback. The callback runs on
// the audio path and must not block.
func NewDetector(scorer Scorer, threshold float32, refractory time.Duration, sampleRate int, onEvent func(Event), log zerolog.Logger) *Detector {
	hop := scorer.WindowSize() / 2 // 50% overlap between analysis windows
	if hop < 1 {
		hop = 1
	}
	return &Detector{
		scorer:            scorer,
		threshold:         threshold,
		sampleRate:        sampleRate,
		hop:               hop,
		onEvent:           onEvent,
		log:               log,
		refractorySamples: uint64(refractory.Seconds() * float64(sampleRate)),
	}
}

// Feed consumes one frame. Runs synchronously on the audio path.
func (d *Detector) Feed(f audio.Frame) {
	if len(d.buf) == 0 {
		d.bufPos = f.Pos
	}
	d.buf = append(d.buf, f.Samples...)

	size := d.scorer.WindowSize()
	for len(d.buf) >= size {
		score, err := d.scorer.Score(d.buf[:size])
		if err != nil {
			// Per-inference errors are absorbed; the stream keeps flowing.
			d.log.Warn().Err(err).Msg("Wake scoring failed")
		} else {
			fireAt := d.bufPos + uint64(size)
			d.maybeFire(fireAt, score)
		}

		d.buf = d.buf[d.hop:]
		d.bufPos += uint64(d.hop)
	}
}

func (d *Detector) maybeFire(at uint64, score float32) {
	if score < d.threshold {
		return
	}
	if d.fired && at-d.lastFire < d.refractorySamples {
		return
	}
	d.fired = true
	d.lastFire = at
	d.onEvent(Event{SampleIndex: at, Score: score})
}
