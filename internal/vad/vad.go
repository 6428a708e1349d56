// Package vad estimates per-frame speech presence. It has no authority
// over capture transitions; it only supplies the activity signal the
// endpoint detector consumes.
package vad

import "math"

// Config tunes the estimator. Zero values pick usable defaults for 16 kHz
// capture blocks of ~32 ms.
type Config struct {
	Threshold     float32 // probability at or above which a frame counts as speech
	SpeechFrames  int     // consecutive speech frames to enter the speaking state
	SilenceFrames int     // consecutive silent frames to leave it
	Smoothing     float32 // exponential smoothing factor for the probability
}

// Estimator scores each frame with a speech probability in [0,1] and keeps
// a hysteresis boolean so the signal does not flicker at the threshold.
type Estimator struct {
	cfg Config

	smoothed     float32
	primed       bool
	speaking     bool
	speechCount  int
	silenceCount int
}

func New(cfg Config) *Estimator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.35
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = 3
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = 8
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = 0.1
	}
	return &Estimator{cfg: cfg}
}

// Probability scores one frame and updates the speaking state.
func (e *Estimator) Probability(samples []float32) float32 {
	p := rmsProbability(samples)

	if e.primed {
		p = e.cfg.Smoothing*p + (1-e.cfg.Smoothing)*e.smoothed
	}
	e.smoothed = p
	e.primed = true

	e.observe(p >= e.cfg.Threshold)
	return p
}

// Speaking reports the hysteresis speech-presence boolean.
func (e *Estimator) Speaking() bool {
	return e.speaking
}

// Reset clears all state between sessions.
func (e *Estimator) Reset() {
	e.smoothed = 0
	e.primed = false
	e.speaking = false
	e.speechCount = 0
	e.silenceCount = 0
}

func (e *Estimator) observe(speech bool) {
	if e.speaking {
		if !speech {
			e.silenceCount++
			if e.silenceCount >= e.cfg.SilenceFrames {
				e.speaking = false
				e.silenceCount = 0
			}
		} else {
			e.silenceCount = 0
		}
		return
	}

	if speech {
		e.speechCount++
		if e.speechCount >= e.cfg.SpeechFrames {
			e.speaking = true
			e.speechCount = 0
		}
	} else {
		e.speechCount = 0
	}
}

// rmsProbability maps RMS energy onto [0,1]. Speech at normal microphone
// gain sits well above 0.02 RMS; 0.1 and up is saturated.
func rmsProbability(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	p := rms / 0.1
	if p > 1 {
		p = 1
	}
	return float32(p)
}
