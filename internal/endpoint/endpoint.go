// Package endpoint decides when a capture session has heard enough. It is
// a pure time-fed state machine: callers push observations with explicit
// timestamps and poll ShouldEnd from a cooperative ticker, which keeps it
// off the audio path and trivially testable.
package endpoint

import "time"

// Reason explains why a session ended.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonSilence: speech presence stayed false past the silence timeout.
	ReasonSilence
	// ReasonStale: the transcript stopped advancing even though the
	// activity signal may still be hot (noisy-room failsafe).
	ReasonStale
)

func (r Reason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonStale:
		return "transcript_stale"
	default:
		return "none"
	}
}

// Config holds the endpointing thresholds. All empirically tuned; see the
// application config for the defaults.
type Config struct {
	// Gate ignores silence for this window right after the trigger,
	// tolerating the natural pause after the wake phrase.
	Gate time.Duration
	// Silence ends the session once speech presence has been continuously
	// false for this long (after the gate).
	Silence time.Duration
	// Stale ends the session once the transcript has not advanced for
	// this long, regardless of the speech-presence signal.
	Stale time.Duration
}

// Detector tracks one session's activity. Not safe for concurrent use;
// the session owner serializes observations and polls.
type Detector struct {
	cfg Config

	start          time.Time
	lastSpeech     time.Time
	lastTranscript time.Time
	speaking       bool
}

// New starts tracking a session that began at start.
func New(cfg Config, start time.Time) *Detector {
	return &Detector{
		cfg:            cfg,
		start:          start,
		lastSpeech:     start,
		lastTranscript: start,
	}
}

// ObserveSpeech records the speech-presence signal at now.
func (d *Detector) ObserveSpeech(now time.Time, speaking bool) {
	d.speaking = speaking
	if speaking {
		d.lastSpeech = now
	}
}

// ObserveTranscript records that the transcript advanced at now.
func (d *Detector) ObserveTranscript(now time.Time) {
	d.lastTranscript = now
}

// ShouldEnd reports whether the session is over and why. Either condition
// alone suffices; there is no maximum-duration cap.
func (d *Detector) ShouldEnd(now time.Time) (bool, Reason) {
	// Staleness is independent of the gate.
	if d.cfg.Stale > 0 && now.Sub(d.lastTranscript) >= d.cfg.Stale {
		return true, ReasonStale
	}

	if now.Sub(d.start) < d.cfg.Gate {
		return false, ReasonNone
	}

	silentFor := now.Sub(d.lastSpeech)
	if d.speaking {
		silentFor = 0
	}
	if d.cfg.Silence > 0 && silentFor >= d.cfg.Silence {
		return true, ReasonSilence
	}

	return false, ReasonNone
}
