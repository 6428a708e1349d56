// Package stt wraps streaming speech-to-text backends behind one-shot
// sessions: create, feed audio, finish, drain results. Sessions are never
// reused; the backends finalize irreversibly.
package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackendUnavailable marks a backend that cannot start a session or
	// failed irrecoverably mid-stream. The caller may fall back to a
	// degraded backend once per capture attempt.
	ErrBackendUnavailable = errors.New("transcription backend unavailable")

	// ErrNoCapability means the platform has no usable speech backend at
	// all. Surfaced as a standing condition, not retried.
	ErrNoCapability = errors.New("no speech recognition capability")

	// ErrSessionFinished is returned by Feed after Finish has been issued.
	ErrSessionFinished = errors.New("session already finished")
)

// Word is one recognized word with its start offset relative to the
// beginning of the audio fed into the session.
type Word struct {
	Text  string
	Start time.Duration
}

// Result is one incremental recognition update. A volatile result
// (Final=false) supersedes the previous volatile result for the same audio
// span; consumers replace, never append. Final results are cumulative.
// Err is set on a terminal backend failure; no further results follow it.
type Result struct {
	Text  string
	Words []Word
	Final bool
	Err   error
}

// SessionOpts configures a transcription session
type SessionOpts struct {
	Language    string
	Temperature float32
	Threads     int
}

// Session is a single capture attempt's connection to a backend.
//
// Feed may be called any number of times before Finish. Finish signals
// end-of-input, flushes pending results, and is the single cancellation
// primitive: once issued, no further audio may be fed. The results channel
// is closed after the final result.
type Session interface {
	Feed(samples []float32) error
	Finish(ctx context.Context) error
	Results() <-chan Result
}

// Transcriber creates sessions. Implementations: on-device whisper.cpp and
// a server-side HTTP variant used as the degraded fallback.
type Transcriber interface {
	NewSession(ctx context.Context, opts SessionOpts) (Session, error)
	Close() error
}
