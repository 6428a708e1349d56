// Package diag is the pipeline's observability hook: the core pushes
// diagnostic events into a Sink instead of carrying compiled-in debug
// branches. The default sink discards everything.
package diag

import (
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/petems/voicegate/internal/audio"
)

// Sink receives diagnostic events from the capture pipeline. All methods
// are called from hot paths and must return quickly.
type Sink interface {
	// WakeScore reports one wake-detector inference.
	WakeScore(sampleIndex uint64, score float32)
	// SpeechProbability reports one VAD estimate.
	SpeechProbability(sampleIndex uint64, probability float32)
	// SessionAudio receives the complete audio of a finished session.
	SessionAudio(samples []float32, sampleRate int)
}

// Nop discards all events.
type Nop struct{}

func (Nop) WakeScore(uint64, float32)         {}
func (Nop) SpeechProbability(uint64, float32) {}
func (Nop) SessionAudio([]float32, int)       {}

// Recorder logs scores at debug level and dumps session audio as WAV
// files for offline inspection.
type Recorder struct {
	log     zerolog.Logger
	fs      afero.Fs
	dumpDir string
}

func NewRecorder(log zerolog.Logger, fs afero.Fs, dumpDir string) *Recorder {
	return &Recorder{log: log, fs: fs, dumpDir: dumpDir}
}

func (r *Recorder) WakeScore(sampleIndex uint64, score float32) {
	r.log.Debug().Uint64("sample", sampleIndex).Float32("score", score).Msg("wake score")
}

func (r *Recorder) SpeechProbability(sampleIndex uint64, probability float32) {
	r.log.Debug().Uint64("sample", sampleIndex).Float32("p", probability).Msg("vad")
}

func (r *Recorder) SessionAudio(samples []float32, sampleRate int) {
	if r.dumpDir == "" {
		return
	}
	name, err := audio.DumpWAV(r.fs, r.dumpDir, samples, sampleRate)
	if err != nil {
		r.log.Warn().Err(err).Msg("Session audio dump failed")
		return
	}
	r.log.Info().Str("file", name).Msg("Session audio dumped")
}
