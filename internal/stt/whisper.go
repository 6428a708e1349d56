package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/petems/voicegate/internal/config"
)

const (
	// Re-decode cadence for volatile results: wait for at least this much
	// new audio before running the model again.
	minDecodeStride = 16000 // 1s at the canonical rate
	decodePollEvery = 250 * time.Millisecond
)

type whisperTranscriber struct {
	model     whisper.Model
	modelPath string
	mu        sync.Mutex
}

// NewWhisper creates the on-device transcriber, downloading the model on
// first use.
func NewWhisper(cfg config.STTConfig) (Transcriber, error) {
	modelPath := filepath.Join(config.ModelsPath(), cfg.Model+".bin")

	// Check if model exists, download if needed
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := downloadModel(cfg.Model, modelPath); err != nil {
			return nil, fmt.Errorf("%w: model download failed: %v", ErrBackendUnavailable, err)
		}
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load model: %v", ErrBackendUnavailable, err)
	}

	return &whisperTranscriber{
		model:     model,
		modelPath: modelPath,
	}, nil
}

func (w *whisperTranscriber) NewSession(ctx context.Context, opts SessionOpts) (Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return nil, ErrBackendUnavailable
	}

	s := &whisperSession{
		transcriber: w,
		opts:        opts,
		results:     make(chan Result, 16),
		samples:     make([]float32, 0, 16000*30),
		done:        make(chan struct{}),
	}
	s.loop.Add(1)
	go func() {
		defer s.loop.Done()
		s.decodeLoop()
	}()

	return s, nil
}

func (w *whisperTranscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model != nil {
		w.model.Close()
		w.model = nil
	}
	return nil
}

// ===== SESSION =====

// whisperSession re-decodes the whole accumulated buffer on a cadence,
// emitting the full text as a volatile result each time; Finish runs one
// last decode and emits it as final. Re-decoding from the start keeps the
// word offsets relative to the beginning of the fed audio, which the
// wake-phrase timing filter depends on.
type whisperSession struct {
	transcriber *whisperTranscriber
	opts        SessionOpts
	results     chan Result

	mu       sync.Mutex
	samples  []float32
	decoded  int // sample count at the last decode
	finished bool

	done chan struct{}
	loop sync.WaitGroup
}

func (s *whisperSession) Feed(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrSessionFinished
	}
	s.samples = append(s.samples, samples...)
	return nil
}

func (s *whisperSession) Results() <-chan Result {
	return s.results
}

// Finish stops the volatile decode loop, runs the final decode, and closes
// the results channel. It is the session's only cancellation primitive.
func (s *whisperSession) Finish(ctx context.Context) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.finished = true
	s.mu.Unlock()

	close(s.done)

	finalDone := make(chan struct{})
	go func() {
		defer close(finalDone)
		defer close(s.results)

		// Wait for the decode loop to exit so the final decode never
		// overlaps a volatile one, and so an in-flight volatile result is
		// delivered before the channel closes.
		s.loop.Wait()

		s.mu.Lock()
		buf := make([]float32, len(s.samples))
		copy(buf, s.samples)
		s.mu.Unlock()

		if len(buf) == 0 {
			s.results <- Result{Final: true}
			return
		}

		res, err := s.decode(buf)
		if err != nil {
			s.results <- Result{Err: fmt.Errorf("%w: %v", ErrBackendUnavailable, err)}
			return
		}
		res.Final = true
		s.results <- res
	}()

	select {
	case <-finalDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *whisperSession) decodeLoop() {
	ticker := time.NewTicker(decodePollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.finished || len(s.samples)-s.decoded < minDecodeStride {
				s.mu.Unlock()
				continue
			}
			buf := make([]float32, len(s.samples))
			copy(buf, s.samples)
			s.decoded = len(buf)
			s.mu.Unlock()

			res, err := s.decode(buf)
			if err != nil {
				// A volatile decode failure is not terminal; the final
				// decode on Finish gets another chance.
				continue
			}

			select {
			case s.results <- res:
			case <-s.done:
				return
			default:
				// Drop if the consumer lags; the next decode supersedes.
			}
		}
	}
}

// decode runs the model over the whole buffer and flattens the segments.
func (s *whisperSession) decode(buf []float32) (Result, error) {
	wctx, err := s.transcriber.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create context: %w", err)
	}

	if s.opts.Threads > 0 {
		wctx.SetThreads(uint(s.opts.Threads))
	}
	if s.opts.Language != "auto" && s.opts.Language != "" {
		wctx.SetLanguage(s.opts.Language)
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(buf, nil, nil); err != nil {
		return Result{}, fmt.Errorf("whisper process failed: %w", err)
	}

	var parts []string
	var words []Word
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break // EOF
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		words = append(words, interpolateWords(text, segment.Start, segment.End)...)
	}

	return Result{Text: strings.Join(parts, " "), Words: words}, nil
}

// interpolateWords spreads word start times across the segment span by
// rune length. The bindings expose segment-level timestamps only; this
// keeps the timing filter usable at the cost of some precision.
func interpolateWords(text string, start, end time.Duration) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	total := 0
	for _, f := range fields {
		total += len([]rune(f))
	}

	span := end - start
	if span < 0 {
		span = 0
	}

	words := make([]Word, 0, len(fields))
	consumed := 0
	for _, f := range fields {
		frac := float64(consumed) / float64(total)
		words = append(words, Word{
			Text:  f,
			Start: start + time.Duration(frac*float64(span)),
		})
		consumed += len([]rune(f))
	}
	return words
}
