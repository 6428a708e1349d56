// Package pipeline coordinates manual and wake-triggered capture sessions
// across the audio source, wake detector, VAD, endpoint detector, and
// transcription backends. It is the single source of truth for what is
// currently happening.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/diag"
	"github.com/petems/voicegate/internal/endpoint"
	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/stt"
	"github.com/petems/voicegate/internal/vad"
	"github.com/petems/voicegate/internal/wakeword"
)

// State is the recording state. Exactly one value holds at any instant;
// only the pipeline writes it.
type State int32

const (
	StateIdle State = iota
	StateManualCapture
	StateWakeCapture
	StateProcessingResponse
)

func (s State) String() string {
	switch s {
	case StateManualCapture:
		return "manual_capture"
	case StateWakeCapture:
		return "wake_capture"
	case StateProcessingResponse:
		return "processing_response"
	default:
		return "idle"
	}
}

// Update is pushed to observers on state changes and transcript progress.
type Update struct {
	State      State
	Transcript string
}

const sessionFeedBuffer = 8

// Config wires the pipeline's collaborators. Everything is passed in
// explicitly; the pipeline holds no globals.
type Config struct {
	Audio    audio.Capture
	Primary  stt.Transcriber
	Fallback stt.Transcriber // optional degraded variant, used at most once per attempt
	Scorer   wakeword.Scorer // nil disables hands-free capture
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // optional
	Diag     diag.Sink        // optional

	// OnTranscript receives the finalized, wake-phrase-stripped text of
	// each session that produced a usable command.
	OnTranscript func(text string)
}

type Pipeline struct {
	audio    audio.Capture
	primary  stt.Transcriber
	fallback stt.Transcriber
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	diag     diag.Sink
	handoff  func(string)

	ring *audio.Ring
	wake *wakeword.Detector
	vad  *vad.Estimator

	state          atomic.Int32
	wakeInFlight   atomic.Bool // guards against near-simultaneous wake firings
	playback       atomic.Bool
	releasePending atomic.Bool // release arrived while session creation was in flight

	mu   sync.Mutex // guards sess
	sess *captureSession

	updates chan Update
}

func New(cfg Config) *Pipeline {
	p := &Pipeline{
		audio:    cfg.Audio,
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		cfg:      cfg.Config,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		diag:     cfg.Diag,
		handoff:  cfg.OnTranscript,
		updates:  make(chan Update, 16),
	}
	if p.diag == nil {
		p.diag = diag.Nop{}
	}

	rate := p.cfg.Audio.SampleRate
	p.ring = audio.NewRing(p.cfg.Wake.PreRoll(), rate)
	p.vad = vad.New(vad.Config{
		Threshold:     p.cfg.VAD.Threshold,
		SpeechFrames:  p.cfg.VAD.SpeechFrames,
		SilenceFrames: p.cfg.VAD.SilenceFrames,
		Smoothing:     p.cfg.VAD.Smoothing,
	})
	if cfg.Scorer != nil {
		p.wake = wakeword.NewDetector(
			cfg.Scorer,
			p.cfg.Wake.Threshold,
			p.cfg.Wake.Refractory(),
			rate,
			p.handleWake,
			p.log,
		)
	}

	return p
}

// Start opens the audio device and begins the continuous listen loop.
// Every frame is fanned out synchronously: ring buffer first (the buffer
// must always be warm), then wake detector, then the active session.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.audio.Start(ctx, p.cfg.Audio.DeviceID, p.cfg.Audio.SampleRate, p.handleFrame)
}

// State returns the current recording state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Updates exposes state changes and transcript progress to observers.
// Sends never block; slow observers miss intermediate updates.
func (p *Pipeline) Updates() <-chan Update {
	return p.updates
}

// WakeEnabled reports whether hands-free capture is available.
func (p *Pipeline) WakeEnabled() bool {
	return p.wake != nil
}

// handleFrame runs on the audio path for every captured frame. It must
// never block and never stop writing the ring buffer.
func (p *Pipeline) handleFrame(f audio.Frame) {
	p.ring.Write(f.Samples)
	if p.metrics != nil {
		p.metrics.FramesProcessed.Inc()
	}

	// The detector sees every frame regardless of state so its context
	// windows stay hot; acceptance is gated in handleWake.
	if p.wake != nil {
		p.wake.Feed(f)
	}

	state := p.State()
	if state != StateManualCapture && state != StateWakeCapture {
		return
	}

	p.mu.Lock()
	cs := p.sess
	p.mu.Unlock()
	if cs == nil || !cs.feeding.Load() {
		return
	}

	prob := p.vad.Probability(f.Samples)
	p.diag.SpeechProbability(f.Pos, prob)
	cs.observeSpeech(time.Now(), p.vad.Speaking())

	samples := make([]float32, len(f.Samples))
	copy(samples, f.Samples)
	select {
	case cs.feed <- samples:
	default:
		// Backpressure: dropping beats blocking the audio path.
		if p.metrics != nil {
			p.metrics.FramesDropped.Inc()
		}
	}
}

// handleWake runs synchronously inside the audio path when the detector
// fires. The state transition is the first action taken so duplicate
// suppression is atomic; everything slow happens on another goroutine.
func (p *Pipeline) handleWake(ev wakeword.Event) {
	p.diag.WakeScore(ev.SampleIndex, ev.Score)

	if !p.wakeInFlight.CompareAndSwap(false, true) {
		p.log.Debug().Uint64("sample", ev.SampleIndex).Msg("Wake event ignored, trigger already in flight")
		p.countIgnoredWake()
		return
	}

	if p.playback.Load() {
		p.log.Debug().Msg("Wake event ignored during playback")
		p.wakeInFlight.Store(false)
		p.countIgnoredWake()
		return
	}

	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateWakeCapture)) {
		// Not queued, by contract: a wake event while busy is dropped.
		p.log.Info().
			Uint64("sample", ev.SampleIndex).
			Stringer("state", p.State()).
			Msg("Wake event ignored while not idle")
		p.wakeInFlight.Store(false)
		p.countIgnoredWake()
		return
	}

	p.log.Info().
		Uint64("sample", ev.SampleIndex).
		Float32("score", ev.Score).
		Msg("Wake event accepted")
	if p.metrics != nil {
		p.metrics.WakeEventsFired.Inc()
		p.metrics.WakeScore.Observe(float64(ev.Score))
	}
	p.notify(StateWakeCapture, "")

	go p.startSession(sessionWake)
}

// PressCapture starts a manual (push-to-talk) session.
func (p *Pipeline) PressCapture() {
	if p.playback.Load() {
		p.log.Debug().Msg("Manual capture ignored during playback")
		return
	}
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateManualCapture)) {
		return
	}
	p.releasePending.Store(false)

	p.log.Info().Msg("Starting manual capture")
	p.notify(StateManualCapture, "")
	go p.startSession(sessionManual)
}

// ReleaseCapture ends a manual session. It only ends ManualCapture;
// releasing during a wake session has no effect.
func (p *Pipeline) ReleaseCapture() {
	if p.State() != StateManualCapture {
		return
	}

	p.mu.Lock()
	cs := p.sess
	p.mu.Unlock()
	if cs == nil {
		// Session creation is still in flight. Flag the release, then
		// re-check: startSession publishes the session before it consumes
		// the flag, so either it observes the flag and ends the session,
		// or the session is visible here and is ended directly.
		p.releasePending.Store(true)
		p.mu.Lock()
		cs = p.sess
		p.mu.Unlock()
		if cs == nil || !p.releasePending.Swap(false) {
			return
		}
	}
	go p.endSession(cs, "release")
}

// PlaybackStarted suppresses capture while synthesized speech plays, so
// the system does not hear its own voice. An active session is ended.
func (p *Pipeline) PlaybackStarted() {
	p.playback.Store(true)

	state := p.State()
	if state != StateManualCapture && state != StateWakeCapture {
		return
	}
	p.mu.Lock()
	cs := p.sess
	p.mu.Unlock()
	if cs != nil {
		p.log.Info().Msg("Playback started, capture suppressed")
		go p.endSession(cs, "playback")
	}
}

// PlaybackFinished lifts the playback suppression.
func (p *Pipeline) PlaybackFinished() {
	p.playback.Store(false)
}

// CompleteProcessing signals that the downstream consumer is done with
// the last handed-off transcript; the pipeline returns to idle and the
// wake trigger guard is cleared.
func (p *Pipeline) CompleteProcessing() {
	if p.state.CompareAndSwap(int32(StateProcessingResponse), int32(StateIdle)) {
		p.wakeInFlight.Store(false)
		p.notify(StateIdle, "")
	}
}

// Shutdown ends any active session and stops the audio source.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cs := p.sess
	p.mu.Unlock()
	if cs != nil {
		p.endSession(cs, "shutdown")
	}
	return p.audio.Stop()
}

// ===== session lifecycle =====

type sessionKind int

const (
	sessionManual sessionKind = iota
	sessionWake
)

func (k sessionKind) String() string {
	if k == sessionManual {
		return "manual"
	}
	return "wake"
}

type captureSession struct {
	kind    sessionKind
	started time.Time

	feed    chan []float32
	feeding atomic.Bool

	feedCtx    context.Context
	feedCancel context.CancelFunc
	feederWG   sync.WaitGroup
	resultsWG  sync.WaitGroup

	mu           sync.Mutex
	sess         stt.Session
	fed          []float32 // retained for fallback replay and diagnostics
	transcript   stt.Transcript
	usedFallback bool
	failed       bool

	epMu sync.Mutex
	ep   *endpoint.Detector // nil for manual sessions

	endOnce sync.Once
}

func (cs *captureSession) observeSpeech(now time.Time, speaking bool) {
	cs.epMu.Lock()
	defer cs.epMu.Unlock()
	if cs.ep != nil {
		cs.ep.ObserveSpeech(now, speaking)
	}
}

func (cs *captureSession) observeTranscript(now time.Time) {
	cs.epMu.Lock()
	defer cs.epMu.Unlock()
	if cs.ep != nil {
		cs.ep.ObserveTranscript(now)
	}
}

func (cs *captureSession) shouldEnd(now time.Time) (bool, endpoint.Reason) {
	cs.epMu.Lock()
	defer cs.epMu.Unlock()
	if cs.ep == nil {
		return false, endpoint.ReasonNone
	}
	return cs.ep.ShouldEnd(now)
}

func (cs *captureSession) currentSession() stt.Session {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.sess
}

// startSession creates the transcription session off the audio path and
// wires up the feeder, result consumer, and (for wake sessions) the
// endpoint ticker. On failure the state machine returns to idle.
func (p *Pipeline) startSession(kind sessionKind) {
	opts := stt.SessionOpts{
		Language:    p.cfg.STT.Language,
		Temperature: p.cfg.STT.Temperature,
		Threads:     p.cfg.STT.Threads,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sess, usedFallback, err := p.newBackendSession(ctx, opts)
	cancel()
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to start transcription session")
		p.state.Store(int32(StateIdle))
		p.wakeInFlight.Store(false)
		p.releasePending.Store(false)
		p.notify(StateIdle, "")
		p.countFinished("error")
		return
	}

	feedCtx, feedCancel := context.WithCancel(context.Background())
	cs := &captureSession{
		kind:       kind,
		started:    time.Now(),
		feed:       make(chan []float32, sessionFeedBuffer),
		feedCtx:    feedCtx,
		feedCancel: feedCancel,
		sess:       sess,
	}
	cs.usedFallback = usedFallback

	if kind == sessionWake {
		// Pre-roll goes in before any live audio so the start of the
		// phrase command is never lost.
		preroll := p.ring.ReadLast(p.cfg.Wake.PreRoll())
		if len(preroll) > 0 {
			if err := sess.Feed(preroll); err != nil {
				p.log.Warn().Err(err).Msg("Pre-roll feed failed")
			} else {
				cs.fed = append(cs.fed, preroll...)
			}
		}
		cs.ep = endpoint.New(endpoint.Config{
			Gate:    p.cfg.Endpoint.Gate(),
			Silence: p.cfg.Endpoint.Silence(),
			Stale:   p.cfg.Endpoint.Stale(),
		}, cs.started)
	}

	p.vad.Reset()

	cs.feederWG.Add(1)
	go p.runFeeder(cs)
	cs.resultsWG.Add(1)
	go p.consumeResults(cs)
	if kind == sessionWake {
		go p.runEndpointTicker(cs)
	}

	if p.metrics != nil {
		p.metrics.SessionsStarted.WithLabelValues(kind.String()).Inc()
	}

	p.mu.Lock()
	p.sess = cs
	p.mu.Unlock()
	cs.feeding.Store(true)

	// The press may already have been released while the backend was
	// starting up; the session must still end immediately.
	if kind == sessionManual && p.releasePending.Swap(false) {
		go p.endSession(cs, "release")
		return
	}

	// The state may have been torn down while the backend was starting up.
	state := p.State()
	if (kind == sessionManual && state != StateManualCapture) ||
		(kind == sessionWake && state != StateWakeCapture) {
		go p.endSession(cs, "early_teardown")
	}
}

// newBackendSession tries the primary backend and falls back to the
// degraded variant at most once per attempt.
func (p *Pipeline) newBackendSession(ctx context.Context, opts stt.SessionOpts) (stt.Session, bool, error) {
	sess, err := p.primary.NewSession(ctx, opts)
	if err == nil {
		return sess, false, nil
	}
	if p.fallback == nil {
		return nil, false, err
	}

	p.log.Warn().Err(err).Msg("Primary backend unavailable, trying fallback")
	if p.metrics != nil {
		p.metrics.BackendFallbacks.Inc()
	}
	sess, ferr := p.fallback.NewSession(ctx, opts)
	if ferr != nil {
		return nil, false, fmt.Errorf("%w (fallback also failed: %v)", stt.ErrNoCapability, ferr)
	}
	return sess, true, nil
}

// runFeeder moves audio from the callback's channel into the session,
// keeping backend calls off the audio path.
func (p *Pipeline) runFeeder(cs *captureSession) {
	defer cs.feederWG.Done()
	for {
		select {
		case <-cs.feedCtx.Done():
			return
		case samples := <-cs.feed:
			cs.mu.Lock()
			sess := cs.sess
			cs.fed = append(cs.fed, samples...)
			cs.mu.Unlock()
			if err := sess.Feed(samples); err != nil && err != stt.ErrSessionFinished {
				p.log.Error().Err(err).Msg("Feed error")
			}
		}
	}
}

// consumeResults drains the session's result stream, folding updates into
// the transcript. On a terminal backend failure it swaps in the fallback
// session once, replaying the audio fed so far.
func (p *Pipeline) consumeResults(cs *captureSession) {
	defer cs.resultsWG.Done()
	for {
		sess := cs.currentSession()
		swapped := p.drainResults(cs, sess)
		if !swapped {
			return
		}
	}
}

func (p *Pipeline) drainResults(cs *captureSession, sess stt.Session) (swapped bool) {
	for r := range sess.Results() {
		if r.Err != nil {
			p.log.Error().Err(r.Err).Msg("Transcription backend error")
			if p.metrics != nil {
				p.metrics.BackendFailures.Inc()
			}
			if p.swapToFallback(cs) {
				return true
			}
			cs.mu.Lock()
			cs.failed = true
			cs.mu.Unlock()
			go p.endSession(cs, "error")
			return false
		}

		cs.mu.Lock()
		before := cs.transcript.Revision()
		cs.transcript.Apply(r)
		changed := cs.transcript.Revision() != before
		text := cs.transcript.Text()
		cs.mu.Unlock()

		if changed {
			cs.observeTranscript(time.Now())
			p.notify(p.State(), text)
		}
	}
	return false
}

// swapToFallback replays the attempt's audio into a fresh fallback
// session. Allowed at most once per capture attempt.
func (p *Pipeline) swapToFallback(cs *captureSession) bool {
	cs.mu.Lock()
	already := cs.usedFallback
	cs.usedFallback = true
	replay := make([]float32, len(cs.fed))
	copy(replay, cs.fed)
	cs.mu.Unlock()

	if already || p.fallback == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := p.fallback.NewSession(ctx, stt.SessionOpts{
		Language: p.cfg.STT.Language,
		Threads:  p.cfg.STT.Threads,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("Fallback backend unavailable")
		return false
	}

	p.log.Warn().Msg("Mid-stream backend failure, replaying into fallback session")
	if p.metrics != nil {
		p.metrics.BackendFallbacks.Inc()
	}
	if len(replay) > 0 {
		if err := sess.Feed(replay); err != nil {
			p.log.Error().Err(err).Msg("Fallback replay failed")
			return false
		}
	}

	cs.mu.Lock()
	cs.sess = sess
	cs.mu.Unlock()

	// When the failed session surfaced its error from Finish, teardown has
	// already stopped feeding and issued its one Finish call. The swapped-in
	// session gets its own Finish here so its result stream still closes
	// and teardown can drain the replayed final.
	if !cs.feeding.Load() {
		fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer fcancel()
		if err := sess.Finish(fctx); err != nil && err != stt.ErrSessionFinished {
			p.log.Warn().Err(err).Msg("Fallback session finish error")
		}
	}
	return true
}

// runEndpointTicker polls the endpoint detector on a cooperative timer,
// decoupled from the audio callback.
func (p *Pipeline) runEndpointTicker(cs *captureSession) {
	ticker := time.NewTicker(p.cfg.Endpoint.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-cs.feedCtx.Done():
			return
		case <-ticker.C:
			if end, reason := cs.shouldEnd(time.Now()); end {
				p.log.Info().Stringer("reason", reason).Msg("Endpoint reached")
				if p.metrics != nil {
					p.metrics.EndpointReasons.WithLabelValues(reason.String()).Inc()
				}
				p.endSession(cs, reason.String())
				return
			}
		}
	}
}

// endSession tears a session down exactly once: stop feeding, finish the
// backend session, drain results, filter the transcript, and either hand
// it downstream or fall back to idle.
func (p *Pipeline) endSession(cs *captureSession, reason string) {
	cs.endOnce.Do(func() {
		// No more audio may reach the session once Finish is issued.
		cs.feeding.Store(false)
		cs.feedCancel()
		cs.feederWG.Wait()

		p.mu.Lock()
		if p.sess == cs {
			p.sess = nil
		}
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cs.currentSession().Finish(ctx); err != nil && err != stt.ErrSessionFinished {
			p.log.Warn().Err(err).Msg("Session finish error")
		}
		cs.resultsWG.Wait()

		p.finalize(cs, reason)
	})
}

// finalize applies the wake-phrase filter and decides between handing the
// transcript downstream and returning straight to idle.
func (p *Pipeline) finalize(cs *captureSession, reason string) {
	cs.mu.Lock()
	failed := cs.failed
	words := cs.transcript.Words()
	text := cs.transcript.Text()
	fed := cs.fed
	cs.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SessionDuration.Observe(time.Since(cs.started).Seconds())
	}
	p.diag.SessionAudio(fed, p.cfg.Audio.SampleRate)

	var command string
	if !failed {
		switch {
		case cs.kind == sessionWake && len(words) > 0:
			command = StripWakePhrase(words, p.cfg.Wake.PreRoll(), p.cfg.Wake.Latency(), p.cfg.Wake.Margin())
		case cs.kind == sessionWake:
			command = StripWakePrefix(text, p.cfg.Wake.Phrase)
		default:
			command = capitalize(text)
		}
	}

	if command == "" || failed {
		outcome := "empty"
		if failed {
			outcome = "error"
		}
		p.log.Info().Str("reason", reason).Str("outcome", outcome).Msg("Capture ended without a command")
		p.countFinished(outcome)
		p.state.Store(int32(StateIdle))
		p.wakeInFlight.Store(false)
		p.notify(StateIdle, "")
		return
	}

	p.log.Info().Str("text", command).Str("reason", reason).Msg("Capture complete")
	p.countFinished("handed_off")

	if cs.kind == sessionWake {
		// The wake-trigger guard stays set until the downstream consumer
		// calls CompleteProcessing.
		p.state.Store(int32(StateProcessingResponse))
		p.notify(StateProcessingResponse, command)
	} else {
		p.state.Store(int32(StateIdle))
		p.notify(StateIdle, command)
	}

	if p.handoff != nil {
		p.handoff(command)
	}
}

func (p *Pipeline) notify(state State, transcript string) {
	select {
	case p.updates <- Update{State: state, Transcript: transcript}:
	default:
		// Observers that lag miss intermediate updates.
	}
}

func (p *Pipeline) countIgnoredWake() {
	if p.metrics != nil {
		p.metrics.WakeEventsIgnored.Inc()
	}
}

func (p *Pipeline) countFinished(outcome string) {
	if p.metrics != nil {
		p.metrics.SessionsFinished.WithLabelValues(outcome).Inc()
	}
}
