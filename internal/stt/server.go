package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/petems/voicegate/internal/config"
)

// serverTranscriber is the degraded server-side variant: audio is
// accumulated locally and shipped as one WAV once the session finishes, so
// there are no volatile results, just a single final with word timing when
// the endpoint provides it.
type serverTranscriber struct {
	endpoint   string
	apiKey     string
	model      string
	sampleRate int
	http       *http.Client
}

// NewServer creates the server-backed transcriber. An empty endpoint means
// the variant is not configured and session creation fails.
func NewServer(cfg config.ServerConfig, sampleRate int) Transcriber {
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &serverTranscriber{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      model,
		sampleRate: sampleRate,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *serverTranscriber) NewSession(ctx context.Context, opts SessionOpts) (Session, error) {
	if t.endpoint == "" {
		return nil, fmt.Errorf("%w: server endpoint not configured", ErrBackendUnavailable)
	}
	return &serverSession{
		transcriber: t,
		opts:        opts,
		results:     make(chan Result, 1),
	}, nil
}

func (t *serverTranscriber) Close() error { return nil }

type serverSession struct {
	transcriber *serverTranscriber
	opts        SessionOpts
	results     chan Result

	mu       sync.Mutex
	samples  []float32
	finished bool
}

func (s *serverSession) Feed(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrSessionFinished
	}
	s.samples = append(s.samples, samples...)
	return nil
}

func (s *serverSession) Results() <-chan Result {
	return s.results
}

func (s *serverSession) Finish(ctx context.Context) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.finished = true
	buf := s.samples
	s.mu.Unlock()

	defer close(s.results)

	if len(buf) == 0 {
		s.results <- Result{Final: true}
		return nil
	}

	res, err := s.transcriber.transcribe(ctx, buf, s.opts)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		s.results <- Result{Err: err}
		return err
	}

	res.Final = true
	s.results <- res
	return nil
}

// serverResponse is the verbose transcription payload; words are present
// only when the endpoint supports word-level timestamps.
type serverResponse struct {
	Text  string `json:"text"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func (t *serverTranscriber) transcribe(ctx context.Context, samples []float32, opts SessionOpts) (Result, error) {
	wavData, err := encodeWAV(samples, t.sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encode wav: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return Result{}, fmt.Errorf("write audio data: %w", err)
	}

	writer.WriteField("model", t.model)
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("timestamp_granularities[]", "word")
	if opts.Language != "" && opts.Language != "auto" {
		writer.WriteField("language", opts.Language)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, payload)
	}

	var parsed serverResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	res := Result{Text: parsed.Text}
	for _, w := range parsed.Words {
		res.Words = append(res.Words, Word{
			Text:  w.Word,
			Start: time.Duration(w.Start * float64(time.Second)),
		})
	}
	return res, nil
}

// encodeWAV renders mono float32 samples as 16-bit PCM WAV.
func encodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	pcm := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int(s * 32767)
	}

	var mem memWriteSeeker
	enc := wav.NewEncoder(&mem, sampleRate, 16, 1, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           pcm,
	})
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return mem.buf, nil
}

// memWriteSeeker satisfies the encoder's need to seek back and patch chunk
// sizes without touching the filesystem.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = m.pos + int(offset)
	case io.SeekEnd:
		next = len(m.buf) + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	m.pos = next
	return int64(next), nil
}
