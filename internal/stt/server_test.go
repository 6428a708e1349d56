package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/petems/voicegate/internal/config"
)

func TestServerSessionFinalResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("bad multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing audio file: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"text": "launch mario",
			"words": []map[string]any{
				{"word": "launch", "start": 0.9, "end": 1.2},
				{"word": "mario", "start": 1.3, "end": 1.7},
			},
		})
	}))
	defer srv.Close()

	tr := NewServer(config.ServerConfig{Endpoint: srv.URL}, 16000)
	sess, err := tr.NewSession(context.Background(), SessionOpts{Language: "en"})
	if err != nil {
		t.Fatal(err)
	}

	if err := sess.Feed(make([]float32, 16000)); err != nil {
		t.Fatal(err)
	}
	if err := sess.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}

	var results []Result
	for r := range sess.Results() {
		results = append(results, r)
	}
	if len(results) != 1 {
		t.Fatalf("expected a single final result, got %d", len(results))
	}
	r := results[0]
	if !r.Final || r.Text != "launch mario" {
		t.Errorf("unexpected result: %+v", r)
	}
	if len(r.Words) != 2 || r.Words[0].Start != 900*time.Millisecond {
		t.Errorf("unexpected word timing: %+v", r.Words)
	}
}

func TestServerSessionBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewServer(config.ServerConfig{Endpoint: srv.URL}, 16000)
	sess, err := tr.NewSession(context.Background(), SessionOpts{})
	if err != nil {
		t.Fatal(err)
	}
	sess.Feed(make([]float32, 1600))

	err = sess.Finish(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	var sawErr bool
	for r := range sess.Results() {
		if errors.Is(r.Err, ErrBackendUnavailable) {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("expected an error result on the stream")
	}
}

func TestServerSessionNotConfigured(t *testing.T) {
	tr := NewServer(config.ServerConfig{}, 16000)
	_, err := tr.NewSession(context.Background(), SessionOpts{})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestServerSessionFeedAfterFinish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": ""})
	}))
	defer srv.Close()

	tr := NewServer(config.ServerConfig{Endpoint: srv.URL}, 16000)
	sess, _ := tr.NewSession(context.Background(), SessionOpts{})
	sess.Feed(make([]float32, 160))
	sess.Finish(context.Background())

	if err := sess.Feed(make([]float32, 160)); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	data, err := encodeWAV(make([]float32, 1600), 16000)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 44+1600*2 {
		t.Fatalf("wav payload too small: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("malformed wav header: %q %q", data[0:4], data[8:12])
	}
}
