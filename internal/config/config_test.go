package config

import (
	"testing"
	"time"
)

func TestDefaultTuning(t *testing.T) {
	cfg := Default()

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("expected canonical sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if got := cfg.Wake.Refractory(); got != 1100*time.Millisecond {
		t.Errorf("expected refractory 1.1s, got %v", got)
	}
	if got := cfg.Wake.PreRoll(); got != 1500*time.Millisecond {
		t.Errorf("expected pre-roll 1.5s, got %v", got)
	}
	if got := cfg.Endpoint.Gate(); got != 2*time.Second {
		t.Errorf("expected gate 2s, got %v", got)
	}
	if got := cfg.Endpoint.Silence(); got != 1100*time.Millisecond {
		t.Errorf("expected silence timeout 1.1s, got %v", got)
	}
	if got := cfg.Endpoint.Stale(); got != 3*time.Second {
		t.Errorf("expected staleness timeout 3s, got %v", got)
	}
}

func TestEndpointTickFallback(t *testing.T) {
	e := EndpointConfig{TickMillis: 0}
	if got := e.Tick(); got != 100*time.Millisecond {
		t.Errorf("expected default tick 100ms, got %v", got)
	}

	e.TickMillis = 250
	if got := e.Tick(); got != 250*time.Millisecond {
		t.Errorf("expected tick 250ms, got %v", got)
	}
}
