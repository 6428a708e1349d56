package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/diag"
	"github.com/petems/voicegate/internal/hotkey"
	"github.com/petems/voicegate/internal/logging"
	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/pipeline"
	"github.com/petems/voicegate/internal/stt"
	"github.com/petems/voicegate/internal/wakeword"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)
	log.Info().Str("version", Version).Str("commit", Commit).Msg("voicegate starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	capture, err := audio.New(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer capture.Close()

	if len(os.Args) > 1 && os.Args[1] == "--list-devices" {
		devices, err := capture.ListDevices()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to enumerate devices")
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			os.Stdout.WriteString(marker + " " + d.ID + "  " + d.Name + "\n")
		}
		return
	}

	// On-device transcription is the primary backend; the server variant is
	// the degraded fallback when configured.
	primary, err := stt.NewWhisper(cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transcription")
	}
	defer primary.Close()

	var fallback stt.Transcriber
	if cfg.STT.Server.Endpoint != "" {
		fallback = stt.NewServer(cfg.STT.Server, cfg.Audio.SampleRate)
		defer fallback.Close()
	}

	// A missing wake model degrades to push-to-talk only; it never blocks
	// startup.
	var scorer wakeword.Scorer
	if cfg.Wake.ModelPath != "" {
		scorer, err = wakeword.LoadScorer(afero.NewOsFs(), cfg.Wake.ModelPath)
		if err != nil {
			if errors.Is(err, wakeword.ErrModelUnavailable) {
				log.Warn().Err(err).Msg("Wake-word model unavailable, hands-free capture disabled")
			} else {
				log.Fatal().Err(err).Msg("Failed to load wake-word model")
			}
		}
	} else {
		log.Info().Msg("No wake-word model configured, push-to-talk only")
	}

	var sink diag.Sink = diag.Nop{}
	if cfg.Diagnostics.Enabled {
		sink = diag.NewRecorder(log, afero.NewOsFs(), cfg.Diagnostics.DumpDir)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go serveMetrics(cfg.Metrics.Address, log)
	}

	var p *pipeline.Pipeline
	p = pipeline.New(pipeline.Config{
		Audio:    capture,
		Primary:  primary,
		Fallback: fallback,
		Scorer:   scorer,
		Config:   cfg,
		Logger:   log,
		Metrics:  m,
		Diag:     sink,
		OnTranscript: func(text string) {
			// Downstream intent handling plugs in here; for now the command
			// is printed and the pipeline is released immediately.
			log.Info().Str("text", text).Msg("Command")
			os.Stdout.WriteString(text + "\n")
			p.CompleteProcessing()
		},
	})

	// Register global push-to-talk hotkey
	hkManager, err := hotkey.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize hotkeys")
	}
	defer hkManager.Close()

	if err := hkManager.Register(cfg.PlatformHotkey(), func(pressed bool) {
		if pressed {
			p.PressCapture()
		} else {
			p.ReleaseCapture()
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register hotkey")
	}

	if err := p.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start capture")
	}
	log.Info().
		Bool("wake", p.WakeEnabled()).
		Str("hotkey", cfg.PlatformHotkey()).
		Msg("Listening")

	go func() {
		for u := range p.Updates() {
			log.Debug().Stringer("state", u.State).Str("transcript", u.Transcript).Msg("State")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	if err := p.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", addr).Msg("Metrics endpoint up")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
