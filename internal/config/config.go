package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

type Config struct {
	Hotkey       string         `json:"hotkey"`
	HotkeyDarwin string         `json:"hotkey_darwin"`
	LogLevel     string         `json:"log_level"` // "debug", "info", "warn", "error"
	Audio        AudioConfig    `json:"audio"`
	Wake         WakeConfig     `json:"wake"`
	VAD          VADConfig      `json:"vad"`
	Endpoint     EndpointConfig `json:"endpoint"`
	STT          STTConfig      `json:"stt"`
	Metrics      MetricsConfig  `json:"metrics"`
	Diagnostics  DiagConfig     `json:"diagnostics"`
}

type AudioConfig struct {
	DeviceID   string `json:"device_id"`
	SampleRate int    `json:"sample_rate"` // canonical rate fed to every consumer
	FrameSize  int    `json:"frame_size"`  // samples per capture block
}

// WakeConfig holds the wake-word subsystem tuning. The durations are
// empirically tuned constants expressed in seconds; they are configuration,
// not values derived from anything else.
type WakeConfig struct {
	ModelPath     string  `json:"model_path"`
	Phrase        string  `json:"phrase"`
	Threshold     float32 `json:"threshold"`
	RefractorySec float64 `json:"refractory_sec"`    // re-fire suppression after a detection
	PreRollSec    float64 `json:"pre_roll_sec"`      // audio replayed from before the trigger
	ModelLatency  float64 `json:"model_latency_sec"` // trailing context the model needs before it can fire
	SafetyMargin  float64 `json:"safety_margin_sec"`
}

type VADConfig struct {
	Threshold     float32 `json:"threshold"`
	SpeechFrames  int     `json:"speech_frames"`
	SilenceFrames int     `json:"silence_frames"`
	Smoothing     float32 `json:"smoothing"`
}

type EndpointConfig struct {
	GateSec    float64 `json:"gate_sec"`    // post-trigger window where silence is ignored
	SilenceSec float64 `json:"silence_sec"` // continuous silence that ends a session
	StaleSec   float64 `json:"stale_sec"`   // no transcript progress that ends a session
	TickMillis int     `json:"tick_millis"` // endpoint check cadence
}

type STTConfig struct {
	Model       string       `json:"model"`    // "base.en", "small", etc.
	Language    string       `json:"language"` // "auto", "en", etc.
	Threads     int          `json:"threads"`
	Temperature float32      `json:"temperature"`
	Server      ServerConfig `json:"server"`
}

// ServerConfig configures the degraded server-side recognition fallback.
// Left empty, the pipeline runs on-device only.
type ServerConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

type DiagConfig struct {
	Enabled bool   `json:"enabled"`
	DumpDir string `json:"dump_dir"` // WAV dump of each capture session
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	cfg := Default()

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Alt+Space", // Option+Space
		LogLevel:     "info",
		Audio: AudioConfig{
			DeviceID:   "",
			SampleRate: 16000,
			FrameSize:  512,
		},
		Wake: WakeConfig{
			ModelPath:     "",
			Phrase:        "hey mister",
			Threshold:     0.55,
			RefractorySec: 1.1,
			PreRollSec:    1.5,
			ModelLatency:  0.88,
			SafetyMargin:  0.10,
		},
		VAD: VADConfig{
			Threshold:     0.35,
			SpeechFrames:  3,
			SilenceFrames: 8,
			Smoothing:     0.1,
		},
		Endpoint: EndpointConfig{
			GateSec:    2.0,
			SilenceSec: 1.1,
			StaleSec:   3.0,
			TickMillis: 100,
		},
		STT: STTConfig{
			Model:       "base.en",
			Language:    "auto",
			Threads:     0, // Auto-detect
			Temperature: 0.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9090",
		},
		Diagnostics: DiagConfig{
			Enabled: false,
			DumpDir: "",
		},
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (w WakeConfig) Refractory() time.Duration { return seconds(w.RefractorySec) }
func (w WakeConfig) PreRoll() time.Duration    { return seconds(w.PreRollSec) }
func (w WakeConfig) Latency() time.Duration    { return seconds(w.ModelLatency) }
func (w WakeConfig) Margin() time.Duration     { return seconds(w.SafetyMargin) }

func (e EndpointConfig) Gate() time.Duration    { return seconds(e.GateSec) }
func (e EndpointConfig) Silence() time.Duration { return seconds(e.SilenceSec) }
func (e EndpointConfig) Stale() time.Duration   { return seconds(e.StaleSec) }

func (e EndpointConfig) Tick() time.Duration {
	if e.TickMillis <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(e.TickMillis) * time.Millisecond
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "voicegate", "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "voicegate", "models")
}
