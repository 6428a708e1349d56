package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

type portAudioCapture struct {
	stream *portaudio.Stream
	log    zerolog.Logger
}

// New creates a new PortAudio-based audio capture
func New(log zerolog.Logger) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{log: log}, nil
}

func (p *portAudioCapture) Start(ctx context.Context, deviceID string, sampleRate int, handler FrameHandler) error {
	device, err := findDevice(deviceID)
	if err != nil {
		return err
	}

	// Prefer the canonical rate; fall back to the hardware default and
	// resample when the device refuses it.
	buffer := make([]float32, 512)
	openAt := func(rate float64) (*portaudio.Stream, error) {
		return portaudio.OpenStream(portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: 1,
				Latency:  device.DefaultLowInputLatency,
			},
			SampleRate:      rate,
			FramesPerBuffer: len(buffer),
		}, buffer)
	}

	var resampler *Resampler
	stream, err := openAt(float64(sampleRate))
	if err != nil {
		hwRate := int(device.DefaultSampleRate)
		stream, err = openAt(device.DefaultSampleRate)
		if err != nil {
			return fmt.Errorf("failed to open audio stream: %w", err)
		}
		resampler, err = NewResampler(hwRate, sampleRate)
		if err != nil {
			stream.Close()
			return fmt.Errorf("device rate %d unusable: %w", hwRate, err)
		}
		p.log.Info().
			Int("hardware_rate", hwRate).
			Int("canonical_rate", sampleRate).
			Msg("Device refused canonical rate, resampling")
	}

	p.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	// Read loop: the real-time path. The handler is invoked synchronously
	// so every consumer sees frames in the same order.
	go func() {
		defer stream.Close()
		var pos uint64
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := stream.Read(); err != nil {
					p.log.Error().Err(err).Msg("Audio read failed, capture stopped")
					return
				}

				samples := make([]float32, len(buffer))
				copy(samples, buffer)

				if resampler != nil {
					resampled, err := resampler.Process(samples)
					if err != nil {
						// Per-frame failure: drop this block and keep going.
						p.log.Warn().Err(err).Msg("Resampling failed, frame dropped")
						continue
					}
					samples = resampled
				}
				if len(samples) == 0 {
					continue
				}

				handler(Frame{Samples: samples, Pos: pos})
				pos += uint64(len(samples))
			}
		}
	}()

	return nil
}

func findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func (p *portAudioCapture) Stop() error {
	if p.stream != nil {
		return p.stream.Stop()
	}
	return nil
}

func (p *portAudioCapture) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	if p.stream != nil {
		p.stream.Close()
	}
	portaudio.Terminate()
	return nil
}
