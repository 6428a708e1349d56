package audio

import "context"

// Frame is a fixed-size block of mono float32 samples at the canonical
// sample rate. Pos is the sample index of the first sample, counted from
// the start of the stream. Frames are never mutated after delivery;
// consumers that need to keep the data must copy it.
type Frame struct {
	Samples []float32
	Pos     uint64
}

// FrameHandler receives every captured frame synchronously on the capture
// path. It must not block; heavy work belongs on another goroutine.
type FrameHandler func(Frame)

// Capture defines the interface for audio capture
type Capture interface {
	// Start opens the device and begins delivering frames to handler until
	// ctx is cancelled. Frames arrive resampled to sampleRate when the
	// hardware runs at a different rate.
	Start(ctx context.Context, deviceID string, sampleRate int, handler FrameHandler) error
	Stop() error
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID      string
	Name    string
	Default bool
}
