package wakeword

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/spf13/afero"
)

// Model artifact layout, little-endian:
//
//	magic "VGW1" | int32 windowSize | int32 latencyWindows | int32 bins |
//	latencyWindows*bins float32 template
//
// The template is the averaged log-magnitude spectrogram of the wake
// phrase; scoring is cosine similarity against the trailing spectrogram.
const modelMagic = "VGW1"

// LoadScorer reads a model artifact from the filesystem. A missing or
// corrupt file yields ErrModelUnavailable.
func LoadScorer(fs afero.Fs, path string) (Scorer, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil || string(magic[:]) != modelMagic {
		return nil, fmt.Errorf("%w: bad magic in %s", ErrModelUnavailable, path)
	}

	var header struct {
		WindowSize     int32
		LatencyWindows int32
		Bins           int32
	}
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: truncated header: %v", ErrModelUnavailable, err)
	}
	if header.WindowSize <= 0 || header.LatencyWindows <= 0 || header.Bins <= 0 {
		return nil, fmt.Errorf("%w: nonsensical header in %s", ErrModelUnavailable, path)
	}
	if header.Bins > header.WindowSize/2 {
		return nil, fmt.Errorf("%w: %d bins exceed window %d", ErrModelUnavailable, header.Bins, header.WindowSize)
	}

	template := make([]float32, int(header.LatencyWindows)*int(header.Bins))
	if err := binary.Read(f, binary.LittleEndian, template); err != nil {
		return nil, fmt.Errorf("%w: truncated template: %v", ErrModelUnavailable, err)
	}

	return newSpectralScorer(int(header.WindowSize), int(header.LatencyWindows), int(header.Bins), template), nil
}

// spectralScorer matches the trailing spectrogram against a stored phrase
// template. It is deliberately simple; the Scorer interface is the
// contract, and heavier models slot in behind it unchanged.
type spectralScorer struct {
	windowSize     int
	latencyWindows int
	bins           int
	template       []float32

	hann    []float64
	history [][]float32 // most recent latencyWindows spectra, oldest first
}

func newSpectralScorer(windowSize, latencyWindows, bins int, template []float32) *spectralScorer {
	return &spectralScorer{
		windowSize:     windowSize,
		latencyWindows: latencyWindows,
		bins:           bins,
		template:       template,
		hann:           window.Hann(windowSize),
	}
}

func (s *spectralScorer) WindowSize() int     { return s.windowSize }
func (s *spectralScorer) LatencyWindows() int { return s.latencyWindows }

func (s *spectralScorer) Reset() {
	s.history = nil
}

func (s *spectralScorer) Score(win []float32) (float32, error) {
	if len(win) != s.windowSize {
		return 0, fmt.Errorf("expected %d samples, got %d", s.windowSize, len(win))
	}

	s.history = append(s.history, s.spectrum(win))
	if len(s.history) > s.latencyWindows {
		s.history = s.history[1:]
	}
	if len(s.history) < s.latencyWindows {
		// Not enough trailing context yet.
		return 0, nil
	}

	var dot, na, nb float64
	for w, spec := range s.history {
		base := w * s.bins
		for i, v := range spec {
			tv := float64(s.template[base+i])
			dot += float64(v) * tv
			na += float64(v) * float64(v)
			nb += tv * tv
		}
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}

	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Cosine lands in [-1,1]; fold onto [0,1].
	return float32((cos + 1) / 2), nil
}

// spectrum is the hann-weighted log-magnitude FFT, folded down to bins.
func (s *spectralScorer) spectrum(win []float32) []float32 {
	in := make([]float64, s.windowSize)
	for i, v := range win {
		in[i] = float64(v) * s.hann[i]
	}

	coeffs := fft.FFTReal(in)

	half := s.windowSize / 2
	perBin := half / s.bins
	out := make([]float32, s.bins)
	for b := 0; b < s.bins; b++ {
		var acc float64
		for k := b * perBin; k < (b+1)*perBin; k++ {
			acc += math.Hypot(real(coeffs[k]), imag(coeffs[k]))
		}
		out[b] = float32(math.Log1p(acc / float64(perBin)))
	}
	return out
}
