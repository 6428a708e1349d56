package audio

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	wave "github.com/zenwerk/go-wave"
)

// DumpWAV writes mono float32 samples to a 16-bit PCM WAV file under dir,
// named by timestamp. Used by the diagnostics sink to keep session audio
// for offline inspection.
func DumpWAV(fs afero.Fs, dir string, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("no samples to dump")
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dump dir: %w", err)
	}

	name := filepath.Join(dir, fmt.Sprintf("capture-%d.wav", time.Now().UnixNano()))
	f, err := fs.Create(name)
	if err != nil {
		return "", fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	w, err := wave.NewWriter(wave.WriterParam{
		Out:           f,
		Channel:       1,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create wav writer: %w", err)
	}
	defer w.Close()

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}

	if _, err := w.WriteSample16(pcm); err != nil {
		return "", fmt.Errorf("failed to write samples: %w", err)
	}

	return name, nil
}
