package audio

import (
	"math"
	"testing"
)

func TestNewResamplerRejectsEqualRates(t *testing.T) {
	if _, err := NewResampler(16000, 16000); err == nil {
		t.Fatal("expected error for equal rates")
	}
	if _, err := NewResampler(0, 16000); err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestResampleHalvesRate(t *testing.T) {
	r, err := NewResampler(32000, 16000)
	if err != nil {
		t.Fatal(err)
	}

	in := make([]float32, 64)
	for i := range in {
		in[i] = float32(i)
	}

	out, err := r.Process(in)
	if err != nil {
		t.Fatal(err)
	}

	// 2:1 decimation: roughly half as many samples out.
	if len(out) < 31 || len(out) > 33 {
		t.Fatalf("expected ~32 output samples, got %d", len(out))
	}

	// A linear ramp must stay linear through linear interpolation.
	for i := 1; i < len(out); i++ {
		step := out[i] - out[i-1]
		if math.Abs(float64(step-2)) > 1e-4 {
			t.Fatalf("output %d: expected step 2.0 on ramp, got %f", i, step)
		}
	}
}

func TestResampleRateAndContinuityAcrossBlocks(t *testing.T) {
	r, err := NewResampler(44100, 16000)
	if err != nil {
		t.Fatal(err)
	}

	// One second of a ramp fed in capture-sized blocks.
	var total int
	var prev float32
	var havePrev bool
	pos := 0
	for pos < 44100 {
		n := 512
		if pos+n > 44100 {
			n = 44100 - pos
		}
		in := make([]float32, n)
		for i := range in {
			in[i] = float32(pos+i) / 44100
		}
		pos += n

		out, err := r.Process(in)
		if err != nil {
			t.Fatal(err)
		}
		total += len(out)

		for _, s := range out {
			if havePrev && float64(s-prev) < 0 {
				t.Fatal("resampled ramp went backwards across a block boundary")
			}
			prev = s
			havePrev = true
		}
	}

	// Within one output block of the ideal count.
	if total < 15900 || total > 16100 {
		t.Fatalf("expected ~16000 output samples for one second, got %d", total)
	}
}

func TestResampleEmptyBlock(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Process(nil); err == nil {
		t.Fatal("expected error for empty input block")
	}
}
