package audio

import "fmt"

// Resampler converts blocks of mono samples from the hardware rate to the
// canonical rate by linear interpolation. It keeps the last input sample
// between calls so block boundaries stay continuous.
type Resampler struct {
	from   int
	to     int
	ratio  float64 // input samples consumed per output sample
	last   float32 // final sample of the previous block
	pos    float64 // fractional read position, 0 == r.last
	primed bool
}

// NewResampler returns a resampler from one rate to another. Equal rates
// are rejected; callers should bypass resampling entirely in that case.
func NewResampler(from, to int) (*Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", from, to)
	}
	if from == to {
		return nil, fmt.Errorf("resampler not needed for equal rates (%d)", from)
	}
	return &Resampler{
		from:  from,
		to:    to,
		ratio: float64(from) / float64(to),
	}, nil
}

// Process converts one block of input samples. The output length varies by
// a sample between calls depending on phase.
func (r *Resampler) Process(in []float32) ([]float32, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("empty input block")
	}

	if !r.primed {
		// No sample precedes the very first block.
		r.last = in[0]
		r.pos = 1
		r.primed = true
	}

	// Read positions index a timeline where 0 is the carried previous
	// sample and i+1 is in[i].
	at := func(i int) float32 {
		if i == 0 {
			return r.last
		}
		return in[i-1]
	}

	out := make([]float32, 0, int(float64(len(in))/r.ratio)+2)
	for int(r.pos) < len(in) {
		i := int(r.pos)
		f := float32(r.pos - float64(i))
		a, b := at(i), at(i+1)
		out = append(out, a+f*(b-a))
		r.pos += r.ratio
	}

	// Rebase the position so 0 points at this block's final sample.
	r.pos -= float64(len(in))
	r.last = in[len(in)-1]

	return out, nil
}
