package audio

// Resample converts samples from one rate to another with linear
// interpolation. Equal rates return the input unchanged.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		return []float32{}
	}
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}

// ToRate returns f converted to rate.
func (f Frame) ToRate(rate int) Frame {
	if f.SampleRate == rate {
		return f
	}
	return Frame{Samples: Resample(f.Samples, f.SampleRate, rate), SampleRate: rate}
}
