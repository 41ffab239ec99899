package audio

// Resample converts mono PCM16 between sample rates with linear interpolation.
func Resample(samples []int16, from, to int) []int16 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) * to / from
	out := make([]int16, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// FitLength truncates or zero-pads samples to exactly n.
func FitLength(samples []int16, n int) []int16 {
	if len(samples) == n {
		return samples
	}
	out := make([]int16, n)
	copy(out, samples)
	return out
}
