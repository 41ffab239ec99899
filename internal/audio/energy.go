package audio

import "math"

const (
	// DefaultMinEnergy is the peak amplitude below which an utterance is not transcribed.
	DefaultMinEnergy = 1500

	normalizeFloor   = 100
	normalizeTarget  = 20000.0
	normalizeMaxGain = 20.0
	normalizeMinGain = 1.5
)

// EnergyGate rejects near-silent utterances before they reach the transcription service.
type EnergyGate struct {
	MinPeak int
}

func NewEnergyGate(minPeak int) EnergyGate {
	if minPeak <= 0 {
		minPeak = DefaultMinEnergy
	}
	return EnergyGate{MinPeak: minPeak}
}

// Admit reports the utterance peak and whether it clears the threshold.
func (g EnergyGate) Admit(samples []int16) (int, bool) {
	peak := Peak(samples)
	return peak, len(samples) > 0 && peak >= g.MinPeak
}

// Normalize boosts quiet recordings toward a fixed target peak. Signals that are
// effectively silent, or already loud enough that the gain would be small, are
// returned unchanged. The input slice is never modified.
func Normalize(samples []int16) []int16 {
	peak := Peak(samples)
	if peak < normalizeFloor {
		return samples
	}
	gain := math.Min(normalizeTarget/float64(peak), normalizeMaxGain)
	if gain <= normalizeMinGain {
		return samples
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}
