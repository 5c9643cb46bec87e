package audio

import (
	"fmt"
	"math"
)

// PlaybackRate maps a pitch slider percentage plus a transient bend to the
// playback rate of a deck: 1 + pitch/100 + bend/100, clamped to
// [MinRate, MaxRate]. NaN inputs count as zero.
func PlaybackRate(pitchPercent, bendPercent float64) float64 {
	if math.IsNaN(pitchPercent) {
		pitchPercent = 0
	}
	if math.IsNaN(bendPercent) {
		bendPercent = 0
	}
	rate := pitchPercent/100 + bendPercent/100 + 1
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

// ClampPitch limits a pitch percentage to the slider range.
func ClampPitch(percent float64) float64 {
	if math.IsNaN(percent) {
		return 0
	}
	return math.Max(-PitchRange, math.Min(PitchRange, percent))
}

// SnapPitch converts a raw slider value into the percentage the slider
// would show: rounded to PitchStep and clamped to the range.
func SnapPitch(raw float64) float64 {
	p := ClampPitch(raw)
	snapped := math.Round(p/PitchStep) * PitchStep
	// strip float noise so 0.30000000000000004 displays and compares as 0.3
	return math.Round(snapped*1e6) / 1e6
}

// BendPercent returns the bend offset for a bend button direction.
// Positive directions bend up, negative down, zero releases.
func BendPercent(direction int) float64 {
	switch {
	case direction > 0:
		return BendAmount
	case direction < 0:
		return -BendAmount
	}
	return 0
}

// PitchDisplay formats a pitch percentage the way the deck shows it:
// signed with one decimal.
func PitchDisplay(percent float64) string {
	s := fmt.Sprintf("%+.1f", percent)
	if s == "-0.0" {
		return "+0.0"
	}
	return s
}
