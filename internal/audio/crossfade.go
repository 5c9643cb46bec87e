package audio

import "math"

// EqualPower returns the constant-power crossfade coefficients for a
// crossfader position x (0 = all deck A, 1 = all deck B):
//
//	a = cos(x * π/2), b = cos((1-x) * π/2)
//
// so a² + b² = 1 everywhere. x is not clamped; callers keep it in [0,1].
func EqualPower(x float64) (a, b float64) {
	a = math.Cos(x * math.Pi / 2)
	b = math.Cos((1 - x) * math.Pi / 2)
	// cos(π/2) is 6e-17, not 0; snap the ends so a closed side is silent.
	if math.Abs(a) < 1e-12 {
		a = 0
	}
	if math.Abs(b) < 1e-12 {
		b = 0
	}
	return a, b
}

// ApplyGains combines the crossfade coefficients at x with each deck's
// level into the two gains that feed the master bus.
func ApplyGains(x, levelA, levelB float64) (gainA, gainB float64) {
	a, b := EqualPower(x)
	return a * levelA, b * levelB
}

// ClampUnit limits v to [0,1]. NaN becomes 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClipInt16 rounds toward zero and clips to the int16 range.
func ClipInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}
