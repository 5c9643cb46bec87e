package audio

import (
	"math"
	"time"
)

// settleEpsilon is how close a ramp must get to its target before it snaps.
const settleEpsilon = 1e-5

// Param is a gain value that can jump or glide toward a target, sample by
// sample, like a Web Audio AudioParam driven by setTargetAtTime.
//
// Param is not safe for concurrent use; the engine serialises access.
type Param struct {
	value  float64
	target float64
	coeff  float64 // per-sample decay toward target; 0 means jump
}

// NewParam returns a Param settled at v.
func NewParam(v float64) Param {
	return Param{value: v, target: v}
}

// Value returns the current value.
func (p *Param) Value() float64 {
	return p.value
}

// Target returns the value the parameter is heading to.
func (p *Param) Target() float64 {
	return p.target
}

// SetValue jumps to v immediately and cancels any ramp.
func (p *Param) SetValue(v float64) {
	p.value = v
	p.target = v
	p.coeff = 0
}

// SetTarget starts an exponential approach to v with time constant tau,
// evaluated at sampleRate. After tau the remaining distance is 1/e of the
// start. A non-positive tau jumps.
func (p *Param) SetTarget(v float64, tau time.Duration, sampleRate int) {
	if tau <= 0 || sampleRate <= 0 {
		p.SetValue(v)
		return
	}
	p.target = v
	p.coeff = math.Exp(-1 / (tau.Seconds() * float64(sampleRate)))
}

// Settled reports whether the value has reached the target.
func (p *Param) Settled() bool {
	return p.value == p.target
}

// Next advances one sample and returns the value to apply to it.
func (p *Param) Next() float64 {
	if p.value == p.target {
		return p.value
	}
	p.value = p.target + (p.value-p.target)*p.coeff
	if math.Abs(p.value-p.target) < settleEpsilon {
		p.value = p.target
	}
	return p.value
}
