package engine

import (
	"time"

	"github.com/satindergrewal/diskjockey/internal/audio"
)

// Node is a stage of the render graph. Every node has at most one
// destination; its output is summed into that destination's input.
type Node interface {
	// Connect routes the node into dst, replacing any previous destination.
	Connect(dst *GainNode)
	// Disconnect detaches the node. Disconnecting a detached node is a no-op.
	Disconnect()

	// process adds frames of output into dst. Called with the context lock held.
	process(dst []float32, frames int)
}

type node struct {
	ctx  *Context
	self Node
	dest *GainNode
}

func (n *node) Connect(dst *GainNode) {
	if dst.ctx != n.ctx {
		panic("engine: connect across contexts")
	}
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	if n.dest == dst {
		return
	}
	n.disconnectLocked()
	dst.inputs = append(dst.inputs, n.self)
	n.dest = dst
}

func (n *node) Disconnect() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	n.disconnectLocked()
}

// Connected reports whether the node has a destination.
func (n *node) Connected() bool {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return n.dest != nil
}

func (n *node) disconnectLocked() {
	if n.dest == nil {
		return
	}
	inputs := n.dest.inputs
	for i, in := range inputs {
		if in == n.self {
			n.dest.inputs = append(inputs[:i], inputs[i+1:]...)
			break
		}
	}
	n.dest = nil
}

// GainNode sums its inputs and scales the result by a smoothed gain.
type GainNode struct {
	node
	gain    audio.Param
	inputs  []Node
	scratch []float32
}

// NewGain creates a detached gain node starting at value.
func (c *Context) NewGain(value float64) *GainNode {
	g := &GainNode{gain: audio.NewParam(value)}
	g.node = node{ctx: c, self: g}
	return g
}

// Gain returns the gain currently applied.
func (g *GainNode) Gain() float64 {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	return g.gain.Value()
}

// GainTarget returns the gain the node is ramping to.
func (g *GainNode) GainTarget() float64 {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	return g.gain.Target()
}

// SetGain sets the gain immediately.
func (g *GainNode) SetGain(v float64) {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.gain.SetValue(v)
}

// RampGain glides toward v with time constant tau, starting at the next
// rendered sample.
func (g *GainNode) RampGain(v float64, tau time.Duration) {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.gain.SetTarget(v, tau, audio.SampleRate)
}

func (g *GainNode) process(dst []float32, frames int) {
	size := frames * audio.Channels
	if cap(g.scratch) < size {
		g.scratch = make([]float32, size)
	}
	buf := g.scratch[:size]
	clear(buf)

	for _, in := range g.inputs {
		in.process(buf, frames)
	}

	// The gain advances even when silent: ramps run on the clock, not on signal.
	for i := 0; i < frames; i++ {
		v := float32(g.gain.Next())
		dst[2*i] += buf[2*i] * v
		dst[2*i+1] += buf[2*i+1] * v
	}
}
