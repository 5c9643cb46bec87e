package engine

import (
	"math"

	"github.com/satindergrewal/diskjockey/internal/audio"
)

// Player plays an interleaved stereo buffer at a variable rate, reading
// between samples with linear interpolation. A rate change takes effect on
// the next rendered sample without restarting playback.
type Player struct {
	node
	buf     []float32
	pos     float64 // in frames
	rate    float64
	playing bool
	ended   bool
}

// NewPlayer creates a detached, empty player at rate 1.
func (c *Context) NewPlayer() *Player {
	p := &Player{rate: 1}
	p.node = node{ctx: c, self: p}
	return p
}

// SetBuffer replaces the audio, stops playback and rewinds. A nil buffer
// empties the player.
func (p *Player) SetBuffer(samples []float32) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.buf = samples[:len(samples)/audio.Channels*audio.Channels]
	p.pos = 0
	p.playing = false
	p.ended = false
}

// Play starts playback from the current position. A player that ran off
// the end starts again from the top. It returns false if there is nothing
// to play.
func (p *Player) Play() bool {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if len(p.buf) < audio.Channels {
		return false
	}
	if p.ended || int(p.pos) >= p.totalLocked()-1 {
		p.pos = 0
		p.ended = false
	}
	p.playing = true
	return true
}

// Pause stops playback and keeps the position.
func (p *Player) Pause() {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.playing = false
}

// Playing reports whether the player is producing audio.
func (p *Player) Playing() bool {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.playing
}

// Ended reports whether playback stopped at the end of the buffer.
func (p *Player) Ended() bool {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.ended
}

// Seek moves the playhead to sec, clamped to the buffer.
func (p *Player) Seek(sec float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	pos := sec * audio.SampleRate
	if pos < 0 || math.IsNaN(pos) {
		pos = 0
	}
	if total := float64(p.totalLocked()); pos > total {
		pos = total
	}
	p.pos = pos
	p.ended = false
}

// Position returns the playhead in seconds of source audio.
func (p *Player) Position() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.pos / audio.SampleRate
}

// Duration returns the buffer length in seconds of source audio.
func (p *Player) Duration() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return float64(p.totalLocked()) / audio.SampleRate
}

// SetRate sets the playback rate.
func (p *Player) SetRate(rate float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.rate = rate
}

// Rate returns the playback rate.
func (p *Player) Rate() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.rate
}

func (p *Player) totalLocked() int {
	return len(p.buf) / audio.Channels
}

func (p *Player) process(dst []float32, frames int) {
	if !p.playing {
		return
	}
	total := p.totalLocked()
	buf := p.buf
	for i := 0; i < frames; i++ {
		idx := int(p.pos)
		if idx >= total-1 {
			p.pos = float64(total)
			p.playing = false
			p.ended = true
			return
		}
		frac := float32(p.pos - float64(idx))
		j := idx * audio.Channels
		l := buf[j] + (buf[j+2]-buf[j])*frac
		r := buf[j+1] + (buf[j+3]-buf[j+1])*frac
		dst[2*i] += l
		dst[2*i+1] += r
		p.pos += p.rate
	}
}
