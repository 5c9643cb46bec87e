// Package engine is the real-time audio engine shared by both decks and the
// mixer: a pull graph of gain nodes and players rendered in 20ms blocks, a
// suspend/resume lifecycle tied to an output device, and a frame channel
// carrying the rendered master bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/diskjockey/internal/audio"
)

var (
	// ErrClosed is returned by operations on a closed Context.
	ErrClosed = errors.New("engine: closed")
	// ErrResumeTimeout is returned when the device does not become ready in time.
	ErrResumeTimeout = errors.New("engine: device not ready")
)

// State is the lifecycle state of a Context.
type State int

const (
	Suspended State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Device is the physical output behind a Context.
type Device interface {
	// Start brings the device up (or back up after Stop). The returned
	// channel is closed once the device accepts audio.
	Start() (ready <-chan struct{}, err error)
	// Stop pauses the device.
	Stop() error
}

// Option configures a Context.
type Option func(*Context)

// WithResumeTimeout bounds how long Resume waits for the device.
func WithResumeTimeout(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.resumeTimeout = d
		}
	}
}

type resumeOp struct {
	done chan struct{}
	err  error
}

// Context owns the audio graph and its clock. Graph mutations, parameter
// changes and rendering all serialise on one mutex, so a control update is
// never observed half-applied by the render thread.
//
// A Context starts Suspended; nothing is rendered and the clock stands
// still until Resume succeeds.
type Context struct {
	device        Device
	resumeTimeout time.Duration
	frameCh       chan []int16

	mu          sync.Mutex
	state       State
	frames      int64
	destination *GainNode
	resuming    *resumeOp
	mix         []float32
}

// NewContext creates a suspended Context rendering to device.
func NewContext(device Device, opts ...Option) *Context {
	c := &Context{
		device:        device,
		resumeTimeout: 5 * time.Second,
		frameCh:       make(chan []int16, 100),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.destination = c.NewGain(1)
	return c
}

// Destination is the final node; whatever reaches it is the master output.
func (c *Context) Destination() *GainNode {
	return c.destination
}

// State returns the lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SampleRate is the engine's fixed sample rate.
func (c *Context) SampleRate() int {
	return audio.SampleRate
}

// CurrentTime returns seconds of audio rendered while running.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frames) / audio.SampleRate
}

// Frames returns the channel of rendered master frames (20ms each). It is
// closed when Run returns.
func (c *Context) Frames() <-chan []int16 {
	return c.frameCh
}

// Resume starts the device if the context is suspended and waits until it
// is running. Concurrent callers share a single attempt. A failed attempt
// leaves the context suspended so a later call can retry.
func (c *Context) Resume(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Running:
		c.mu.Unlock()
		return nil
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	}
	op := c.resuming
	if op == nil {
		op = &resumeOp{done: make(chan struct{})}
		c.resuming = op
		go c.resume(op)
	}
	c.mu.Unlock()

	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resume runs one shared start attempt. It is detached from any caller's
// context so an impatient caller cannot fail the attempt for the others.
func (c *Context) resume(op *resumeOp) {
	err := c.startDevice()

	c.mu.Lock()
	switch {
	case c.state == Closed:
		if err == nil {
			// closed while starting; the device came up anyway
			if stopErr := c.device.Stop(); stopErr != nil {
				log.Printf("Audio engine stop after close failed: %v", stopErr)
			}
		}
		err = ErrClosed
	case err == nil:
		c.state = Running
	}
	c.resuming = nil
	c.mu.Unlock()

	if err != nil {
		log.Printf("Audio engine resume failed: %v", err)
	} else {
		log.Println("Audio engine running")
	}
	op.err = err
	close(op.done)
}

func (c *Context) startDevice() error {
	ready, err := c.device.Start()
	if err != nil {
		return fmt.Errorf("engine: start device: %w", err)
	}
	timer := time.NewTimer(c.resumeTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return ErrResumeTimeout
	}
}

// Suspend stops rendering and pauses the device.
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return nil
	}
	c.state = Suspended
	return c.device.Stop()
}

// Close stops the context for good.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return nil
	}
	wasRunning := c.state == Running
	c.state = Closed
	if wasRunning {
		return c.device.Stop()
	}
	return nil
}

// Render renders n stereo frames of the master output as interleaved int16
// and advances the clock. It returns nil unless the context is running.
func (c *Context) Render(n int) []int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running || n <= 0 {
		return nil
	}
	return c.renderLocked(n)
}

func (c *Context) renderLocked(n int) []int16 {
	size := n * audio.Channels
	if cap(c.mix) < size {
		c.mix = make([]float32, size)
	}
	mix := c.mix[:size]
	clear(mix)

	c.destination.process(mix, n)
	c.frames += int64(n)

	out := make([]int16, size)
	for i, s := range mix {
		// positive values use 32767, negative use 32768
		if s >= 0 {
			out[i] = audio.ClipInt16(float64(s) * 32767)
		} else {
			out[i] = audio.ClipInt16(float64(s) * 32768)
		}
	}
	return out
}

// Run renders one frame per FrameDuration while running and publishes it
// on Frames. Blocks until ctx is cancelled or the context is closed.
func (c *Context) Run(ctx context.Context) {
	defer close(c.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.State() == Closed {
			return
		}
		frame := c.Render(audio.FrameSize)
		if frame == nil {
			continue
		}

		select {
		case c.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
