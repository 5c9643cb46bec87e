// Package stream distributes the master bus: a broadcaster fans rendered
// frames out to the local speaker and to browser monitors.
package stream

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultDepth is the listener buffer in frames (0.5s at 20ms/frame).
const DefaultDepth = 25

// Broadcaster fans out master frames from one source to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener receives master frames from the broadcaster. It is also an
// io.Reader of little-endian s16 PCM, which is what the speaker consumes.
type Listener struct {
	C       chan []int16
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64

	pending []byte // bytes of the current frame not yet read
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener holding up to depth frames. depth <= 0
// uses DefaultDepth. Subscribing after the source ended returns a listener
// that is already done.
func (b *Broadcaster) Subscribe(depth int) *Listener {
	if depth <= 0 {
		depth = DefaultDepth
	}
	l := &Listener{
		C:    make(chan []int16, depth),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		l.stop()
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes a listener and signals it to stop. Safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.stop()
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads frames from source and fans out to all listeners until ctx is
// done or source closes. Slow listeners get frames dropped rather than
// blocking the master bus. When source closes every listener is stopped.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				b.closeAll()
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for l := range b.listeners {
		delete(b.listeners, l)
		l.stop()
	}
}

// Done is closed when the listener is unsubscribed or the source ends.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Dropped returns how many frames were dropped because the listener was
// behind.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// Read blocks until a frame is available and copies its PCM bytes into p.
// It returns io.EOF once the listener is done and its buffer is drained.
func (l *Listener) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		select {
		case frame := <-l.C:
			l.pending = appendPCM(l.pending[:0], frame)
		case <-l.done:
			select {
			case frame := <-l.C:
				l.pending = appendPCM(l.pending[:0], frame)
			default:
				return 0, io.EOF
			}
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func appendPCM(dst []byte, frame []int16) []byte {
	for _, s := range frame {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
