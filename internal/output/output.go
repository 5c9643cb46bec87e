// Package output provides the physical outputs an engine renders to.
package output

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/hajimehoshi/oto/v2"

	"github.com/satindergrewal/diskjockey/internal/audio"
)

// Null is a device that is always ready and plays nothing locally. Rendered
// frames still reach the broadcaster. Used for stream-only setups and tests.
type Null struct{}

func (Null) Start() (<-chan struct{}, error) {
	ready := make(chan struct{})
	close(ready)
	return ready, nil
}

func (Null) Stop() error { return nil }

// Speaker plays the master bus on the local sound card through oto. The oto
// context is created on the first Start, since there can be only one per
// process and some platforms refuse it before the user interacts.
type Speaker struct {
	src io.Reader

	mu     sync.Mutex
	ctx    *oto.Context
	ready  chan struct{}
	player oto.Player
}

// NewSpeaker creates a speaker that will play PCM read from src
// (interleaved int16 little-endian, 48kHz stereo).
func NewSpeaker(src io.Reader) *Speaker {
	return &Speaker{src: src}
}

// Start opens the sound card on first use and resumes it afterwards.
func (s *Speaker) Start() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		ctx, ready, err := oto.NewContext(audio.SampleRate, audio.Channels, oto.FormatSignedInt16LE)
		if err != nil {
			return nil, fmt.Errorf("open audio device: %w", err)
		}
		s.ctx, s.ready = ctx, ready
		go s.startPlayer()
		return ready, nil
	}

	if err := s.ctx.Resume(); err != nil {
		return nil, fmt.Errorf("resume audio device: %w", err)
	}
	return s.ready, nil
}

// Stop suspends the sound card.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	return s.ctx.Suspend()
}

// Close releases the player.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

func (s *Speaker) startPlayer() {
	<-s.ready

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return
	}
	s.player = s.ctx.NewPlayer(s.src)
	s.player.Play()
	log.Println("Local audio output started")
}
