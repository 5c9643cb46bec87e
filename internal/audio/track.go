package audio

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSourceLoad is returned when a file cannot be turned into a playable
// track: unreadable, unsupported codec, or no audio in it.
var ErrSourceLoad = errors.New("could not load track")

// TrackInfo identifies a loaded track for the decks and the UI.
type TrackInfo struct {
	ID   string // source handle id, unique per load
	Name string // display label, usually the file name
	Path string // backing file, if any
}

// Track is a decoded, playable source handle: interleaved stereo float32
// samples at SampleRate. Releasing a track drops its samples and removes
// its backing file when the track owns it.
type Track struct {
	Info TrackInfo

	mu        sync.Mutex
	samples   []float32
	ownsFile  bool
	released  bool
	onRelease func()
}

// NewTrack wraps already-decoded samples. A zero ID is replaced with a
// fresh one.
func NewTrack(info TrackInfo, samples []float32) *Track {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	return &Track{Info: info, samples: samples[:len(samples)/Channels*Channels]}
}

// LoadOption configures Load.
type LoadOption func(*Track)

// WithOwnedFile makes the track delete its file on Release. Used for
// uploads, which exist only to back one track.
func WithOwnedFile() LoadOption {
	return func(t *Track) { t.ownsFile = true }
}

// WithOnRelease registers a callback run once when the track is released.
func WithOnRelease(fn func()) LoadOption {
	return func(t *Track) { t.onRelease = fn }
}

// Load decodes the file at path into a Track labelled name. mp3, wav, flac
// and ogg are decoded natively; anything else goes through ffmpeg. All
// failures wrap ErrSourceLoad.
func Load(path, name string, opts ...LoadOption) (*Track, error) {
	samples, err := decodeNative(path)
	if errors.Is(err, errNoNativeDecoder) {
		var pcm []int16
		pcm, err = DecodeFile(path)
		if err == nil {
			samples = make([]float64, len(pcm))
			for i, s := range pcm {
				samples[i] = float64(s) / 32768
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceLoad, name, err)
	}
	if len(samples) < Channels {
		return nil, fmt.Errorf("%w: %s: no audio", ErrSourceLoad, name)
	}

	f32 := make([]float32, len(samples))
	for i, s := range samples {
		f32[i] = float32(s)
	}
	t := NewTrack(TrackInfo{Name: name, Path: path}, f32)
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Samples returns the interleaved samples, or nil after Release.
func (t *Track) Samples() []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

// Frames returns the number of stereo frames.
func (t *Track) Frames() int {
	return len(t.Samples()) / Channels
}

// Duration returns the playing time at normal speed.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.Frames()) * time.Second / SampleRate
}

// Release frees the track. It is safe to call more than once.
func (t *Track) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.samples = nil
	owns, path, fn := t.ownsFile, t.Info.Path, t.onRelease
	t.mu.Unlock()

	if owns && path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Release %s: %v", path, err)
		}
	}
	if fn != nil {
		fn()
	}
}

// Released reports whether Release has been called.
func (t *Track) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}
