// Package deck implements one turntable-style deck: its source-to-output
// signal path and its transport and cue state machine.
package deck

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/engine"
)

var (
	// ErrPlaybackStart means the engine could not be resumed for a play
	// request. The deck stays stopped; a later gesture may retry.
	ErrPlaybackStart = errors.New("playback could not start")
	// ErrNoCue is returned by CueHoldStart when no cue point is set.
	ErrNoCue = errors.New("no cue point set")
)

// NoTrackLabel is the label of a deck with nothing loaded.
const NoTrackLabel = "no track loaded"

// DefaultCueDebounce is how long after a cue release a tap is ignored.
const DefaultCueDebounce = 250 * time.Millisecond

// cueSnapWindow: a tap this close to the cue point (seconds) while stopped
// returns to the cue instead of moving it.
const cueSnapWindow = 0.05

// State is the transport state of a deck.
type State int

const (
	Empty State = iota
	Stopped
	Playing
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Deck.
type Option func(*Deck)

// WithClock replaces time.Now for the cue debounce window.
func WithClock(now func() time.Time) Option {
	return func(d *Deck) { d.now = now }
}

// WithCueDebounce sets the window after a cue release in which taps are
// ignored.
func WithCueDebounce(window time.Duration) Option {
	return func(d *Deck) { d.debounce = window }
}

// WithLevelListener registers fn to be called with the new level after
// every SetLevel. It runs without the deck lock held.
func WithLevelListener(fn func(level float64)) Option {
	return func(d *Deck) { d.onLevel = fn }
}

// Deck owns one source, one gain stage and the transport/cue state.
// Operations on a deck without a source, or before Attach, are no-ops.
type Deck struct {
	name     string
	now      func() time.Time
	debounce time.Duration
	onLevel  func(float64)

	mu      sync.Mutex
	engine  *engine.Context
	player  *engine.Player
	gain    *engine.GainNode
	track   *audio.Track
	state   State
	cueHeld bool
	hasCue  bool
	cue     float64 // seconds
	pitch   float64 // percent, persistent
	bend    float64 // percent, transient
	level   float64

	// holdReleased is when the last cue hold ended; taps inside the
	// debounce window after it belong to the release gesture.
	holdReleased time.Time
}

// New creates an empty deck.
func New(name string, opts ...Option) *Deck {
	d := &Deck{
		name:     name,
		now:      time.Now,
		debounce: DefaultCueDebounce,
		level:    1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the deck's display name.
func (d *Deck) Name() string {
	return d.name
}

// Attach builds the deck's signal path (player -> gain) on ctx and routes
// it into out. Calling it again only re-routes the gain stage.
func (d *Deck) Attach(ctx *engine.Context, out *engine.GainNode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.gain.Connect(out)
		return
	}
	d.engine = ctx
	d.player = ctx.NewPlayer()
	d.gain = ctx.NewGain(d.level)
	d.player.Connect(d.gain)
	d.gain.Connect(out)
	d.applyRateLocked()
	if d.track != nil {
		d.player.SetBuffer(d.track.Samples())
	}
}

// LoadSource installs a new track, releasing the previous one. The deck
// stops; the cue point is kept. An unusable track is rejected and the deck
// keeps its previous state.
func (d *Deck) LoadSource(t *audio.Track) error {
	if t == nil || t.Frames() == 0 {
		return fmt.Errorf("%w: empty source", audio.ErrSourceLoad)
	}

	d.mu.Lock()
	prev := d.track
	d.track = t
	if d.player != nil {
		d.player.SetBuffer(t.Samples())
	}
	d.state = Stopped
	d.cueHeld = false
	d.mu.Unlock()

	if prev != nil && prev != t {
		prev.Release()
	}
	log.Printf("Deck %s loaded: %s", d.name, t.Info.Name)
	return nil
}

// TogglePlay pauses a playing deck or starts a stopped one from the
// current position. The engine is resumed first; if that fails the deck
// is left stopped and ErrPlaybackStart is returned.
func (d *Deck) TogglePlay(ctx context.Context) error {
	eng, ok := d.ready()
	if !ok {
		return nil
	}
	if err := eng.Resume(ctx); err != nil {
		d.failStart()
		return fmt.Errorf("%w: %v", ErrPlaybackStart, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return nil
	}
	d.syncEndedLocked()

	if d.state == Playing {
		d.player.Pause()
		d.state = Stopped
		d.cueHeld = false
		return nil
	}
	if !d.player.Play() {
		return ErrPlaybackStart
	}
	d.state = Playing
	return nil
}

// SetPitch stores the pitch slider percentage (clamped to ±8) and applies
// the resulting rate to playback immediately.
func (d *Deck) SetPitch(percent float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pitch = audio.ClampPitch(percent)
	d.applyRateLocked()
}

// BendStart holds a temporary ±2% bend in the given direction.
func (d *Deck) BendStart(direction int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bend = audio.BendPercent(direction)
	d.applyRateLocked()
}

// BendEnd releases the bend. Pointer-up and pointer-leave both end here.
func (d *Deck) BendEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bend = 0
	d.applyRateLocked()
}

// CueTap sets the cue point to the current position. It reports whether
// the tap did anything: taps on an empty deck, and taps within the debounce
// window after a cue release, are ignored. A tap while stopped within 50ms
// of the existing cue returns the playhead to the cue instead.
func (d *Deck) CueTap() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil || d.player == nil {
		return false
	}
	if !d.holdReleased.IsZero() && d.now().Sub(d.holdReleased) < d.debounce {
		return false
	}
	d.syncEndedLocked()

	pos := d.player.Position()
	if d.hasCue && d.state != Playing && math.Abs(pos-d.cue) <= cueSnapWindow {
		d.player.Seek(d.cue)
		return true
	}
	d.cue = pos
	d.hasCue = true
	return true
}

// CueHoldStart previews from the cue point: seek to it and play until
// CueHoldEnd. Without a cue point it returns ErrNoCue and does nothing.
func (d *Deck) CueHoldStart(ctx context.Context) error {
	d.mu.Lock()
	if d.track == nil || d.engine == nil {
		d.mu.Unlock()
		return nil
	}
	if !d.hasCue {
		d.mu.Unlock()
		return ErrNoCue
	}
	if d.cueHeld {
		d.mu.Unlock()
		return nil
	}
	eng := d.engine
	d.mu.Unlock()

	if err := eng.Resume(ctx); err != nil {
		d.failStart()
		return fmt.Errorf("%w: %v", ErrPlaybackStart, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil || !d.hasCue {
		return nil
	}
	d.player.Seek(d.cue)
	if !d.player.Play() {
		return ErrPlaybackStart
	}
	d.state = Playing
	d.cueHeld = true
	return nil
}

// CueHoldEnd ends a cue preview: pause and snap back to the cue point.
// It does nothing unless a preview is in progress.
func (d *Deck) CueHoldEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.cueHeld {
		return
	}
	d.player.Pause()
	d.player.Seek(d.cue)
	d.state = Stopped
	d.cueHeld = false
	d.holdReleased = d.now()
}

// SetLevel sets the deck's output gain, clamped to [0,1].
func (d *Deck) SetLevel(gain float64) {
	d.mu.Lock()
	d.level = audio.ClampUnit(gain)
	if d.gain != nil {
		d.gain.SetGain(d.level)
	}
	level := d.level
	d.mu.Unlock()

	if d.onLevel != nil {
		d.onLevel(level)
	}
}

// Level returns the deck's output gain.
func (d *Deck) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// State returns the transport state.
func (d *Deck) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncEndedLocked()
	return d.state
}

// IsPlaying reports whether the deck is playing.
func (d *Deck) IsPlaying() bool {
	return d.State() == Playing
}

// CueHeld reports whether a cue preview is in progress.
func (d *Deck) CueHeld() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cueHeld
}

// CuePoint returns the cue point in seconds and whether one is set.
func (d *Deck) CuePoint() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cue, d.hasCue
}

// Pitch returns the pitch slider percentage.
func (d *Deck) Pitch() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pitch
}

// Rate returns the effective playback rate.
func (d *Deck) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return audio.PlaybackRate(d.pitch, d.bend)
}

// Position returns the playhead in seconds, 0 when nothing is attached.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0
	}
	return d.player.Position()
}

// Label returns the loaded track's name or NoTrackLabel.
func (d *Deck) Label() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return NoTrackLabel
	}
	return d.track.Info.Name
}

// Snapshot is the observable state of a deck.
type Snapshot struct {
	Name         string   `json:"name"`
	State        string   `json:"state"`
	Playing      bool     `json:"playing"`
	CueHeld      bool     `json:"cue_held"`
	Pitch        float64  `json:"pitch"`
	PitchDisplay string   `json:"pitch_display"`
	Bend         float64  `json:"bend"`
	Rate         float64  `json:"rate"`
	Level        float64  `json:"level"`
	Cue          *float64 `json:"cue"`
	Position     float64  `json:"position"`
	Duration     float64  `json:"duration"`
	Label        string   `json:"label"`
	Handle       string   `json:"handle,omitempty"`
}

// Snapshot captures the deck's state in one consistent read.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncEndedLocked()

	s := Snapshot{
		Name:         d.name,
		State:        d.state.String(),
		Playing:      d.state == Playing,
		CueHeld:      d.cueHeld,
		Pitch:        d.pitch,
		PitchDisplay: audio.PitchDisplay(d.pitch),
		Bend:         d.bend,
		Rate:         audio.PlaybackRate(d.pitch, d.bend),
		Level:        d.level,
		Label:        NoTrackLabel,
	}
	if d.hasCue {
		cue := d.cue
		s.Cue = &cue
	}
	if d.track != nil {
		s.Label = d.track.Info.Name
		s.Handle = d.track.Info.ID
		s.Duration = d.track.Duration().Seconds()
	}
	if d.player != nil {
		s.Position = d.player.Position()
	}
	return s
}

// Close releases the loaded track and detaches the signal path.
func (d *Deck) Close() {
	d.mu.Lock()
	t := d.track
	d.track = nil
	d.state = Empty
	d.cueHeld = false
	if d.player != nil {
		d.player.SetBuffer(nil)
		d.player.Disconnect()
		d.gain.Disconnect()
	}
	d.mu.Unlock()

	if t != nil {
		t.Release()
	}
}

// ready returns the engine when the deck has something to play.
func (d *Deck) ready() (*engine.Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil || d.engine == nil {
		return nil, false
	}
	return d.engine, true
}

// failStart leaves the deck stopped after a rejected play request.
func (d *Deck) failStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Pause()
	}
	if d.track != nil {
		d.state = Stopped
	}
	d.cueHeld = false
}

// syncEndedLocked moves a deck whose player ran off the end to Stopped.
func (d *Deck) syncEndedLocked() {
	if d.state == Playing && d.player != nil && d.player.Ended() {
		d.state = Stopped
		d.cueHeld = false
	}
}

func (d *Deck) applyRateLocked() {
	if d.player != nil {
		d.player.SetRate(audio.PlaybackRate(d.pitch, d.bend))
	}
}
