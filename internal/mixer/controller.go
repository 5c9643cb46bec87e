package mixer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/deck"
	"github.com/satindergrewal/diskjockey/internal/engine"
)

// ErrEngineUnavailable means the audio engine does not exist yet and could
// not be created. Nothing was changed.
var ErrEngineUnavailable = errors.New("audio engine unavailable")

// Notices shown on a deck after a failed command.
const (
	NoticeLoadFailed  = "could not load"
	NoticePlayFailed  = "playback could not start"
	subscriberBacklog = 8
)

// EngineFactory creates the session's audio engine. It runs on the first
// user gesture and again after a failure.
type EngineFactory func() (*engine.Context, error)

// Option configures a Controller.
type Option func(*Controller)

// WithDeckOptions applies opts to both decks.
func WithDeckOptions(opts ...deck.Option) Option {
	return func(c *Controller) { c.deckOpts = append(c.deckOpts, opts...) }
}

// DeckSnapshot is a deck's state plus the notice left by its last failure.
type DeckSnapshot struct {
	deck.Snapshot
	Notice string `json:"notice,omitempty"`
}

// Snapshot is everything the UI renders.
type Snapshot struct {
	Engine string       `json:"engine"`
	Mixer  State        `json:"mixer"`
	A      DeckSnapshot `json:"a"`
	B      DeckSnapshot `json:"b"`
}

// Controller routes UI commands to the decks and the mixer. It creates the
// engine lazily and is the only owner of mixer state.
type Controller struct {
	factory  EngineFactory
	deckOpts []deck.Option
	decks    [2]*deck.Deck

	mu      sync.Mutex
	engine  *engine.Context
	graph   *Graph
	state   State
	notices [2]string
	closed  bool

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

// NewController creates a controller with two empty decks and no engine.
func NewController(factory EngineFactory, opts ...Option) *Controller {
	c := &Controller{
		factory: factory,
		state:   DefaultState(),
		subs:    make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, id := range []DeckID{DeckA, DeckB} {
		opts := append([]deck.Option{}, c.deckOpts...)
		opts = append(opts, deck.WithLevelListener(func(level float64) {
			c.levelChanged(id, level)
		}))
		c.decks[id] = deck.New(id.String(), opts...)
	}
	return c
}

// Deck returns one of the two decks. A level set on the deck directly
// reaches the mixer state just as Controller.SetLevel does.
func (c *Controller) Deck(id DeckID) *deck.Deck {
	return c.decks[id]
}

// Engine returns the audio engine, or nil before the first gesture.
func (c *Controller) Engine() *engine.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Gesture records a user interaction. The first one creates the engine and
// wires both decks through the mixer; later ones do nothing.
func (c *Controller) Gesture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureEngineLocked()
}

func (c *Controller) ensureEngineLocked() error {
	if c.closed {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, engine.ErrClosed)
	}
	if c.engine != nil {
		return nil
	}
	eng, err := c.factory()
	if err != nil {
		log.Printf("Audio engine creation failed: %v", err)
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	c.graph = NewGraph(eng, c.state)
	for id, d := range c.decks {
		d.Attach(eng, c.graph.Input(DeckID(id)))
	}
	c.engine = eng
	log.Printf("Audio engine created (%d Hz)", eng.SampleRate())
	return nil
}

// LoadTrack installs t on a deck. On failure the deck keeps its previous
// track and shows a notice; the other deck is untouched.
func (c *Controller) LoadTrack(id DeckID, t *audio.Track) error {
	if err := c.Gesture(); err != nil {
		return err
	}
	err := c.decks[id].LoadSource(t)
	if err != nil {
		log.Printf("Deck %s load failed: %v", id, err)
	}
	c.finish(id, err, NoticeLoadFailed)
	return err
}

// LoadFailed records a load that failed before a track existed, such as a
// decode error.
func (c *Controller) LoadFailed(id DeckID, err error) {
	log.Printf("Deck %s load failed: %v", id, err)
	c.finish(id, err, NoticeLoadFailed)
}

// TogglePlay plays or pauses a deck, resuming the engine first.
func (c *Controller) TogglePlay(ctx context.Context, id DeckID) error {
	if err := c.Gesture(); err != nil {
		return err
	}
	err := c.decks[id].TogglePlay(ctx)
	if err != nil {
		log.Printf("Deck %s play failed: %v", id, err)
	}
	c.finish(id, err, NoticePlayFailed)
	return err
}

// CueTap sets the cue point (or returns to it, see deck.CueTap).
func (c *Controller) CueTap(id DeckID) error {
	return c.command(func() { c.decks[id].CueTap() })
}

// CueHoldStart starts a cue preview. Without a cue point it does nothing.
func (c *Controller) CueHoldStart(ctx context.Context, id DeckID) error {
	if err := c.Gesture(); err != nil {
		return err
	}
	err := c.decks[id].CueHoldStart(ctx)
	if errors.Is(err, deck.ErrNoCue) {
		err = nil
	}
	if err != nil {
		log.Printf("Deck %s cue preview failed: %v", id, err)
	}
	c.finish(id, err, NoticePlayFailed)
	return err
}

// CueHoldEnd ends a cue preview.
func (c *Controller) CueHoldEnd(id DeckID) error {
	return c.command(func() { c.decks[id].CueHoldEnd() })
}

// SetPitch sets a deck's pitch slider in percent.
func (c *Controller) SetPitch(id DeckID, percent float64) error {
	return c.command(func() { c.decks[id].SetPitch(percent) })
}

// BendStart holds a pitch bend up (direction > 0) or down.
func (c *Controller) BendStart(id DeckID, direction int) error {
	return c.command(func() { c.decks[id].BendStart(direction) })
}

// BendEnd releases a pitch bend.
func (c *Controller) BendEnd(id DeckID) error {
	return c.command(func() { c.decks[id].BendEnd() })
}

// SetLevel sets a deck's trim and re-applies the crossfade.
func (c *Controller) SetLevel(id DeckID, gain float64) error {
	if err := c.Gesture(); err != nil {
		return err
	}
	c.decks[id].SetLevel(gain)
	return nil
}

// levelChanged folds a deck's new level into the mixer state and
// recomputes both input gains.
func (c *Controller) levelChanged(id DeckID, level float64) {
	c.mu.Lock()
	if id == DeckA {
		c.state.LevelA = level
	} else {
		c.state.LevelB = level
	}
	if c.graph != nil {
		c.graph.Apply(c.state)
	}
	c.mu.Unlock()

	c.publish()
}

// SetCrossfader moves the crossfader, clamped to [0,1].
func (c *Controller) SetCrossfader(position float64) error {
	c.mu.Lock()
	if err := c.ensureEngineLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.Crossfader = audio.ClampUnit(position)
	c.graph.Apply(c.state)
	c.mu.Unlock()

	c.publish()
	return nil
}

// MixerState returns the crossfader and levels.
func (c *Controller) MixerState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot captures the full observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{Engine: "none", Mixer: c.state}
	if c.engine != nil {
		s.Engine = c.engine.State().String()
	}
	notices := c.notices
	c.mu.Unlock()

	s.A = DeckSnapshot{Snapshot: c.decks[DeckA].Snapshot(), Notice: notices[DeckA]}
	s.B = DeckSnapshot{Snapshot: c.decks[DeckB].Snapshot(), Notice: notices[DeckB]}
	return s
}

// Subscribe returns a channel that receives a snapshot after every
// command. Slow subscribers miss updates. Call cancel to unsubscribe.
func (c *Controller) Subscribe() (updates <-chan Snapshot, cancel func()) {
	ch := make(chan Snapshot, subscriberBacklog)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

// Close releases both decks, closes the engine and ends all
// subscriptions.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	eng := c.engine
	c.mu.Unlock()

	for _, d := range c.decks {
		d.Close()
	}

	c.subMu.Lock()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()

	if eng != nil {
		return eng.Close()
	}
	return nil
}

// command runs a deck operation that cannot fail once the engine exists.
func (c *Controller) command(fn func()) error {
	if err := c.Gesture(); err != nil {
		return err
	}
	fn()
	c.publish()
	return nil
}

// finish records the outcome of a fallible deck command and publishes.
func (c *Controller) finish(id DeckID, err error, notice string) {
	c.mu.Lock()
	if err != nil {
		c.notices[id] = notice
	} else {
		c.notices[id] = ""
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
