// Package mixer blends two decks through an equal-power crossfader into a
// fixed master gain, and owns the lifecycle of the audio engine.
package mixer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/engine"
)

// ErrUnknownDeck is returned when a deck name is neither A nor B.
var ErrUnknownDeck = errors.New("unknown deck")

// DeckID selects one of the two decks.
type DeckID int

const (
	DeckA DeckID = iota
	DeckB
)

func (id DeckID) String() string {
	switch id {
	case DeckA:
		return "A"
	case DeckB:
		return "B"
	}
	return fmt.Sprintf("DeckID(%d)", int(id))
}

// ParseDeckID accepts "a" or "b" in either case.
func ParseDeckID(s string) (DeckID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return DeckA, nil
	case "b":
		return DeckB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDeck, s)
}

// State is the mixer's control state.
type State struct {
	Crossfader float64 `json:"crossfader"` // 0 = all A, 1 = all B
	LevelA     float64 `json:"level_a"`
	LevelB     float64 `json:"level_b"`
	MasterGain float64 `json:"master_gain"`
}

// DefaultState is centred with both decks at full level.
func DefaultState() State {
	return State{Crossfader: 0.5, LevelA: 1, LevelB: 1, MasterGain: audio.MasterGain}
}

// Gains returns the two input gains the state produces.
func (s State) Gains() (a, b float64) {
	return audio.ApplyGains(s.Crossfader, s.LevelA, s.LevelB)
}

// Graph is the mixer's part of the signal path:
//
//	deck A -> input A --\
//	                      master (0.9) -> destination
//	deck B -> input B --/
type Graph struct {
	master *engine.GainNode
	inputs [2]*engine.GainNode
}

// NewGraph builds the mixer on ctx with the input gains for st already in
// place.
func NewGraph(ctx *engine.Context, st State) *Graph {
	g := &Graph{master: ctx.NewGain(audio.MasterGain)}
	g.master.Connect(ctx.Destination())

	a, b := st.Gains()
	g.inputs[DeckA] = ctx.NewGain(a)
	g.inputs[DeckB] = ctx.NewGain(b)
	for _, in := range g.inputs {
		in.Connect(g.master)
	}
	return g
}

// Input is the summing input a deck connects to.
func (g *Graph) Input(id DeckID) *engine.GainNode {
	return g.inputs[id]
}

// Master is the fixed master gain stage.
func (g *Graph) Master() *engine.GainNode {
	return g.master
}

// Apply ramps both inputs toward the gains for st.
func (g *Graph) Apply(st State) {
	a, b := st.Gains()
	g.inputs[DeckA].RampGain(a, audio.RampTimeConstant)
	g.inputs[DeckB].RampGain(b, audio.RampTimeConstant)
}
