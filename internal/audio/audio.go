package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Mixer constants. These are fixed by the deck hardware being modelled and
// are intentionally not configurable.
const (
	MasterGain       = 0.9
	RampTimeConstant = 10 * time.Millisecond
	PitchRange       = 8.0 // percent, either direction
	PitchStep        = 0.1 // slider resolution in percent
	BendAmount       = 2.0 // percent while a bend button is held
	MinRate          = 0.5
	MaxRate          = 4.0
)
