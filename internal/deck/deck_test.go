package deck

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/engine"
)

type testDevice struct {
	starts atomic.Int32
	err    error
	// gate, when set, holds the device not-ready until closed
	gate chan struct{}
}

func (d *testDevice) Start() (<-chan struct{}, error) {
	d.starts.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	if d.gate != nil {
		return d.gate, nil
	}
	ready := make(chan struct{})
	close(ready)
	return ready, nil
}

func (d *testDevice) Stop() error { return nil }

type clock struct{ t time.Time }

func newClock() *clock                   { return &clock{t: time.Unix(1_700_000_000, 0)} }
func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func track(name string, seconds float64) *audio.Track {
	frames := int(seconds * audio.SampleRate)
	buf := make([]float32, frames*audio.Channels)
	for i := range buf {
		buf[i] = 0.25
	}
	return audio.NewTrack(audio.TrackInfo{Name: name}, buf)
}

// attached returns a deck wired straight into the destination of a fresh
// suspended context.
func attached(t *testing.T, opts ...Option) (*Deck, *engine.Context, *testDevice) {
	t.Helper()
	dev := &testDevice{}
	ctx := engine.NewContext(dev)
	d := New("A", opts...)
	d.Attach(ctx, ctx.Destination())
	return d, ctx, dev
}

// --- Load ---

func TestNewDeckIsEmpty(t *testing.T) {
	d := New("A")
	assert.Equal(t, Empty, d.State())
	assert.False(t, d.IsPlaying())
	assert.Equal(t, NoTrackLabel, d.Label())
	assert.Equal(t, 1.0, d.Level())
	assert.Equal(t, 1.0, d.Rate())
	_, ok := d.CuePoint()
	assert.False(t, ok)
}

func TestEmptyDeckIgnoresTransport(t *testing.T) {
	d, _, dev := attached(t)
	require.NoError(t, d.TogglePlay(context.Background()))
	require.NoError(t, d.CueHoldStart(context.Background()))
	assert.False(t, d.CueTap())
	d.CueHoldEnd()
	assert.Equal(t, Empty, d.State())
	assert.Equal(t, int32(0), dev.starts.Load(), "empty deck must not start the engine")
}

func TestLoadSourceStopsAndLabels(t *testing.T) {
	d, _, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	require.NoError(t, d.TogglePlay(context.Background()))
	assert.True(t, d.IsPlaying())

	require.NoError(t, d.LoadSource(track("two.mp3", 1)))
	assert.Equal(t, Stopped, d.State())
	assert.Equal(t, "two.mp3", d.Label())
	assert.Equal(t, 0.0, d.Position())
}

func TestLoadSourceReleasesPrevious(t *testing.T) {
	d, _, _ := attached(t)
	first := track("one.mp3", 1)
	require.NoError(t, d.LoadSource(first))
	require.NoError(t, d.LoadSource(track("two.mp3", 1)))
	assert.True(t, first.Released())
}

func TestLoadSourceRejectsEmptyTrack(t *testing.T) {
	d, _, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))

	err := d.LoadSource(audio.NewTrack(audio.TrackInfo{Name: "empty"}, nil))
	assert.ErrorIs(t, err, audio.ErrSourceLoad)
	assert.Equal(t, "one.mp3", d.Label())
	assert.ErrorIs(t, d.LoadSource(nil), audio.ErrSourceLoad)
}

func TestLoadBeforeAttach(t *testing.T) {
	d := New("B")
	require.NoError(t, d.LoadSource(track("early.wav", 1)))
	assert.Equal(t, Stopped, d.State())

	ctx := engine.NewContext(&testDevice{})
	d.Attach(ctx, ctx.Destination())
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(480)
	assert.InDelta(t, 0.01, d.Position(), 1e-9)
}

// --- Play ---

func TestTogglePlayResumesEngine(t *testing.T) {
	d, ctx, dev := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	require.Equal(t, engine.Suspended, ctx.State())

	require.NoError(t, d.TogglePlay(context.Background()))
	assert.Equal(t, engine.Running, ctx.State())
	assert.Equal(t, int32(1), dev.starts.Load())
	assert.True(t, d.IsPlaying())

	ctx.Render(4800)
	require.NoError(t, d.TogglePlay(context.Background()))
	assert.Equal(t, Stopped, d.State())
	assert.InDelta(t, 0.1, d.Position(), 1e-9)

	// resumes from the paused position
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(4800)
	assert.InDelta(t, 0.2, d.Position(), 1e-9)
}

func TestConcurrentTogglesDuringSlowResume(t *testing.T) {
	d, ctx, dev := attached(t)
	dev.gate = make(chan struct{})
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))

	const toggles = 7
	var wg sync.WaitGroup
	errs := make([]error, toggles)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.TogglePlay(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Stopped, d.State(), "no toggle may land before the engine runs")
	close(dev.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), dev.starts.Load(), "device started more than once")
	assert.Equal(t, engine.Running, ctx.State())

	// an odd number of toggles leaves the deck playing, and the player agrees
	assert.True(t, d.IsPlaying())
	ctx.Render(4800)
	assert.InDelta(t, 0.1, d.Position(), 1e-9)
}

func TestTogglePlayFailureLeavesStopped(t *testing.T) {
	dev := &testDevice{err: errors.New("no device")}
	ctx := engine.NewContext(dev)
	d := New("A")
	d.Attach(ctx, ctx.Destination())
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))

	err := d.TogglePlay(context.Background())
	assert.ErrorIs(t, err, ErrPlaybackStart)
	assert.False(t, d.IsPlaying())

	// a later gesture retries
	dev.err = nil
	require.NoError(t, d.TogglePlay(context.Background()))
	assert.True(t, d.IsPlaying())
	assert.Equal(t, int32(2), dev.starts.Load())
}

func TestPlayToEndStops(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("short.wav", 0.01)))
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(960)
	assert.Equal(t, Stopped, d.State())

	// play again restarts from the top
	require.NoError(t, d.TogglePlay(context.Background()))
	assert.True(t, d.IsPlaying())
	assert.InDelta(t, 0, d.Position(), 1e-9)
}

// --- Pitch ---

func TestPitchRate(t *testing.T) {
	d := New("A")
	d.SetPitch(4)
	assert.InDelta(t, 1.04, d.Rate(), 1e-12)
	d.SetPitch(-8)
	assert.InDelta(t, 0.92, d.Rate(), 1e-12)
	d.SetPitch(50)
	assert.Equal(t, 8.0, d.Pitch())
}

func TestSetPitchIdempotent(t *testing.T) {
	d := New("A")
	d.SetPitch(3.3)
	first := d.Rate()
	d.SetPitch(3.3)
	assert.Equal(t, first, d.Rate())
}

func TestBendRestoresRate(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))
	d.SetPitch(2.5)
	before := d.Rate()

	d.BendStart(1)
	assert.InDelta(t, before+0.02, d.Rate(), 1e-12)
	d.BendEnd()
	assert.Equal(t, before, d.Rate())

	d.BendStart(-1)
	assert.InDelta(t, before-0.02, d.Rate(), 1e-12)
	d.BendEnd()
	assert.Equal(t, before, d.Rate())

	// rate reaches the player
	d.SetPitch(0)
	d.BendStart(1)
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(4800)
	assert.InDelta(t, 0.102, d.Position(), 1e-9)
}

// --- Cue ---

func TestCueTapSetsCue(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(24000)

	require.True(t, d.CueTap())
	cue, ok := d.CuePoint()
	require.True(t, ok)
	assert.InDelta(t, 0.5, cue, 1e-9)
}

func TestCueTapNearCueWhileStoppedReturnsToCue(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))
	require.True(t, d.CueTap()) // cue at 0
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(960) // 20ms in
	require.NoError(t, d.TogglePlay(context.Background()))

	require.True(t, d.CueTap())
	cue, _ := d.CuePoint()
	assert.Equal(t, 0.0, cue, "cue stays put")
	assert.Equal(t, 0.0, d.Position(), "playhead returns to cue")
}

func TestCueTapNearCueWhilePlayingMovesCue(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	require.True(t, d.CueTap()) // cue at 0
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(960)

	// 20ms past the cue but playing: the cue moves, the playhead does not
	require.True(t, d.CueTap())
	cue, ok := d.CuePoint()
	require.True(t, ok)
	assert.InDelta(t, 0.02, cue, 1e-9)
	assert.InDelta(t, 0.02, d.Position(), 1e-9)
	assert.True(t, d.IsPlaying())
}

func TestCueHoldPreviewsAndSnapsBack(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(48000)
	require.True(t, d.CueTap()) // cue at 1s
	require.NoError(t, d.TogglePlay(context.Background()))

	require.NoError(t, d.CueHoldStart(context.Background()))
	assert.True(t, d.CueHeld())
	assert.True(t, d.IsPlaying())
	ctx.Render(4800)
	assert.InDelta(t, 1.1, d.Position(), 1e-9)

	d.CueHoldEnd()
	assert.False(t, d.CueHeld())
	assert.Equal(t, Stopped, d.State())
	assert.InDelta(t, 1.0, d.Position(), 1e-9)
}

func TestCueHoldWithoutCue(t *testing.T) {
	d, _, dev := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	assert.ErrorIs(t, d.CueHoldStart(context.Background()), ErrNoCue)
	assert.False(t, d.CueHeld())
	assert.Equal(t, int32(0), dev.starts.Load())
}

func TestCueHoldEndWithoutHoldIsNoop(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(480)
	d.CueHoldEnd()
	assert.True(t, d.IsPlaying())
}

func TestTapAfterHoldReleaseIgnored(t *testing.T) {
	clk := newClock()
	d, ctx, _ := attached(t, WithClock(clk.now))
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(24000)
	require.True(t, d.CueTap())
	require.NoError(t, d.TogglePlay(context.Background()))

	require.NoError(t, d.CueHoldStart(context.Background()))
	ctx.Render(9600)
	d.CueHoldEnd()

	clk.advance(100 * time.Millisecond)
	assert.False(t, d.CueTap(), "tap belonging to the release must be ignored")
	cue, _ := d.CuePoint()
	assert.InDelta(t, 0.5, cue, 1e-9)

	clk.advance(DefaultCueDebounce)
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(9600)
	assert.True(t, d.CueTap())
	cue, _ = d.CuePoint()
	assert.InDelta(t, 0.7, cue, 1e-9)
}

func TestCueSurvivesLoad(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 2)))
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(24000)
	require.True(t, d.CueTap())

	require.NoError(t, d.LoadSource(track("two.mp3", 2)))
	cue, ok := d.CuePoint()
	assert.True(t, ok)
	assert.InDelta(t, 0.5, cue, 1e-9)
}

func TestPauseDuringHoldClearsHold(t *testing.T) {
	d, _, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	require.True(t, d.CueTap())
	require.NoError(t, d.CueHoldStart(context.Background()))
	require.NoError(t, d.TogglePlay(context.Background()))
	assert.False(t, d.CueHeld())
	assert.Equal(t, Stopped, d.State())
}

// --- Level ---

func TestSetLevelScalesOutput(t *testing.T) {
	d, ctx, _ := attached(t)
	require.NoError(t, d.LoadSource(track("one.mp3", 1)))
	d.SetLevel(0.5)
	require.NoError(t, d.TogglePlay(context.Background()))
	out := ctx.Render(1)
	// 0.25 * 0.5 * 32767
	assert.Equal(t, int16(4095), out[0])

	d.SetLevel(2)
	assert.Equal(t, 1.0, d.Level())
	d.SetLevel(-1)
	assert.Equal(t, 0.0, d.Level())
	assert.Equal(t, int16(0), ctx.Render(1)[0])
}

// --- Close ---

func TestCloseReleasesTrack(t *testing.T) {
	d, _, _ := attached(t)
	tr := track("one.mp3", 1)
	require.NoError(t, d.LoadSource(tr))
	d.Close()
	assert.True(t, tr.Released())
	assert.Equal(t, Empty, d.State())
	assert.Equal(t, NoTrackLabel, d.Label())
}

// --- Snapshot ---

func TestSnapshot(t *testing.T) {
	d, ctx, _ := attached(t)
	s := d.Snapshot()
	assert.Equal(t, "empty", s.State)
	assert.Equal(t, NoTrackLabel, s.Label)
	assert.Nil(t, s.Cue)
	assert.Equal(t, "+0.0", s.PitchDisplay)

	tr := track("set.flac", 2)
	require.NoError(t, d.LoadSource(tr))
	d.SetPitch(-3.3)
	require.NoError(t, d.TogglePlay(context.Background()))
	ctx.Render(4800)
	require.True(t, d.CueTap())

	s = d.Snapshot()
	assert.Equal(t, "A", s.Name)
	assert.Equal(t, "playing", s.State)
	assert.True(t, s.Playing)
	assert.Equal(t, "-3.3", s.PitchDisplay)
	assert.InDelta(t, 0.967, s.Rate, 1e-12)
	assert.Equal(t, "set.flac", s.Label)
	assert.Equal(t, tr.Info.ID, s.Handle)
	assert.InDelta(t, 2.0, s.Duration, 1e-9)
	require.NotNil(t, s.Cue)
	assert.InDelta(t, s.Position, *s.Cue, 1e-9)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "playing", Playing.String())
}
