package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSound struct {
	mu       sync.Mutex
	url      string
	playing  bool
	unloaded bool
	plays    int
	status   SoundStatus
	playErr  error
}

func (s *fakeSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	s.plays++
	return nil
}

func (s *fakeSound) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

func (s *fakeSound) Status() SoundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSound) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.unloaded = true
	return nil
}

func (s *fakeSound) set(fn func(st *SoundStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *fakeSound) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSound) isUnloaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unloaded
}

type fakePlayer struct {
	mu      sync.Mutex
	sounds  []*fakeSound
	gates   map[string]chan struct{}
	loadErr map[string]error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		gates:   make(map[string]chan struct{}),
		loadErr: make(map[string]error),
	}
}

// gate makes the next loads of url block until the returned func is called
func (p *fakePlayer) gate(url string) func() {
	ch := make(chan struct{})
	p.mu.Lock()
	p.gates[url] = ch
	p.mu.Unlock()
	return func() { close(ch) }
}

func (p *fakePlayer) Load(ctx context.Context, url string) (Sound, error) {
	p.mu.Lock()
	gate := p.gates[url]
	err := p.loadErr[url]
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	s := &fakeSound{url: url, status: SoundStatus{Duration: 10 * time.Second}}

	p.mu.Lock()
	p.sounds = append(p.sounds, s)
	p.mu.Unlock()

	return s, nil
}

func (p *fakePlayer) loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sounds)
}

func (p *fakePlayer) last() *fakeSound {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sounds[len(p.sounds)-1]
}

func (p *fakePlayer) playingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, s := range p.sounds {
		if s.isPlaying() {
			n++
		}
	}
	return n
}

func newTestController(p Player) *Controller {
	return New(p, log.New(io.Discard), WithTickInterval(0))
}

func meta(title string) Metadata {
	return Metadata{VoiceCardID: uuid.New(), Title: title}
}

func TestPlay_StartsClip(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	m := meta("hello")
	require.NoError(t, c.Play(ctx, "a.m4a", m))

	st := c.State()
	assert.Equal(t, StatusPlaying, st.Status)
	assert.Equal(t, "a.m4a", st.URL)
	assert.Equal(t, m, st.Metadata)
	assert.Equal(t, 10*time.Second, st.Duration)
	assert.Zero(t, st.Position)
	assert.True(t, st.IsActive("a.m4a"))
	assert.False(t, st.IsActive("b.m4a"))
	assert.True(t, p.last().isPlaying())
}

func TestPlay_SameURLWhilePlayingIsNoop(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) { st.Position = 3 * time.Second })
	c.Tick()

	require.NoError(t, c.Play(ctx, "a.m4a", meta("a")))

	assert.Equal(t, 1, p.loads())
	assert.Equal(t, 1, p.last().plays)
	assert.Equal(t, 3*time.Second, c.State().Position)
}

func TestPlay_SameURLWhilePausedResumes(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) { st.Position = 4 * time.Second })
	require.NoError(t, c.Pause())

	require.NoError(t, c.Play(ctx, "a.m4a", meta("a")))

	st := c.State()
	assert.Equal(t, StatusPlaying, st.Status)
	assert.Equal(t, 4*time.Second, st.Position)
	assert.Equal(t, 1, p.loads())
	assert.True(t, p.last().isPlaying())
}

func TestPlay_DifferentURLReplacesClip(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	require.NoError(t, c.Play(ctx, "a.m4a", meta("a")))
	first := p.last()

	require.NoError(t, c.Play(ctx, "b.m4a", meta("b")))

	assert.True(t, first.isUnloaded())
	assert.False(t, first.isPlaying())
	assert.Equal(t, "b.m4a", c.State().URL)
	assert.Equal(t, "b", c.State().Metadata.Title)
	assert.Equal(t, 1, p.playingCount())
}

func TestPauseResumePreservesPosition(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) { st.Position = 2500 * time.Millisecond })

	require.NoError(t, c.Pause())
	st := c.State()
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, 2500*time.Millisecond, st.Position)
	assert.True(t, st.IsActive("a.m4a"))
	assert.False(t, p.last().isPlaying())

	require.NoError(t, c.Resume())
	st = c.State()
	assert.Equal(t, StatusPlaying, st.Status)
	assert.Equal(t, 2500*time.Millisecond, st.Position)
	assert.True(t, p.last().isPlaying())
}

func TestPauseResume_NoopOutsideTheirState(t *testing.T) {
	c := newTestController(newFakePlayer())

	require.NoError(t, c.Pause())
	require.NoError(t, c.Resume())
	assert.Equal(t, StatusStopped, c.State().Status)
}

func TestStopResetsEverything(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) { st.Position = time.Second })
	c.Tick()

	c.Stop()

	assert.Equal(t, stoppedState(), c.State())
	assert.True(t, p.last().isUnloaded())

	// Stopping twice is harmless
	c.Stop()
	assert.Equal(t, stoppedState(), c.State())
}

func TestTogglePlayback(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	require.NoError(t, c.TogglePlayback(ctx, "a.m4a", meta("a")))
	assert.Equal(t, StatusPlaying, c.State().Status)

	require.NoError(t, c.TogglePlayback(ctx, "a.m4a", meta("a")))
	assert.Equal(t, StatusPaused, c.State().Status)

	require.NoError(t, c.TogglePlayback(ctx, "a.m4a", meta("a")))
	assert.Equal(t, StatusPlaying, c.State().Status)

	require.NoError(t, c.TogglePlayback(ctx, "b.m4a", meta("b")))
	assert.Equal(t, "b.m4a", c.State().URL)
	assert.Equal(t, 2, p.loads())
}

func TestNaturalEndStops(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) {
		st.Position = st.Duration
		st.Finished = true
	})

	c.Tick()

	assert.Equal(t, stoppedState(), c.State())
	assert.True(t, p.last().isUnloaded())
}

func TestPlaybackErrorStops(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) { st.Err = errors.New("decoder crashed") })

	c.Tick()

	st := c.State()
	assert.Equal(t, StatusStopped, st.Status)
	assert.Empty(t, st.URL)
	assert.ErrorIs(t, st.Err, common.ErrPlaybackResource)
	assert.True(t, p.last().isUnloaded())

	// A new session clears the error
	require.NoError(t, c.Play(context.Background(), "b.m4a", meta("b")))
	assert.NoError(t, c.State().Err)
}

func TestLoadFailure(t *testing.T) {
	p := newFakePlayer()
	p.loadErr["broken.m4a"] = errors.New("404")
	c := newTestController(p)

	err := c.Play(context.Background(), "broken.m4a", meta("x"))
	assert.ErrorIs(t, err, common.ErrPlaybackResource)

	st := c.State()
	assert.Equal(t, StatusStopped, st.Status)
	assert.ErrorIs(t, st.Err, common.ErrPlaybackResource)
}

func TestPlayFailure(t *testing.T) {
	p := &failingPlayer{err: errors.New("device busy")}
	c := newTestController(p)

	err := c.Play(context.Background(), "a.m4a", meta("a"))
	assert.ErrorIs(t, err, common.ErrPlaybackResource)
	assert.Equal(t, StatusStopped, c.State().Status)
	assert.True(t, p.sound.isUnloaded())
}

type failingPlayer struct {
	err   error
	sound *fakeSound
}

func (p *failingPlayer) Load(context.Context, string) (Sound, error) {
	p.sound = &fakeSound{playErr: p.err}
	return p.sound, nil
}

func TestSupersededLoadNeverPlays(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	release := p.gate("slow.m4a")

	errCh := make(chan error, 1)
	go func() { errCh <- c.Play(ctx, "slow.m4a", meta("slow")) }()

	require.Eventually(t, func() bool { return c.State().URL == "slow.m4a" }, time.Second, time.Millisecond)

	require.NoError(t, c.Play(ctx, "fast.m4a", meta("fast")))
	release()

	err := <-errCh
	assert.ErrorIs(t, err, common.ErrSuperseded)

	st := c.State()
	assert.Equal(t, "fast.m4a", st.URL)
	assert.Equal(t, StatusPlaying, st.Status)
	assert.Equal(t, 1, p.playingCount())

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sounds {
		if s.url == "slow.m4a" {
			assert.True(t, s.isUnloaded())
			assert.Zero(t, s.plays)
		}
	}
}

func TestStopDuringLoad(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	release := p.gate("slow.m4a")

	errCh := make(chan error, 1)
	go func() { errCh <- c.Play(context.Background(), "slow.m4a", meta("slow")) }()

	require.Eventually(t, func() bool { return c.State().URL == "slow.m4a" }, time.Second, time.Millisecond)

	c.Stop()
	release()

	assert.ErrorIs(t, <-errCh, common.ErrSuperseded)
	assert.Equal(t, stoppedState(), c.State())
	assert.Zero(t, p.playingCount())
}

func TestPauseDuringLoad(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	release := p.gate("slow.m4a")

	errCh := make(chan error, 1)
	go func() { errCh <- c.Play(context.Background(), "slow.m4a", meta("slow")) }()

	require.Eventually(t, func() bool { return c.State().URL == "slow.m4a" }, time.Second, time.Millisecond)

	require.NoError(t, c.Pause())
	release()
	require.NoError(t, <-errCh)

	assert.Equal(t, StatusPaused, c.State().Status)
	assert.False(t, p.last().isPlaying())

	require.NoError(t, c.Resume())
	assert.True(t, p.last().isPlaying())
}

func TestAtMostOnePlaying(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	steps := []func(){
		func() { _ = c.Play(ctx, "a", meta("a")) },
		func() { _ = c.Play(ctx, "b", meta("b")) },
		func() { _ = c.TogglePlayback(ctx, "b", meta("b")) },
		func() { _ = c.Play(ctx, "c", meta("c")) },
		func() { _ = c.TogglePlayback(ctx, "a", meta("a")) },
		func() { _ = c.Resume() },
		func() { c.Stop() },
		func() { _ = c.Play(ctx, "a", meta("a")) },
		func() { _ = c.Play(ctx, "a", meta("a")) },
	}

	for i, step := range steps {
		step()
		assert.LessOrEqual(t, p.playingCount(), 1, "step %d", i)

		st := c.State()
		if st.Status == StatusStopped {
			assert.Empty(t, st.URL, "step %d", i)
		}
	}
}

func TestSubscribe_KeepsLatestSnapshot(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)
	ctx := context.Background()

	ch, cancel := c.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, StatusStopped, initial.Status)

	require.NoError(t, c.Play(ctx, "a.m4a", meta("a")))
	require.NoError(t, c.Play(ctx, "b.m4a", meta("b")))
	require.NoError(t, c.Pause())

	st := <-ch
	assert.Equal(t, "b.m4a", st.URL)
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, "b", st.Metadata.Title)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot: %+v", extra)
	default:
	}
}

func TestSubscribe_SeesTransitionsInOrder(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	ch, cancel := c.Subscribe()
	defer cancel()
	<-ch

	var got []Status
	done := make(chan struct{})
	go func() {
		defer close(done)
		for st := range ch {
			got = append(got, st.Status)
		}
	}()

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Pause())
	time.Sleep(10 * time.Millisecond)
	c.Stop()
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-done

	require.NotEmpty(t, got)
	assert.Equal(t, StatusStopped, got[len(got)-1])
	assert.Contains(t, got, StatusPaused)
}

func TestTicker_PublishesProgress(t *testing.T) {
	p := newFakePlayer()
	c := New(p, log.New(io.Discard), WithTickInterval(5*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	p.last().set(func(st *SoundStatus) { st.Position = 1500 * time.Millisecond })

	require.Eventually(t, func() bool {
		return c.State().Position == 1500*time.Millisecond
	}, time.Second, 5*time.Millisecond)

	p.last().set(func(st *SoundStatus) { st.Finished = true })

	require.Eventually(t, func() bool {
		return c.State().Status == StatusStopped
	}, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(p)

	ch, _ := c.Subscribe()
	<-ch

	require.NoError(t, c.Play(context.Background(), "a.m4a", meta("a")))
	c.Close()

	assert.True(t, p.last().isUnloaded())

	for range ch {
	}

	assert.ErrorIs(t, c.Play(context.Background(), "b.m4a", meta("b")), common.ErrInvalidState)

	late, _ := c.Subscribe()
	_, ok := <-late
	assert.False(t, ok)

	c.Close()
	c.Stop()
}
