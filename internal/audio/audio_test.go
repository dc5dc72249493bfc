package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mapFetcher map[string][]byte

func (f mapFetcher) OpenBlob(_ context.Context, url string) (io.ReadCloser, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestWAVRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Second} {
		data := EncodeWAV(d, DefaultSampleRate)

		got, err := WAVDuration(data)
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestWAVDuration_Rejects(t *testing.T) {
	_, err := WAVDuration([]byte("definitely not audio, just some text padding it out"))
	assert.ErrorIs(t, err, ErrNotWAV)

	_, err = WAVDuration(nil)
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestPlayer_ClockPlayback(t *testing.T) {
	clock := newFakeClock()
	p := NewPlayer(mapFetcher{"clip": EncodeWAV(2*time.Second, DefaultSampleRate)})
	p.now = clock.Now

	sound, err := p.Load(context.Background(), "clip")
	require.NoError(t, err)

	st := sound.Status()
	assert.Equal(t, 2*time.Second, st.Duration)
	assert.Zero(t, st.Position)

	// Time only counts while playing
	clock.Advance(time.Second)
	assert.Zero(t, sound.Status().Position)

	require.NoError(t, sound.Play())
	clock.Advance(700 * time.Millisecond)
	require.NoError(t, sound.Pause())
	clock.Advance(5 * time.Second)
	assert.Equal(t, 700*time.Millisecond, sound.Status().Position)

	require.NoError(t, sound.Play())
	clock.Advance(2 * time.Second)
	st = sound.Status()
	assert.True(t, st.Finished)
	assert.Equal(t, 2*time.Second, st.Position)

	require.NoError(t, sound.Unload())
	assert.Error(t, sound.Play())
	assert.Error(t, sound.Status().Err)
}

func TestPlayer_NonWAVUsesEstimate(t *testing.T) {
	p := NewPlayer(mapFetcher{"opus": make([]byte, 8000)})

	sound, err := p.Load(context.Background(), "opus")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, sound.Status().Duration)
}

func TestPlayer_LoadErrors(t *testing.T) {
	p := NewPlayer(mapFetcher{"empty": {}})

	_, err := p.Load(context.Background(), "missing")
	assert.Error(t, err)

	_, err = p.Load(context.Background(), "empty")
	assert.Error(t, err)
}

func TestMicrophone_RecordsWAV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	clock := newFakeClock()

	mic := NewMicrophone(dir)
	mic.now = clock.Now

	granted, err := mic.RequestPermission(context.Background())
	require.NoError(t, err)
	require.True(t, granted)

	c, err := mic.Open(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, c.Pause())
	clock.Advance(10 * time.Second)
	assert.Equal(t, time.Second, c.Duration())

	require.NoError(t, c.Resume())
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, c.Duration())

	rec, err := c.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration)

	d, err := WAVDuration(rec.Data)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	files, err := filepath.Glob(filepath.Join(dir, "recording-*.wav"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	saved, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, rec.Data, saved)

	// Released captures refuse further use
	_, err = c.Finish()
	assert.Error(t, err)
	assert.Error(t, c.Pause())
}

func TestMicrophone_Discard(t *testing.T) {
	mic := NewMicrophone(t.TempDir())

	c, err := mic.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Discard())

	_, err = c.Finish()
	assert.Error(t, err)
}
