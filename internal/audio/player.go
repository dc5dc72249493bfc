// Package audio is a virtual audio device for the terminal shell: playback
// advances on the wall clock and the microphone synthesizes wav audio.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rx3lixir/voicecards/internal/playback"
)

const (
	maxClipBytes = 50 << 20
	// Compressed clips without a readable header are timed at this bitrate
	fallbackBitrate = 32000
)

var errUnloaded = errors.New("sound was unloaded")

// Fetcher opens the bytes behind a clip URL.
type Fetcher interface {
	OpenBlob(ctx context.Context, url string) (io.ReadCloser, error)
}

// Player downloads a clip and plays it on a virtual clock.
type Player struct {
	fetch Fetcher
	now   func() time.Time
}

func NewPlayer(fetch Fetcher) *Player {
	return &Player{fetch: fetch, now: time.Now}
}

func (p *Player) Load(ctx context.Context, url string) (playback.Sound, error) {
	rc, err := p.fetch.OpenBlob(ctx, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxClipBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	if len(data) > maxClipBytes {
		return nil, fmt.Errorf("clip exceeds %d bytes", maxClipBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("clip is empty")
	}

	duration, err := WAVDuration(data)
	if err != nil {
		duration = estimateDuration(len(data), fallbackBitrate)
	}

	return &clockSound{duration: duration, now: p.now}, nil
}

type clockSound struct {
	mu        sync.Mutex
	now       func() time.Time
	duration  time.Duration
	playing   bool
	startedAt time.Time
	elapsed   time.Duration
	unloaded  bool
}

func (s *clockSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloaded {
		return errUnloaded
	}
	if !s.playing {
		s.playing = true
		s.startedAt = s.now()
	}
	return nil
}

func (s *clockSound) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloaded {
		return errUnloaded
	}
	if s.playing {
		s.elapsed += s.now().Sub(s.startedAt)
		s.playing = false
	}
	return nil
}

func (s *clockSound) Status() playback.SoundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloaded {
		return playback.SoundStatus{Err: errUnloaded}
	}

	pos := s.elapsed
	if s.playing {
		pos += s.now().Sub(s.startedAt)
	}

	st := playback.SoundStatus{Position: pos, Duration: s.duration}
	if pos >= s.duration {
		st.Position = s.duration
		st.Finished = true
	}
	return st
}

func (s *clockSound) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unloaded = true
	s.playing = false
	return nil
}
