// Package playback owns the app-wide audio slot: at most one clip is loaded
// at a time and every change is broadcast as a full State snapshot.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rx3lixir/voicecards/internal/common"
)

const DefaultTickInterval = 250 * time.Millisecond

// SoundStatus mirrors what the audio backend reports on each poll.
type SoundStatus struct {
	Position time.Duration
	Duration time.Duration
	Finished bool
	Err      error
}

// Sound is one loaded clip.
type Sound interface {
	Play() error
	Pause() error
	Status() SoundStatus
	Unload() error
}

// Player loads clips from a URL.
type Player interface {
	Load(ctx context.Context, url string) (Sound, error)
}

type Option func(*Controller)

// WithTickInterval sets how often a loaded sound is polled. Zero disables
// the ticker; Tick can then be driven by the caller.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.tickInterval = d
	}
}

type Controller struct {
	player       Player
	log          *log.Logger
	tickInterval time.Duration

	mu       sync.Mutex
	state    State
	sound    Sound
	gen      uint64
	tickStop chan struct{}
	subs     map[chan State]struct{}
	closed   bool
}

func New(player Player, logger *log.Logger, opts ...Option) *Controller {
	c := &Controller{
		player:       player,
		log:          logger,
		tickInterval: DefaultTickInterval,
		state:        stoppedState(),
		subs:         make(map[chan State]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Play makes url the active clip. Playing the active url again is a no-op,
// a paused one resumes, any other url replaces the current clip.
// A load overtaken by a later Play or Stop returns common.ErrSuperseded.
func (c *Controller) Play(ctx context.Context, url string, meta Metadata) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return common.ErrInvalidState
	}

	if c.state.IsActive(url) {
		defer c.mu.Unlock()

		if c.state.Status == StatusPaused {
			return c.resumeLocked()
		}
		return nil
	}

	c.releaseLocked()
	c.gen++
	gen := c.gen

	c.state = State{
		URL:      url,
		Status:   StatusPlaying,
		Metadata: meta,
	}
	c.publishLocked()
	c.mu.Unlock()

	c.log.Debug("Loading clip", "url", url, "voicecard_id", meta.VoiceCardID)

	sound, err := c.player.Load(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		if sound != nil {
			_ = sound.Unload()
		}
		return fmt.Errorf("load %s: %w", url, common.ErrSuperseded)
	}

	if err != nil {
		err = fmt.Errorf("load %s: %w: %w", url, common.ErrPlaybackResource, err)
		c.failLocked(err)
		return err
	}

	c.sound = sound

	// Paused while loading: keep the sound ready but silent
	if c.state.Status == StatusPlaying {
		if err := sound.Play(); err != nil {
			err = fmt.Errorf("play %s: %w: %w", url, common.ErrPlaybackResource, err)
			c.failLocked(err)
			return err
		}
	}

	st := sound.Status()
	c.state.Duration = st.Duration
	c.state.Position = st.Position
	c.startTickerLocked(gen)
	c.publishLocked()

	return nil
}

// Pause holds the active clip at its current position.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusPlaying {
		return nil
	}

	if c.sound != nil {
		if err := c.sound.Pause(); err != nil {
			err = fmt.Errorf("pause: %w: %w", common.ErrPlaybackResource, err)
			c.failLocked(err)
			return err
		}
		c.state.Position = c.sound.Status().Position
	}

	c.state.Status = StatusPaused
	c.publishLocked()

	return nil
}

// Resume continues a paused clip from where it stopped.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusPaused {
		return nil
	}

	return c.resumeLocked()
}

// TogglePlayback is what a card's play button does.
func (c *Controller) TogglePlayback(ctx context.Context, url string, meta Metadata) error {
	c.mu.Lock()
	playing := c.state.IsActive(url) && c.state.Status == StatusPlaying
	c.mu.Unlock()

	if playing {
		return c.Pause()
	}
	return c.Play(ctx, url, meta)
}

// Stop releases the clip and clears the slot.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.gen++
	c.releaseLocked()
	c.state = stoppedState()
	c.publishLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe delivers the current state and then every change. A slow reader
// only ever sees the newest snapshot. cancel is safe to call more than once.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(ch)
		return ch, func() {}
	}

	ch <- c.state
	c.subs[ch] = struct{}{}

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

// Tick polls the loaded sound once: publishes progress, and stops the slot
// when the clip has finished or failed.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tickLocked()
}

// Close stops playback for good and closes every subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.gen++
	c.releaseLocked()
	c.state = stoppedState()
	c.closed = true

	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}

func (c *Controller) tickLocked() {
	if c.sound == nil {
		return
	}

	st := c.sound.Status()

	if st.Err != nil {
		c.log.Warn("Playback failed", "url", c.state.URL, "error", st.Err)
		c.failLocked(fmt.Errorf("%w: %w", common.ErrPlaybackResource, st.Err))
		return
	}

	if st.Finished {
		c.log.Debug("Clip finished", "url", c.state.URL)
		c.gen++
		c.releaseLocked()
		c.state = stoppedState()
		c.publishLocked()
		return
	}

	if st.Position == c.state.Position && st.Duration == c.state.Duration {
		return
	}

	c.state.Position = st.Position
	c.state.Duration = st.Duration
	c.publishLocked()
}

func (c *Controller) resumeLocked() error {
	if c.sound != nil {
		if err := c.sound.Play(); err != nil {
			err = fmt.Errorf("resume: %w: %w", common.ErrPlaybackResource, err)
			c.failLocked(err)
			return err
		}
	}

	c.state.Status = StatusPlaying
	c.publishLocked()

	return nil
}

// failLocked ends the session and keeps err on the published state
func (c *Controller) failLocked(err error) {
	c.gen++
	c.releaseLocked()
	c.state = stoppedState()
	c.state.Err = err
	c.publishLocked()
}

func (c *Controller) releaseLocked() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}

	if c.sound != nil {
		if err := c.sound.Unload(); err != nil {
			c.log.Warn("Failed to unload sound", "url", c.state.URL, "error", err)
		}
		c.sound = nil
	}
}

func (c *Controller) startTickerLocked(gen uint64) {
	if c.tickInterval <= 0 {
		return
	}

	stop := make(chan struct{})
	c.tickStop = stop

	go func() {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if gen == c.gen {
					c.tickLocked()
				}
				c.mu.Unlock()
			}
		}
	}()
}

// publishLocked hands every subscriber the newest snapshot, replacing one
// that was never read.
func (c *Controller) publishLocked() {
	for ch := range c.subs {
		select {
		case ch <- c.state:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- c.state:
		default:
		}
	}
}
