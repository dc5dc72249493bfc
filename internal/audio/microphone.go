package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rx3lixir/voicecards/internal/recorder"
)

var errReleased = errors.New("microphone already released")

// Microphone records synthetic audio and keeps a copy of every finished
// take in dir.
type Microphone struct {
	dir        string
	sampleRate int
	now        func() time.Time
}

func NewMicrophone(dir string) *Microphone {
	return &Microphone{
		dir:        dir,
		sampleRate: DefaultSampleRate,
		now:        time.Now,
	}
}

// RequestPermission grants access when the recordings directory is writable.
func (m *Microphone) RequestPermission(_ context.Context) (bool, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return false, nil
		}
		return false, fmt.Errorf("prepare recordings dir: %w", err)
	}

	f, err := os.CreateTemp(m.dir, ".writable-*")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return false, nil
		}
		return false, fmt.Errorf("check recordings dir: %w", err)
	}
	f.Close()
	os.Remove(f.Name())

	return true, nil
}

func (m *Microphone) Open(_ context.Context) (recorder.Capture, error) {
	return &capture{
		mic:       m,
		recording: true,
		startedAt: m.now(),
	}, nil
}

type capture struct {
	mic *Microphone

	mu        sync.Mutex
	recording bool
	startedAt time.Time
	elapsed   time.Duration
	released  bool
}

func (c *capture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return errReleased
	}
	if c.recording {
		c.elapsed += c.mic.now().Sub(c.startedAt)
		c.recording = false
	}
	return nil
}

func (c *capture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return errReleased
	}
	if !c.recording {
		c.recording = true
		c.startedAt = c.mic.now()
	}
	return nil
}

func (c *capture) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationLocked()
}

func (c *capture) durationLocked() time.Duration {
	d := c.elapsed
	if c.recording {
		d += c.mic.now().Sub(c.startedAt)
	}
	return d
}

func (c *capture) Finish() (recorder.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return recorder.Recording{}, errReleased
	}

	d := c.durationLocked()
	c.released = true
	c.recording = false

	data := EncodeWAV(d, c.mic.sampleRate)

	name := filepath.Join(c.mic.dir, fmt.Sprintf("recording-%d.wav", c.mic.now().UnixMilli()))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return recorder.Recording{}, fmt.Errorf("save recording: %w", err)
	}

	return recorder.Recording{Data: data, Duration: d}, nil
}

func (c *capture) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.released = true
	c.recording = false
	return nil
}
