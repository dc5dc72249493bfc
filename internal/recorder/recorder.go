// Package recorder drives one voice recording from the microphone to a
// posted voice card.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
)

const DefaultNetworkTimeout = 15 * time.Second

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusStopping  Status = "stopping"
	StatusUploading Status = "uploading"
)

// Session is a snapshot of the recorder.
type Session struct {
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
	ParentID  *uuid.UUID
}

// Recording is the finished audio handed to the upload.
type Recording struct {
	Data     []byte
	Duration time.Duration
}

// Capture is an open microphone session.
type Capture interface {
	Pause() error
	Resume() error
	Duration() time.Duration
	// Finish stops capturing, releases the microphone and returns the audio.
	Finish() (Recording, error)
	// Discard releases the microphone and drops the audio.
	Discard() error
}

type Microphone interface {
	RequestPermission(ctx context.Context) (bool, error)
	Open(ctx context.Context) (Capture, error)
}

// Backend is the slice of the remote data service a recording needs.
type Backend interface {
	CurrentUser(ctx context.Context) (*models.User, error)
	UploadBlob(ctx context.Context, data []byte, key string) (string, error)
	CreateVoiceCard(ctx context.Context, in models.VoiceCardInput) (*models.VoiceCard, error)
}

// Locator supplies the address stamped on new cards.
type Locator interface {
	Address(ctx context.Context) (*models.Address, error)
}

type Option func(*Recorder)

// WithParent makes every card recorded here a reply to parentID.
func WithParent(parentID uuid.UUID) Option {
	return func(r *Recorder) {
		r.parentID = &parentID
	}
}

func WithLocator(l Locator) Option {
	return func(r *Recorder) {
		r.locator = l
	}
}

// WithNetworkTimeout bounds each backend call made by Stop.
func WithNetworkTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

type Recorder struct {
	mic      Microphone
	backend  Backend
	locator  Locator
	log      *log.Logger
	parentID *uuid.UUID
	timeout  time.Duration
	now      func() time.Time

	mu           sync.Mutex
	status       Status
	capture      Capture
	startedAt    time.Time
	gen          uint64
	uploadCancel context.CancelFunc
	closed       bool
}

func New(mic Microphone, backend Backend, logger *log.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		mic:     mic,
		backend: backend,
		log:     logger,
		timeout: DefaultNetworkTimeout,
		now:     time.Now,
		status:  StatusIdle,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start begins recording. A paused recording is resumed instead, and an
// upload still in flight is abandoned. While Stop is still checking the
// user the recording belongs to that Stop and Start fails.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return common.ErrInvalidState
	}

	switch r.status {
	case StatusRecording:
		r.mu.Unlock()
		return nil
	case StatusPaused:
		defer r.mu.Unlock()
		return r.resumeLocked()
	case StatusStopping:
		r.mu.Unlock()
		return fmt.Errorf("start while %s: %w", StatusStopping, common.ErrInvalidState)
	case StatusUploading:
		r.log.Info("Abandoning previous upload")
		r.abortLocked()
	}

	r.gen++
	gen := r.gen
	r.mu.Unlock()

	granted, err := r.mic.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request microphone permission: %w", err)
	}
	if !granted {
		return common.ErrPermissionDenied
	}

	capture, err := r.mic.Open(ctx)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || r.closed || r.status != StatusIdle {
		_ = capture.Discard()
		return common.ErrSuperseded
	}

	r.capture = capture
	r.status = StatusRecording
	r.startedAt = r.now()

	r.log.Debug("Recording started", "reply", r.parentID != nil)

	return nil
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRecording {
		return fmt.Errorf("pause while %s: %w", r.status, common.ErrInvalidState)
	}

	if err := r.capture.Pause(); err != nil {
		return fmt.Errorf("pause capture: %w", err)
	}

	r.status = StatusPaused
	return nil
}

func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusPaused {
		return fmt.Errorf("resume while %s: %w", r.status, common.ErrInvalidState)
	}

	return r.resumeLocked()
}

// Stop turns the recording into a voice card: it checks the signed-in
// user, uploads the audio and only then creates the card.
// Without a user it returns common.ErrAuthenticationRequired and leaves the
// recording as it was, so it can be stopped again after signing in.
func (r *Recorder) Stop(ctx context.Context) (*models.VoiceCard, error) {
	r.mu.Lock()

	prev := r.status
	if prev != StatusRecording && prev != StatusPaused {
		r.mu.Unlock()
		return nil, fmt.Errorf("stop while %s: %w", prev, common.ErrInvalidState)
	}

	r.status = StatusStopping
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	user, err := r.currentUser(ctx)
	if err != nil || user == nil {
		r.mu.Lock()
		if gen == r.gen && r.status == StatusStopping {
			r.status = prev
		}
		r.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return nil, common.ErrAuthenticationRequired
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return nil, common.ErrSuperseded
	}

	capture := r.capture
	r.capture = nil
	recording, err := capture.Finish()
	if err != nil {
		r.status = StatusIdle
		r.mu.Unlock()
		return nil, fmt.Errorf("finish recording: %w", err)
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.uploadCancel = cancel
	r.status = StatusUploading
	r.mu.Unlock()

	card, err := r.publish(uploadCtx, gen, user, recording)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return nil, common.ErrSuperseded
	}

	r.status = StatusIdle
	r.uploadCancel = nil

	if err != nil {
		r.log.Warn("Failed to post recording", "error", err)
		return nil, err
	}

	r.log.Info("Voice card posted", "voicecard_id", card.ID, "duration_ms", card.AudioDuration)

	return card, nil
}

func (r *Recorder) State() Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Session{
		Status:   r.status,
		ParentID: r.parentID,
	}

	if r.capture != nil {
		s.StartedAt = r.startedAt
		s.Duration = r.capture.Duration()
	}

	return s
}

// Close releases the microphone and abandons any upload.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.abortLocked()
	r.closed = true
}

func (r *Recorder) publish(ctx context.Context, gen uint64, user *models.User, recording Recording) (*models.VoiceCard, error) {
	key := fmt.Sprintf("%s-%d", user.AuthID, r.now().UnixMilli())

	uploadCtx, cancel := context.WithTimeout(ctx, r.timeout)
	url, err := r.backend.UploadBlob(uploadCtx, recording.Data, key)
	cancel()
	if err != nil {
		return nil, r.networkErr("upload recording", err)
	}

	// A newer Start may have taken over while the upload was running
	r.mu.Lock()
	superseded := gen != r.gen
	r.mu.Unlock()
	if superseded {
		return nil, common.ErrSuperseded
	}

	in := models.VoiceCardInput{
		Author: models.Author{
			ID:   user.AuthID,
			Name: user.Username,
		},
		Location:      r.address(ctx),
		AudioURL:      url,
		AudioDuration: recording.Duration.Milliseconds(),
		ParentID:      r.parentID,
	}
	in.ApplyDefaults()

	createCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	card, err := r.backend.CreateVoiceCard(createCtx, in)
	if err != nil {
		return nil, r.networkErr("create voice card", err)
	}

	return card, nil
}

func (r *Recorder) currentUser(ctx context.Context) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user, err := r.backend.CurrentUser(ctx)
	if err != nil {
		return nil, r.networkErr("get current user", err)
	}
	return user, nil
}

func (r *Recorder) address(ctx context.Context) *models.Address {
	if r.locator == nil {
		return nil
	}

	addr, err := r.locator.Address(ctx)
	if err != nil {
		r.log.Warn("No address for recording", "error", err)
		return nil
	}
	return addr
}

// networkErr reports deadline overruns as retryable network failures
func (r *Recorder) networkErr(op string, err error) error {
	if errors.Is(err, common.ErrNetworkFailure) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NetworkError(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Recorder) resumeLocked() error {
	if err := r.capture.Resume(); err != nil {
		return fmt.Errorf("resume capture: %w", err)
	}

	r.status = StatusRecording
	return nil
}

func (r *Recorder) abortLocked() {
	r.gen++

	if r.uploadCancel != nil {
		r.uploadCancel()
		r.uploadCancel = nil
	}

	if r.capture != nil {
		if err := r.capture.Discard(); err != nil {
			r.log.Warn("Failed to release microphone", "error", err)
		}
		r.capture = nil
	}

	r.status = StatusIdle
}
