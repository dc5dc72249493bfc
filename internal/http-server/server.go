package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/db"
	"github.com/rx3lixir/voicecards/internal/session"
	"github.com/rx3lixir/voicecards/pkg/jwt"
	"github.com/rx3lixir/voicecards/pkg/s3storage"
)

// BlobStorage stores the uploaded audio files
type BlobStorage interface {
	UploadAudio(ctx context.Context, key string, data []byte, contentType string) (string, error)
	OpenAudio(ctx context.Context, key string) (*s3storage.Object, error)
	AudioExists(ctx context.Context, key string) (bool, error)
}

// SessionStore tracks signed-in sessions so sign out can revoke tokens
type SessionStore interface {
	CreateSession(ctx context.Context, s *session.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) error
}

// ListCache caches serialized card lists until the next create
type ListCache interface {
	GetList(ctx context.Context, key string) ([]byte, bool, error)
	SetList(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type Options struct {
	PublicURL      string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	FeedTTL        time.Duration
	AllowedOrigins []string
}

type Server struct {
	store      db.Store
	blobs      BlobStorage
	sessions   SessionStore
	cache      ListCache
	jwtService *jwt.Service
	events     *EventHub
	opts       Options
	log        *log.Logger
	httpServer *http.Server
}

func New(
	addr string,
	store db.Store,
	blobs BlobStorage,
	sessions SessionStore,
	cache ListCache,
	jwtService *jwt.Service,
	opts Options,
	log *log.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.FeedTTL <= 0 {
		opts.FeedTTL = 5 * time.Minute
	}

	s := &Server{
		store:      store,
		blobs:      blobs,
		sessions:   sessions,
		cache:      cache,
		jwtService: jwtService,
		events:     NewEventHub(log),
		opts:       opts,
		log:        log,
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket feed and blob streaming
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	s.log.Info("HTTP server started", "address", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Close()
	return s.httpServer.Shutdown(ctx)
}
