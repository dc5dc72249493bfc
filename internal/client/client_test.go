package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/db"
	httpserver "github.com/rx3lixir/voicecards/internal/http-server"
	"github.com/rx3lixir/voicecards/internal/models"
	"github.com/rx3lixir/voicecards/internal/session"
	"github.com/rx3lixir/voicecards/pkg/jwt"
	"github.com/rx3lixir/voicecards/pkg/s3storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return newTestClientWith(t, nil)
}

// newTestClientWith lets a test put a handler in front of the API
func newTestClientWith(t *testing.T, wrap func(http.Handler) http.Handler) *Client {
	t.Helper()

	kv := session.NewMemoryManager()
	logger := log.New(io.Discard)

	// PublicURL has to match the listener so blob URLs resolve
	ts := httptest.NewUnstartedServer(nil)
	publicURL := "http://" + ts.Listener.Addr().String()

	srv := httpserver.New(
		":0",
		db.NewMemoryStore(),
		s3storage.NewMemoryStorage(),
		kv,
		kv,
		jwt.NewService("test-secret", time.Minute, time.Hour),
		httpserver.Options{PublicURL: publicURL},
		logger,
	)
	handler := srv.Handler()
	if wrap != nil {
		handler = wrap(handler)
	}
	ts.Config.Handler = handler
	ts.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	return New(ts.URL, 5*time.Second, logger)
}

func TestClient_AuthLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	user, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	created, err := c.SignUp(ctx, "alice@example.com", "Secret#123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.True(t, c.SignedIn())

	_, err = c.SignUp(ctx, "alice@example.com", "Secret#123", "alice")
	assert.ErrorIs(t, err, common.ErrEmailInUse)

	me, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, created.AuthID, me.AuthID)

	require.NoError(t, c.Refresh(ctx))
	me, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, me)

	require.NoError(t, c.SignOut(ctx))
	assert.False(t, c.SignedIn())
	assert.Nil(t, c.CachedUser())

	user, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = c.SignIn(ctx, "alice@example.com", "Wrong#1234")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.False(t, c.SignedIn())

	signedIn, err := c.SignIn(ctx, "alice@example.com", "Secret#123")
	require.NoError(t, err)
	assert.Equal(t, created.AuthID, signedIn.AuthID)
	assert.Equal(t, created.AuthID, c.CachedUser().AuthID)
}

// expiringTokens answers 401 for access tokens marked expired and counts
// refresh calls
type expiringTokens struct {
	mu             sync.Mutex
	expired        map[string]bool
	rejectRefresh  bool
	refreshCounter atomic.Int32
}

func (e *expiringTokens) expire(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired["Bearer "+token] = true
}

func (e *expiringTokens) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		expired := e.expired[r.Header.Get("Authorization")]
		reject := e.rejectRefresh
		e.mu.Unlock()

		if r.URL.Path == "/api/auth/refresh" {
			e.refreshCounter.Add(1)
			expired = reject
		}

		if expired {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Token expired","code":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Client) currentAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func TestClient_ExpiredAccessTokenIsRefreshed(t *testing.T) {
	ctx := context.Background()
	tokens := &expiringTokens{expired: map[string]bool{}}
	c := newTestClientWith(t, tokens.wrap)

	created, err := c.SignUp(ctx, "dora@example.com", "Secret#123", "dora")
	require.NoError(t, err)

	stale := c.currentAccessToken()
	tokens.expire(stale)

	me, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, created.AuthID, me.AuthID)
	assert.True(t, c.SignedIn())
	assert.NotEqual(t, stale, c.currentAccessToken())
	assert.EqualValues(t, 1, tokens.refreshCounter.Load())

	// Request bodies are replayed after the refresh
	tokens.expire(c.currentAccessToken())
	url, err := c.UploadBlob(ctx, []byte("fresh-audio"), created.AuthID.String()+"-1")
	require.NoError(t, err)

	blob, err := c.OpenBlob(ctx, url)
	require.NoError(t, err)
	data, err := io.ReadAll(blob)
	blob.Close()
	require.NoError(t, err)
	assert.Equal(t, "fresh-audio", string(data))
	assert.EqualValues(t, 2, tokens.refreshCounter.Load())
}

func TestClient_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	tokens := &expiringTokens{expired: map[string]bool{}}
	c := newTestClientWith(t, tokens.wrap)

	_, err := c.SignUp(ctx, "eve@example.com", "Secret#123", "eve")
	require.NoError(t, err)
	tokens.expire(c.currentAccessToken())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := c.CurrentUser(ctx)
			if err == nil && user == nil {
				err = errors.New("signed out")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, tokens.refreshCounter.Load())
	assert.True(t, c.SignedIn())
}

func TestClient_RejectedRefreshSignsOut(t *testing.T) {
	ctx := context.Background()
	tokens := &expiringTokens{expired: map[string]bool{}, rejectRefresh: true}
	c := newTestClientWith(t, tokens.wrap)

	_, err := c.SignUp(ctx, "fred@example.com", "Secret#123", "fred")
	require.NoError(t, err)
	tokens.expire(c.currentAccessToken())

	_, err = c.CreateVoiceCard(ctx, models.VoiceCardInput{AudioURL: "x"})
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)
	assert.False(t, c.SignedIn())

	user, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.EqualValues(t, 1, tokens.refreshCounter.Load())
}

func TestClient_ProfileAndAccountDeletion(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.SignUp(ctx, "gina@example.com", "Secret#123", "gina")
	require.NoError(t, err)
	_, err = c.SignUp(ctx, "hal@example.com", "Secret#123", "hal")
	require.NoError(t, err)

	updated, err := c.UpdateProfile(ctx, "halbert", "")
	require.NoError(t, err)
	assert.Equal(t, "halbert", updated.Username)
	assert.Equal(t, "hal@example.com", updated.Email)
	assert.Equal(t, "halbert", c.CachedUser().Username)

	_, err = c.UpdateProfile(ctx, "", "gina@example.com")
	assert.ErrorIs(t, err, common.ErrEmailInUse)

	token := c.currentAccessToken()
	err = c.DeleteAccount(ctx, "Wrong#1234")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.True(t, c.SignedIn())
	assert.Equal(t, token, c.currentAccessToken(), "a wrong password must not rotate tokens")

	require.NoError(t, c.DeleteAccount(ctx, "Secret#123"))
	assert.False(t, c.SignedIn())

	_, err = c.SignIn(ctx, "hal@example.com", "Secret#123")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	assert.ErrorIs(t, c.DeleteAccount(ctx, "Secret#123"), common.ErrAuthenticationRequired)
}

func TestClient_RequiresSessionForWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.UploadBlob(ctx, []byte("audio"), "key.m4a")
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	_, err = c.CreateVoiceCard(ctx, models.VoiceCardInput{AudioURL: "x"})
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	assert.ErrorIs(t, c.Refresh(ctx), common.ErrAuthenticationRequired)
}

func TestClient_VoiceCards(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	user, err := c.SignUp(ctx, "bob@example.com", "Secret#123", "bob")
	require.NoError(t, err)

	url, err := c.UploadBlob(ctx, []byte("fake-audio"), user.AuthID.String()+"-1700000000000")
	require.NoError(t, err)

	blob, err := c.OpenBlob(ctx, url)
	require.NoError(t, err)
	data, err := io.ReadAll(blob)
	blob.Close()
	require.NoError(t, err)
	assert.Equal(t, "fake-audio", string(data))

	parent, err := c.CreateVoiceCard(ctx, models.VoiceCardInput{
		Author:        models.Author{ID: user.AuthID, Name: user.Username},
		AudioURL:      url,
		AudioDuration: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCardTitle, parent.Title)

	time.Sleep(2 * time.Millisecond)
	reply, err := c.CreateVoiceCard(ctx, models.VoiceCardInput{
		AudioURL: url,
		ParentID: &parent.ID,
	})
	require.NoError(t, err)

	feed, err := c.ListVoiceCards(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, parent.ID, feed[0].ID)

	replies, err := c.ListReplies(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	got, err := c.GetVoiceCard(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)

	_, err = c.GetVoiceCard(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	missing := uuid.New()
	_, err = c.CreateVoiceCard(ctx, models.VoiceCardInput{AudioURL: url, ParentID: &missing})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = c.OpenBlob(ctx, url+"-missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestClient_WatchFeed(t *testing.T) {
	c := newTestClient(t)

	user, err := c.SignUp(context.Background(), "carol@example.com", "Secret#123", "carol")
	require.NoError(t, err)
	url, err := c.UploadBlob(context.Background(), []byte("a"), user.AuthID.String()+"-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *models.VoiceCard, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.WatchFeed(ctx, func(card *models.VoiceCard) {
			select {
			case received <- card:
			default:
			}
		})
	}()

	// The subscription is registered asynchronously; post until one arrives
	var got *models.VoiceCard
	require.Eventually(t, func() bool {
		if _, err := c.CreateVoiceCard(context.Background(), models.VoiceCardInput{AudioURL: url}); err != nil {
			return false
		}

		select {
		case got = <-received:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, user.AuthID, got.Author.ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchFeed did not return after cancel")
	}
}

func TestClient_TimeoutIsNetworkFailure(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	c := New(slow.URL, 20*time.Millisecond, log.New(io.Discard))

	_, err := c.ListVoiceCards(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNetworkFailure)
	assert.True(t, common.IsRetryable(err))
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, time.Second, log.New(io.Discard))

	_, err := c.ListVoiceCards(context.Background())
	assert.ErrorIs(t, err, common.ErrNetworkFailure)
}

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		err  *APIError
		want error
	}{
		{&APIError{Status: 401, Code: "invalid_credentials"}, common.ErrInvalidCredentials},
		{&APIError{Status: 401, Code: "unauthorized"}, common.ErrAuthenticationRequired},
		{&APIError{Status: 409, Code: "email_in_use"}, common.ErrEmailInUse},
		{&APIError{Status: 404, Code: "not_found"}, common.ErrNotFound},
		{&APIError{Status: 502, Code: "upload_failed"}, common.ErrUploadFailed},
		{&APIError{Status: 500, Code: "write_failed"}, common.ErrWriteFailed},
		{&APIError{Status: 401}, common.ErrAuthenticationRequired},
		{&APIError{Status: 503}, common.ErrNetworkFailure},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, tt.want, tt.err.Error())
	}

	assert.Nil(t, errors.Unwrap(&APIError{Status: 400, Code: "validation"}))
}
