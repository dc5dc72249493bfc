// Package client talks to the voicecards HTTP API. It keeps the signed-in
// session in memory and maps failures onto the common error taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     *log.Logger

	// refreshMu serializes token rotation across concurrent 401s
	refreshMu sync.Mutex

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *models.User
}

type authResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

type listResponse struct {
	VoiceCards []*models.VoiceCard `json:"voicecards"`
	Count      int                 `json:"count"`
}

func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		log:     logger,
	}
}

// SignUp creates the account and signs in as it
func (c *Client) SignUp(ctx context.Context, email, password, username string) (*models.User, error) {
	req := map[string]string{
		"email":    email,
		"password": password,
		"username": username,
	}

	resp := new(authResponse)
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", req, resp, false); err != nil {
		return nil, err
	}

	c.setSession(resp)
	c.log.Info("Signed up", "user_id", resp.User.AuthID)

	return resp.User, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	req := map[string]string{
		"email":    email,
		"password": password,
	}

	resp := new(authResponse)
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signin", req, resp, false); err != nil {
		return nil, err
	}

	c.setSession(resp)
	c.log.Info("Signed in", "user_id", resp.User.AuthID)

	return resp.User, nil
}

// SignOut ends the server session. The local session is dropped either way.
func (c *Client) SignOut(ctx context.Context) error {
	if !c.SignedIn() {
		return nil
	}

	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signout", nil, nil, true)
	c.clearSession()

	if err != nil && !errors.Is(err, common.ErrAuthenticationRequired) {
		return err
	}
	return nil
}

// Refresh swaps the refresh token for a new pair
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()

	if refresh == "" {
		return common.ErrAuthenticationRequired
	}

	resp := new(authResponse)
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refresh}, resp, false)
	if err != nil {
		if errors.Is(err, common.ErrAuthenticationRequired) {
			c.clearSession()
		}
		return err
	}

	c.setSession(resp)
	return nil
}

// CurrentUser returns the signed-in user, or nil when nobody is signed in.
// An expired access token is refreshed transparently; the session is only
// dropped once the refresh token is rejected too.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	if !c.SignedIn() {
		return nil, nil
	}

	user := new(models.User)
	err := c.doJSON(ctx, http.MethodGet, "/api/me", nil, user, true)
	if errors.Is(err, common.ErrAuthenticationRequired) {
		c.clearSession()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	return user, nil
}

// UpdateProfile changes username and/or email; empty arguments are left alone
func (c *Client) UpdateProfile(ctx context.Context, username, email string) (*models.User, error) {
	req := map[string]string{}
	if username != "" {
		req["username"] = username
	}
	if email != "" {
		req["email"] = email
	}

	user := new(models.User)
	if err := c.doJSON(ctx, http.MethodPatch, "/api/me", req, user, true); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	c.log.Info("Profile updated", "user_id", user.AuthID)
	return user, nil
}

// DeleteAccount removes the signed-in account and drops the local session
func (c *Client) DeleteAccount(ctx context.Context, password string) error {
	req := map[string]string{"password": password}

	if err := c.doJSON(ctx, http.MethodDelete, "/api/me", req, nil, true); err != nil {
		return err
	}

	c.clearSession()
	c.log.Info("Account deleted")
	return nil
}

// CachedUser is the user from the last successful auth call, without a round trip
func (c *Client) CachedUser() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) SignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

// UploadBlob stores audio under key and returns its public URL
func (c *Client) UploadBlob(ctx context.Context, data []byte, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/blobs/"+url.PathEscape(key), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &out, true); err != nil {
		if errors.Is(err, common.ErrNetworkFailure) || errors.Is(err, common.ErrAuthenticationRequired) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", common.ErrUploadFailed, err)
	}

	c.log.Debug("Blob uploaded", "key", key, "size", len(data))
	return out.URL, nil
}

func (c *Client) CreateVoiceCard(ctx context.Context, in models.VoiceCardInput) (*models.VoiceCard, error) {
	var out struct {
		ID        uuid.UUID         `json:"id"`
		VoiceCard *models.VoiceCard `json:"voicecard"`
	}

	if err := c.doJSON(ctx, http.MethodPost, "/api/voicecards", in, &out, true); err != nil {
		return nil, err
	}

	return out.VoiceCard, nil
}

// ListVoiceCards returns the feed, newest first
func (c *Client) ListVoiceCards(ctx context.Context) ([]*models.VoiceCard, error) {
	out := new(listResponse)
	if err := c.doJSON(ctx, http.MethodGet, "/api/voicecards", nil, out, false); err != nil {
		return nil, err
	}
	return out.VoiceCards, nil
}

func (c *Client) ListReplies(ctx context.Context, parentID uuid.UUID) ([]*models.VoiceCard, error) {
	out := new(listResponse)
	if err := c.doJSON(ctx, http.MethodGet, "/api/voicecards/"+parentID.String()+"/replies", nil, out, false); err != nil {
		return nil, err
	}
	return out.VoiceCards, nil
}

func (c *Client) GetVoiceCard(ctx context.Context, id uuid.UUID) (*models.VoiceCard, error) {
	card := new(models.VoiceCard)
	if err := c.doJSON(ctx, http.MethodGet, "/api/voicecards/"+id.String(), nil, card, false); err != nil {
		return nil, err
	}
	return card, nil
}

// OpenBlob streams audio from an absolute URL. The caller's context bounds
// the whole read, so no per-call timeout is applied here.
func (c *Client) OpenBlob(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, common.NetworkError("open blob", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	return resp.Body, nil
}

func (c *Client) setSession(resp *authResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.user = resp.User
}

func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = ""
	c.refreshToken = ""
	c.user = nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, auth bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out, auth)
}

func (c *Client) send(req *http.Request, out any, auth bool) error {
	op := req.Method + " " + req.URL.Path

	token, err := c.authorize(req, auth)
	if err != nil {
		return err
	}

	status, data, err := c.roundTrip(req, op)
	if err != nil {
		return err
	}

	// Only an expired or revoked token is worth a refresh, not a wrong password
	if auth && status == http.StatusUnauthorized && errors.Is(decodeAPIError(status, data), common.ErrAuthenticationRequired) {
		retry, err := c.replay(req, token)
		if err != nil {
			return err
		}
		if retry != nil {
			if _, err := c.authorize(retry, true); err != nil {
				return err
			}
			if status, data, err = c.roundTrip(retry, op); err != nil {
				return err
			}
		}
	}

	if status < 200 || status > 299 {
		apiErr := decodeAPIError(status, data)
		c.log.Debug("Request failed", "op", op, "status", status, "error", apiErr)
		return fmt.Errorf("%s: %w", op, apiErr)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	return nil
}

func (c *Client) authorize(req *http.Request, auth bool) (string, error) {
	if !auth {
		return "", nil
	}

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()

	if token == "" {
		return "", common.ErrAuthenticationRequired
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return token, nil
}

func (c *Client) roundTrip(req *http.Request, op string) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, common.NetworkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, common.NetworkError(op, err)
	}

	return resp.StatusCode, data, nil
}

// replay refreshes the session after a 401 and rebuilds req for one more try.
// A nil request means the 401 stands.
func (c *Client) replay(req *http.Request, stale string) (*http.Request, error) {
	if req.Body != nil && req.GetBody == nil {
		return nil, nil
	}

	if err := c.refreshFrom(req.Context(), stale); err != nil {
		if errors.Is(err, common.ErrAuthenticationRequired) {
			return nil, nil
		}
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}

	return retry, nil
}

// refreshFrom rotates tokens unless another call already replaced stale
func (c *Client) refreshFrom(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.RLock()
	current := c.accessToken
	c.mu.RUnlock()

	if current != "" && current != stale {
		return nil
	}

	c.log.Debug("Access token rejected, refreshing")
	return c.Refresh(ctx)
}
