package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	requestTimeout    = 30 * time.Second
	userAgent         = "lazuli-sync/1.0"
	maxRetries        = 4
	baseBackoff       = 500 * time.Millisecond
	maxBackoff        = 8 * time.Second
	defaultRetryAfter = 60
)

// apiPrefix is prepended to every endpoint path; presigned upload/download
// URLs bypass it.
const apiPrefix = "/api/v1"

// TokenSource supplies the current bearer token for authenticated requests.
// A narrow, consumer-defined interface — Client does not know or care how
// the token is obtained or refreshed.
type TokenSource interface {
	AccessToken() (string, error)
}

// Client is the HTTP transport for the sync API: authenticated JSON
// requests with retry/backoff, an unauthenticated variant, and raw
// presigned PUT/GET.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger

	// sleepFunc is injectable so retry/backoff tests run instantly.
	sleepFunc func(time.Duration)
}

// New constructs a Client against baseURL, authenticating requests via
// tokens. A nil logger discards output.
func New(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		tokens:     tokens,
		logger:     logger,
		sleepFunc:  time.Sleep,
	}
}

// doJSON performs an authenticated JSON request and decodes the response
// into out (if non-nil), retrying on transient failures.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return fmt.Errorf("client: resolving access token: %w", err)
	}

	return c.doRetry(ctx, method, c.baseURL+apiPrefix+path, body, out, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
}

// doUnauth performs an unauthenticated JSON request, used for
// salt/register/login/refresh.
func (c *Client) doUnauth(ctx context.Context, method, path string, body, out any) error {
	return c.doRetry(ctx, method, c.baseURL+apiPrefix+path, body, out, nil)
}

// doRetry runs doOnce up to maxRetries+1 times, retrying on network errors
// and retryable status codes with capped exponential backoff and jitter.
func (c *Client) doRetry(ctx context.Context, method, requestURL string, body, out any, decorate func(*http.Request)) error {
	var bodyBytes []byte

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding request body: %w", err)
		}

		bodyBytes = encoded
	}

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.doOnce(ctx, method, requestURL, bodyBytes, out, decorate)
		if err == nil {
			return nil
		}

		lastErr = err

		apiErr, ok := asAPIError(err)
		switch {
		case !ok:
			// Network-level failure: retryable below.
		case apiErr.Err == ErrSessionExpired:
			// Only the auth layer can refresh the token and retry.
			return err
		case apiErr.Err == ErrRateLimited:
			// Surfaced directly: the orchestrator honours Retry-After by
			// scheduling the next cycle, not by blocking this request.
			c.logger.Warn("client: rate limited", "retry_after_s", apiErr.RetryAfter)
			return err
		case apiErr.Err == ErrServer && apiErr.StatusCode < http.StatusInternalServerError:
			return err // 4xx other than 401/429 is not retryable
		}

		if attempt == maxRetries {
			break
		}

		c.sleepFunc(calcBackoff(attempt))
	}

	return lastErr
}

func asAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}

// calcBackoff returns a capped exponential backoff, jittered within
// [d/2, d] so concurrent clients do not retry in lockstep.
func calcBackoff(attempt int) time.Duration {
	d := baseBackoff << uint(attempt)
	if d > maxBackoff {
		d = maxBackoff
	}

	half := int64(d) / 2

	return time.Duration(half + rand.Int64N(half+1))
}

func (c *Client) doOnce(ctx context.Context, method, requestURL string, bodyBytes []byte, out any, decorate func(*http.Request)) error {
	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrNetwork, err)
	}

	req.Header.Set("User-Agent", userAgent)

	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if decorate != nil {
		decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		apiErr := &APIError{StatusCode: resp.StatusCode, Err: sentinel}

		if sentinel == ErrRateLimited {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			return apiErr
		}

		body, _ := io.ReadAll(resp.Body)
		apiErr.Body = string(body)

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Err: ErrServer, Body: fmt.Sprintf("decoding response: %v", err)}
	}

	return nil
}

func parseRetryAfter(header string) int {
	if header == "" {
		return defaultRetryAfter
	}

	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}

	return secs
}

// PutBytes PUTs raw bytes to a presigned upload URL with
// Content-Type: application/octet-stream. No retry: a failed upload is a
// per-file error in the calling cycle.
func (c *Client) PutBytes(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: building upload request: %v", ErrNetwork, err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: upload failed: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Err: ErrServer, Body: string(body)}
	}

	return nil
}

// GetBytes GETs raw bytes from a presigned download URL, attaching the
// bearer token.
func (c *Client) GetBytes(ctx context.Context, downloadURL string) ([]byte, error) {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return nil, fmt.Errorf("client: resolving access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building download request: %v", ErrNetwork, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download failed: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Err: ErrServer, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading download body: %v", ErrNetwork, err)
	}

	return data, nil
}

// GetSalt fetches the per-account Argon2id salt for email, used by the
// dormant auth_hash flow.
func (c *Client) GetSalt(ctx context.Context, email string) (*SaltResponse, error) {
	var out SaltResponse
	if err := c.doUnauth(ctx, http.MethodGet, "/auth/salt?email="+url.QueryEscape(email), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Register creates a new account with a plaintext password (the active,
// server-authenticated flow).
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doUnauth(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// RegisterWithAuthHash registers using a pre-derived Argon2id auth_hash
// (dormant E2E-ready flow).
func (c *Client) RegisterWithAuthHash(ctx context.Context, req RegisterRequestWithAuthHash) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doUnauth(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Login authenticates with a plaintext password.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doUnauth(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// LoginWithAuthHash authenticates using a pre-derived auth_hash.
func (c *Client) LoginWithAuthHash(ctx context.Context, req LoginRequestWithAuthHash) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doUnauth(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// RefreshToken exchanges a refresh token for a new access/refresh pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenRefreshResponse, error) {
	var out TokenRefreshResponse

	req := TokenRefreshRequest{RefreshToken: refreshToken}
	if err := c.doUnauth(ctx, http.MethodPost, "/auth/refresh", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Logout revokes the current device's session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// GetAccount returns the authenticated user's account record.
func (c *Client) GetAccount(ctx context.Context) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/account", nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetUsage returns the authenticated user's storage usage.
func (c *Client) GetUsage(ctx context.Context) (*UsageResponse, error) {
	var out UsageResponse
	if err := c.doJSON(ctx, http.MethodGet, "/account/usage", nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListDevices returns the devices registered to the account.
func (c *Client) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	var out []DeviceInfo
	if err := c.doJSON(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// RevokeDevice revokes a device's session by ID.
func (c *Client) RevokeDevice(ctx context.Context, deviceID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/devices/"+deviceID, nil, nil)
}

// ListVaults returns the vaults the account owns.
func (c *Client) ListVaults(ctx context.Context) ([]VaultInfo, error) {
	var out []VaultInfo
	if err := c.doJSON(ctx, http.MethodGet, "/vaults", nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// CreateVault creates a new remote vault named name.
func (c *Client) CreateVault(ctx context.Context, name string) (*VaultInfo, error) {
	var out VaultInfo

	req := CreateVaultRequest{Name: name}
	if err := c.doJSON(ctx, http.MethodPost, "/vaults", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetVault fetches a single vault's metadata.
func (c *Client) GetVault(ctx context.Context, vaultID string) (*VaultInfo, error) {
	var out VaultInfo
	if err := c.doJSON(ctx, http.MethodGet, "/vaults/"+vaultID, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteVault deletes a remote vault and all of its files.
func (c *Client) DeleteVault(ctx context.Context, vaultID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/vaults/"+vaultID, nil, nil)
}

// GetVaultKey fetches the wrapped vault encryption key (dormant E2E path).
func (c *Client) GetVaultKey(ctx context.Context, vaultID string) (*EncryptedVaultKey, error) {
	var out EncryptedVaultKey
	if err := c.doJSON(ctx, http.MethodGet, "/vaults/"+vaultID+"/key", nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// PutVaultKey stores a wrapped vault encryption key (dormant E2E path).
func (c *Client) PutVaultKey(ctx context.Context, vaultID string, req PutVaultKeyRequest) error {
	return c.doJSON(ctx, http.MethodPut, "/vaults/"+vaultID+"/key", req, nil)
}

// Pull fetches one page of remote changes since cursor.
func (c *Client) Pull(ctx context.Context, vaultID string, req PullRequest) (*PullResponse, error) {
	var out PullResponse
	if err := c.doJSON(ctx, http.MethodPost, "/vaults/"+vaultID+"/sync/pull", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Push submits a batch of local changes.
func (c *Client) Push(ctx context.Context, vaultID string, req PushRequest) (*PushResponse, error) {
	var out PushResponse
	if err := c.doJSON(ctx, http.MethodPost, "/vaults/"+vaultID+"/sync/push", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ConfirmUpload acknowledges that the uploaded objects named by fileIDs
// were written successfully.
func (c *Client) ConfirmUpload(ctx context.Context, vaultID string, fileIDs []string) error {
	req := ConfirmUploadRequest{FileIDs: fileIDs}
	return c.doJSON(ctx, http.MethodPost, "/vaults/"+vaultID+"/sync/confirm", req, nil)
}

// GetSyncStatus returns a vault's pending-change count and lifecycle state.
func (c *Client) GetSyncStatus(ctx context.Context, vaultID string) (*VaultSyncStatusResponse, error) {
	var out VaultSyncStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/vaults/"+vaultID+"/sync/status", nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
