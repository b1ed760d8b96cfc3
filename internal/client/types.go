package client

// AuthResponse is returned by /auth/register, /auth/login, and carries the
// full session bootstrap. expires_in is in seconds.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
	DeviceID     string `json:"device_id"`
}

// SubscriptionTier enumerates the account tiers carried on User.
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPro  SubscriptionTier = "pro"
	TierTeam SubscriptionTier = "team"
)

// User is the account record returned by auth and account endpoints.
type User struct {
	ID                string           `json:"id"`
	Email             string           `json:"email"`
	EmailVerified     bool             `json:"email_verified"`
	SubscriptionTier  SubscriptionTier `json:"subscription_tier"`
	StorageQuotaBytes int64            `json:"storage_quota_bytes"`
	StorageUsedBytes  int64            `json:"storage_used_bytes"`
}

// SaltResponse is returned by GET /auth/salt.
type SaltResponse struct {
	Salt string `json:"salt"`
}

// RegisterRequest is the body of POST /auth/register in the active,
// server-authenticated plaintext flow. The Argon2id-derived auth_hash
// variant remains available via RegisterRequestWithAuthHash for the
// dormant E2E-ready path.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequestWithAuthHash is the alternate registration body using a
// pre-derived auth_hash instead of a plaintext password.
type RegisterRequestWithAuthHash struct {
	Email      string `json:"email"`
	AuthHash   string `json:"auth_hash"`
	Salt       string `json:"salt"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

// LoginRequest is the plaintext-flow login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequestWithAuthHash is the auth_hash-flow login body.
type LoginRequestWithAuthHash struct {
	Email      string `json:"email"`
	AuthHash   string `json:"auth_hash"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

// TokenRefreshRequest is the body of POST /auth/refresh.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenRefreshResponse is returned by POST /auth/refresh.
type TokenRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// VaultInfo is returned by the vault listing/creation endpoints.
type VaultInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// CreateVaultRequest is the body of POST /vaults.
type CreateVaultRequest struct {
	Name string `json:"name"`
}

// PullRequest is the body of POST /vaults/{id}/sync/pull.
type PullRequest struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

// PullResponse is returned by the pull endpoint.
type PullResponse struct {
	Changes    []RemoteChangeWire `json:"changes"`
	NextCursor string             `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

// RemoteChangeWire is the wire shape of one pulled change; kept distinct
// from syncvault.RemoteChange so the client package has no dependency on
// the sync engine package.
type RemoteChangeWire struct {
	ID          string `json:"id"`
	EncodedPath string `json:"encoded_path"`
	Op          string `json:"op"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
	ModifiedAt  int64  `json:"modified_at"`
	Version     int64  `json:"version"`
	DownloadURL string `json:"download_url,omitempty"`
}

// PushChange is one entry of a push batch request.
type PushChange struct {
	EncodedPath string `json:"encoded_path"`
	Op          string `json:"op"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
	ModifiedAt  int64  `json:"modified_at"`
	BaseVersion *int64 `json:"base_version"`
}

// PushRequest is the body of POST /vaults/{id}/sync/push.
type PushRequest struct {
	Changes []PushChange `json:"changes"`
}

// PushResult is one entry of a push response.
type PushResult struct {
	EncodedPath string `json:"encoded_path"`
	Status      string `json:"status"`
	UploadURL   string `json:"upload_url,omitempty"`
	NewVersion  *int64 `json:"new_version,omitempty"`
	FileID      string `json:"file_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PushResponse is returned by the push endpoint.
type PushResponse struct {
	Results   []PushResult `json:"results"`
	Conflicts []string     `json:"conflicts"`
}

// ConfirmUploadRequest is the body of POST /vaults/{id}/sync/confirm.
type ConfirmUploadRequest struct {
	FileIDs []string `json:"file_ids"`
}

// VaultSyncStatusResponse is returned by GET /vaults/{id}/sync/status.
type VaultSyncStatusResponse struct {
	PendingChanges int    `json:"pending_changes"`
	LastSyncAt     int64  `json:"last_sync_at"`
	Lifecycle      string `json:"lifecycle"`
}

// DeviceInfo is returned by the devices listing endpoint.
type DeviceInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
	CreatedAt  int64  `json:"created_at"`
	LastSeenAt int64  `json:"last_seen_at"`
}

// UsageResponse is returned by GET /account/usage.
type UsageResponse struct {
	UsedBytes  int64 `json:"used_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
}

// EncryptedVaultKey is returned by GET /vaults/{id}/key (dormant E2E
// surface).
type EncryptedVaultKey struct {
	WrappedKey string `json:"wrapped_key"`
	Nonce      string `json:"nonce"`
}

// PutVaultKeyRequest is the body of PUT /vaults/{id}/key.
type PutVaultKeyRequest struct {
	WrappedKey string `json:"wrapped_key"`
	Nonce      string `json:"nonce"`
}
