// Package appstate holds the process-wide SyncState aggregate: the shared
// AuthManager, StateStore, and Client handle, plus the vault-lifecycle
// orchestration functions that sit above syncvault. Constructed once at
// startup with the resolved app-data directory; never accessed from free
// functions.
package appstate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/lazuli-sync/internal/auth"
	"github.com/tonimelisma/lazuli-sync/internal/client"
	"github.com/tonimelisma/lazuli-sync/internal/config"
	"github.com/tonimelisma/lazuli-sync/internal/syncvault"
)

// maxParallelVaultSyncs bounds how many vaults sync concurrently.
const maxParallelVaultSyncs = 4

// sessionFileName and stateFileName are the on-disk files under
// app_data.
const (
	sessionFileName = "auth.json"
	stateFileName   = "sync_state.json"
)

// SyncState is the process-wide aggregate of auth, persisted sync state,
// and the API client. One instance is constructed at startup and shared
// across every command and background task; it owns no per-vault Engine —
// those are created on demand from the Client and StateStore it holds.
type SyncState struct {
	Auth    *auth.AuthManager
	Store   *syncvault.StateStore
	Client  *client.Client
	Holder  *config.Holder
	Logger  *slog.Logger
	DataDir string
}

// New constructs a SyncState rooted at dataDir (typically
// config.DefaultDataDir()), loading any persisted sync state from disk. The
// Client is bound to cfg.Network.ServerURL and authenticates requests via
// the AuthManager's access token. Session restore is the caller's
// responsibility (it requires the user's encryption key); call
// s.Auth.Restore after New returns.
func New(dataDir string, holder *config.Holder, logger *slog.Logger) (*SyncState, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	authMgr := auth.New(filepath.Join(dataDir, sessionFileName), logger)
	store := syncvault.NewStateStore(filepath.Join(dataDir, stateFileName), logger)

	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("appstate: loading sync state: %w", err)
	}

	apiClient := client.New(holder.Config().Network.ServerURL, authMgr, logger)

	return &SyncState{
		Auth:    authMgr,
		Store:   store,
		Client:  apiClient,
		Holder:  holder,
		Logger:  logger,
		DataDir: dataDir,
	}, nil
}

// currentUserID returns the logged-in user's id, or "" if no session.
func (s *SyncState) currentUserID() string {
	st := s.Auth.State()
	if st == nil {
		return ""
	}

	return st.User.ID
}

// EnableVault creates a new remote vault, binds the local directory to it
// in the StateStore, and writes the in-vault manifest.
func (s *SyncState) EnableVault(ctx context.Context, path, name string) (string, error) {
	info, err := s.Client.CreateVault(ctx, name)
	if err != nil {
		return "", fmt.Errorf("appstate: creating vault: %w", err)
	}

	s.Store.Enable(path, info.ID)

	manifest := syncvault.VaultSyncManifest{
		RemoteVaultID: info.ID,
		ServerURL:     s.Holder.Config().Network.ServerURL,
		UserID:        s.currentUserID(),
		ConnectedAtMs: time.Now().UnixMilli(),
	}

	if err := syncvault.WriteManifest(path, manifest); err != nil {
		return "", fmt.Errorf("appstate: writing manifest: %w", err)
	}

	return info.ID, nil
}

// ConnectVault binds path to an existing remote vault, writes the
// manifest, then runs one additive-only sync cycle so pre-existing local
// files are preserved rather than overwritten.
func (s *SyncState) ConnectVault(ctx context.Context, path, remoteVaultID string) (syncvault.SyncOperationResult, error) {
	s.Store.Enable(path, remoteVaultID)

	manifest := syncvault.VaultSyncManifest{
		RemoteVaultID: remoteVaultID,
		ServerURL:     s.Holder.Config().Network.ServerURL,
		UserID:        s.currentUserID(),
		ConnectedAtMs: time.Now().UnixMilli(),
	}

	if err := syncvault.WriteManifest(path, manifest); err != nil {
		return syncvault.SyncOperationResult{}, fmt.Errorf("appstate: writing manifest: %w", err)
	}

	engine := syncvault.NewEngine(
		s.Holder.Config().Network.ServerURL,
		remoteVaultID,
		path,
		true, // additive-only: preserve locally-present files on first connect
		s.Client,
		s.Store,
		s.Logger,
	)

	result, err := engine.Sync(ctx)
	if err != nil {
		return result, fmt.Errorf("appstate: initial additive sync: %w", err)
	}

	return result, nil
}

// DisableVault marks the vault disabled, drops its file states, and
// deletes the in-vault manifest. The VaultState itself is retained
// (disabled, not removed) so re-enabling later does not require
// re-registering with the server.
func (s *SyncState) DisableVault(path, vaultID string) error {
	s.Store.Disable(vaultID)
	s.Store.ClearVaultFileStates(vaultID)

	if err := syncvault.DeleteManifest(path); err != nil {
		return fmt.Errorf("appstate: deleting manifest: %w", err)
	}

	return nil
}

// DetectVaultConnection reads the manifest at path (if any) and reports
// its binding against the current session.
func (s *SyncState) DetectVaultConnection(path string) (*syncvault.VaultConnection, error) {
	conn, err := syncvault.DetectVaultConnection(path, s.currentUserID(), s.Store)
	if err != nil {
		return nil, fmt.Errorf("appstate: detecting vault connection: %w", err)
	}

	return conn, nil
}

// AutoReconnectVault re-enables a manifest-bound vault, run after session
// restore for each known vault path.
func (s *SyncState) AutoReconnectVault(path string) (bool, error) {
	reconnected, err := syncvault.AutoReconnectVault(
		path,
		s.currentUserID(),
		s.Holder.Config().Network.ServerURL,
		s.Store,
	)
	if err != nil {
		return false, fmt.Errorf("appstate: auto-reconnecting vault: %w", err)
	}

	return reconnected, nil
}

// RefreshSessionIfNeeded exchanges the refresh token for a new access
// token when the current one is within the refresh window. The Engine never
// refreshes tokens itself; callers invoke this before starting a cycle.
func (s *SyncState) RefreshSessionIfNeeded(ctx context.Context) error {
	if !s.Auth.NeedsTokenRefresh() {
		return nil
	}

	st := s.Auth.State()
	if st == nil || st.RefreshToken == "" {
		return nil
	}

	refreshed, err := s.Client.RefreshToken(ctx, st.RefreshToken)
	if err != nil {
		return fmt.Errorf("appstate: refreshing session: %w", err)
	}

	s.Auth.ApplyRefresh(refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresIn)

	return nil
}

// NewEngineForVault builds an Engine bound to this SyncState's shared
// Client and StateStore, for a regular (non-additive) sync cycle.
func (s *SyncState) NewEngineForVault(vaultID, path string) *syncvault.Engine {
	return syncvault.NewEngine(
		s.Holder.Config().Network.ServerURL,
		vaultID,
		path,
		s.Holder.Config().Sync.AdditiveOnly,
		s.Client,
		s.Store,
		s.Logger,
	)
}

// VaultSyncOutcome pairs a vault id with the SyncOperationResult (or error)
// its cycle produced.
type VaultSyncOutcome struct {
	VaultID string
	Path    string
	Result  syncvault.SyncOperationResult
	Err     error
}

// SyncAllVaults runs one sync cycle per enabled vault concurrently,
// bounded by maxParallelVaultSyncs. Each vault's Engine still enforces its
// own per-vault mutex, so a slow cycle for one vault never blocks another.
// A per-vault failure is captured in its VaultSyncOutcome and never aborts
// the others.
func (s *SyncState) SyncAllVaults(ctx context.Context, vaults map[string]string) []VaultSyncOutcome {
	outcomes := make([]VaultSyncOutcome, len(vaults))

	vaultIDs := make([]string, 0, len(vaults))
	paths := make([]string, 0, len(vaults))

	for vaultID, path := range vaults {
		vaultIDs = append(vaultIDs, vaultID)
		paths = append(paths, path)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelVaultSyncs)

	for i := range vaultIDs {
		i := i

		g.Go(func() error {
			engine := s.NewEngineForVault(vaultIDs[i], paths[i])
			result, err := engine.Sync(gctx)

			outcomes[i] = VaultSyncOutcome{
				VaultID: vaultIDs[i],
				Path:    paths[i],
				Result:  result,
				Err:     err,
			}

			// Never propagate a single vault's error to errgroup — that
			// would cancel gctx and abort every other in-flight vault.
			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}
