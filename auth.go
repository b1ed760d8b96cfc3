package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lazuli-sync/internal/auth"
	"github.com/tonimelisma/lazuli-sync/internal/client"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Register, log in, and manage the local session",
	}

	cmd.AddCommand(newAuthRegisterCmd())
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthWhoamiCmd())

	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuthRegister(cmd, email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist a local session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuthLogin(cmd, email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current session and clear local credentials",
		RunE:  runAuthLogout,
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		RunE:  runAuthWhoami,
	}
}

// promptPassword reads a password from stdin, echoing a prompt to stderr.
// Unlike a terminal-raw-mode prompt, input is not hidden — acceptable for
// this CLI's scope, which has no dependency offering masked input.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// ensureSession restores the in-memory session from the persisted session
// file if one exists and none is currently active, prompting for the
// account password to re-derive the encryption key (the refresh token is
// never stored decryptable without it).
func ensureSession(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	if cc.State.Auth.State() != nil {
		return nil
	}

	email, saltB64, err := cc.State.Auth.PeekSession()
	if err != nil {
		return fmt.Errorf("not logged in — run 'lazuli-sync auth login' first")
	}

	password, err := promptPassword(fmt.Sprintf("Password for %s: ", email))
	if err != nil {
		return err
	}

	mat, err := cc.State.Auth.PrepareLogin(password, saltB64)
	if err != nil {
		return fmt.Errorf("deriving session key: %w", err)
	}

	if err := cc.State.Auth.Restore(cmd.Context(), mat.EncryptionKey, cc.State.Client); err != nil {
		return fmt.Errorf("unlocking session: %w", err)
	}

	return nil
}

func runAuthRegister(cmd *cobra.Command, email string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	password, err := promptPassword("Choose a password: ")
	if err != nil {
		return err
	}

	mat, err := cc.State.Auth.PrepareRegistration(email, password)
	if err != nil {
		return fmt.Errorf("preparing registration: %w", err)
	}

	resp, err := cc.State.Client.Register(ctx, client.RegisterRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}

	return finishLogin(cc, resp, mat.Email, mat.SaltB64, mat.EncryptionKey)
}

func runAuthLogin(cmd *cobra.Command, email string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	salt, err := cc.State.Client.GetSalt(ctx, email)
	if err != nil {
		return fmt.Errorf("fetching salt: %w", err)
	}

	mat, err := cc.State.Auth.PrepareLogin(password, salt.Salt)
	if err != nil {
		return fmt.Errorf("preparing login: %w", err)
	}

	resp, err := cc.State.Client.Login(ctx, client.LoginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	return finishLogin(cc, resp, email, salt.Salt, mat.EncryptionKey)
}

// finishLogin installs the session returned by register/login and persists
// it so later invocations can unlock it via ensureSession.
func finishLogin(cc *CLIContext, resp *client.AuthResponse, email, saltB64 string, encryptionKey []byte) error {
	user := auth.User{
		ID:                resp.User.ID,
		Email:             resp.User.Email,
		EmailVerified:     resp.User.EmailVerified,
		SubscriptionTier:  string(resp.User.SubscriptionTier),
		StorageQuotaBytes: resp.User.StorageQuotaBytes,
		StorageUsedBytes:  resp.User.StorageUsedBytes,
	}

	cc.State.Auth.SetAuthState(user, resp.DeviceID, cc.State.Holder.Config().Network.ServerURL,
		resp.AccessToken, resp.RefreshToken, resp.ExpiresIn, email, saltB64, encryptionKey)

	if err := cc.State.Auth.Persist(); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	fmt.Printf("Signed in as %s.\n", email)

	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := ensureSession(cmd); err == nil {
		if logoutErr := cc.State.Client.Logout(cmd.Context()); logoutErr != nil {
			cc.Logger.Warn("server-side logout failed, clearing local session anyway", "error", logoutErr)
		}
	}

	cc.State.Auth.Clear()
	fmt.Println("Logged out.")

	return nil
}

// whoamiOutput is the JSON schema for `auth whoami --json`.
type whoamiOutput struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Tier  string `json:"subscription_tier"`
}

func runAuthWhoami(cmd *cobra.Command, _ []string) error {
	if err := ensureSession(cmd); err != nil {
		return err
	}

	cc := mustCLIContext(cmd.Context())

	user, err := cc.State.Client.GetAccount(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching account: %w", err)
	}

	if cc.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(whoamiOutput{ID: user.ID, Email: user.Email, Tier: string(user.SubscriptionTier)})
	}

	fmt.Printf("User:  %s\n", user.Email)
	fmt.Printf("ID:    %s\n", user.ID)
	fmt.Printf("Tier:  %s\n", user.SubscriptionTier)
	fmt.Printf("Quota: %s / %s\n", formatSize(user.StorageUsedBytes), formatSize(user.StorageQuotaBytes))

	return nil
}
