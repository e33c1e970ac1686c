package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/errors"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/httpclient"
)

// Client is the typed client for the remote SportyPredict auth API.
// All methods return AppErrors for non-2xx responses so callers can
// distinguish authentication (401) from authorization (403) failures.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// New creates an auth API client rooted at baseURL.
func New(hc *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *Client {
	return &Client{http: hc, baseURL: baseURL, logger: logger}
}

// Register creates a new account. The server may issue tokens before the
// email is verified.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*AuthData, error) {
	var data AuthData
	if err := c.post(ctx, "/auth/register", "", input, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Login exchanges credentials for a session. Callers must inspect
// User.EmailVerified before treating the session as established.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthData, error) {
	body := map[string]string{"email": email, "password": password}
	var data AuthData
	if err := c.post(ctx, "/auth/login", "", body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// VerifyEmail confirms the verification code sent to the given address.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) error {
	body := map[string]string{"email": email, "verificationCode": code}
	return c.post(ctx, "/auth/verify-email", "", body, nil)
}

// ResendVerification requests a fresh verification code.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.post(ctx, "/auth/resend-verification", "", body, nil)
}

// RefreshToken exchanges a refresh token for a new credential pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshData, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var data RefreshData
	if err := c.post(ctx, "/auth/refresh-token", "", body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate checks that the access token is still accepted and returns the
// latest account snapshot.
func (c *Client) Validate(ctx context.Context, accessToken string) (*User, error) {
	var data struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/auth/validate", accessToken, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// VipStatus fetches the authoritative VIP entitlement snapshot.
func (c *Client) VipStatus(ctx context.Context, accessToken string) (*VipStatus, error) {
	var data VipStatus
	if err := c.get(ctx, "/auth/vip-status", accessToken, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// UserStatus fetches the broader account status snapshot.
func (c *Client) UserStatus(ctx context.Context, accessToken string) (*UserStatus, error) {
	var data UserStatus
	if err := c.get(ctx, "/auth/user-status", accessToken, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ProcessPayment records a subscription purchase and returns the updated
// entitlement.
func (c *Client) ProcessPayment(ctx context.Context, accessToken string, input PaymentInput) (*VipStatus, error) {
	var data VipStatus
	if err := c.post(ctx, "/auth/process-payment", accessToken, input, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// UpdateProfile patches the mutable profile fields.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, update ProfileUpdate) (*User, error) {
	var data struct {
		User User `json:"user"`
	}
	if err := c.patch(ctx, "/auth/update-profile", accessToken, update, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// UpdatePassword changes the account password.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return c.patch(ctx, "/auth/update-password", accessToken, body, nil)
}

// UpdateProfileImage replaces the stored profile image URL.
func (c *Client) UpdateProfileImage(ctx context.Context, accessToken, imageURL string) (*User, error) {
	body := map[string]string{"profileImage": imageURL}
	var data struct {
		User User `json:"user"`
	}
	if err := c.patch(ctx, "/auth/update-profile-image", accessToken, body, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// RequestPasswordReset starts the password reset flow for the address.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.post(ctx, "/auth/reset-password-request", "", body, nil)
}

// ResetPassword completes the reset flow using the emailed token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "newPassword": newPassword}
	return c.post(ctx, "/auth/reset-password", "", body, nil)
}

// DeleteAccount permanently removes the account.
func (c *Client) DeleteAccount(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodDelete, "/auth/delete-account", accessToken, nil, nil)
}

// Logout notifies the server that the session ended. Best effort only;
// callers clear local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/logout", accessToken, nil, nil)
}

// --- transport helpers ---

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	return c.do(ctx, http.MethodGet, path, token, nil, out)
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, token, body, out)
}

func (c *Client) patch(ctx context.Context, path, token string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, token, body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("auth api %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "auth api")
	}

	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return apperrors.InvalidResponse(fmt.Sprintf("decode %s response: %v", path, err))
	}
	if len(env.Data) == 0 {
		return apperrors.InvalidResponse(fmt.Sprintf("%s response missing data", path))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.InvalidResponse(fmt.Sprintf("decode %s data: %v", path, err))
	}
	return nil
}
