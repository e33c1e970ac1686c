package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/authapi"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/domain"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/session"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/validator"
)

// SessionManager is the slice of the session manager the handlers use.
type SessionManager interface {
	Register(ctx context.Context, input authapi.RegisterInput) session.Result
	Login(ctx context.Context, email, password string) session.Result
	VerifyEmail(ctx context.Context, email, code string) session.Result
	ResendVerification(ctx context.Context, email string) session.Result
	Logout(ctx context.Context) session.Result
	ProcessPayment(ctx context.Context, input authapi.PaymentInput) session.Result
	UpdateProfile(ctx context.Context, update authapi.ProfileUpdate) session.Result
	UpdatePassword(ctx context.Context, current, next string) session.Result
	UpdateProfileImage(ctx context.Context, imageURL string) session.Result
	RequestPasswordReset(ctx context.Context, email string) session.Result
	ResetPassword(ctx context.Context, token, newPassword string) session.Result
	DeleteAccount(ctx context.Context) session.Result
	Snapshot() domain.Snapshot
	AccessToken() string
	AddVipStatusListener(fn session.Listener) func()
}

// AuthHandler exposes the session operations over HTTP.
type AuthHandler struct {
	manager SessionManager
	logger  *slog.Logger
}

// NewAuthHandler creates an auth HTTP handler.
func NewAuthHandler(manager SessionManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{manager: manager, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for registration.
type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=50"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Country    string `json:"country" validate:"required,min=2,max=56"`
	ReferredBy string `json:"referred_by" validate:"omitempty,max=50"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyEmailRequest is the JSON request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,min=4,max=10"`
}

// EmailRequest carries a bare email address.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PaymentRequest is the JSON request body for a subscription purchase.
type PaymentRequest struct {
	Plan             string  `json:"plan" validate:"required,oneof=weekly monthly yearly custom"`
	Duration         int     `json:"duration" validate:"required,min=1,max=3660"`
	Amount           float64 `json:"amount" validate:"required,gt=0"`
	Currency         string  `json:"currency" validate:"required,len=3"`
	PaymentReference string  `json:"payment_reference" validate:"omitempty,max=100"`
}

// UpdateProfileRequest is the JSON request body for profile updates.
type UpdateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Country  *string `json:"country" validate:"omitempty,min=2,max=56"`
}

// UpdatePasswordRequest is the JSON request body for password changes.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// UpdateImageRequest is the JSON request body for profile image changes.
type UpdateImageRequest struct {
	ProfileImage string `json:"profile_image" validate:"required,url"`
}

// ResetPasswordRequest is the JSON request body completing a reset flow.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// --- Handlers ---

// decode parses and validates a JSON body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	if err := validator.Validate(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// writeResult renders the uniform operation result. The operation itself
// never fails with a transport error, so the HTTP status only reflects
// the verdict.
func writeResult(w http.ResponseWriter, res session.Result, successStatus int) {
	status := successStatus
	if !res.Success {
		status = http.StatusOK
	}
	writeJSON(w, status, response{Data: res})
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.manager.Register(r.Context(), authapi.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		Country:    req.Country,
		ReferredBy: req.ReferredBy,
	})
	writeResult(w, res, http.StatusCreated)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.manager.Login(r.Context(), req.Email, req.Password)
	writeResult(w, res, http.StatusOK)
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.manager.VerifyEmail(r.Context(), req.Email, req.Code), http.StatusOK)
}

// ResendVerification handles POST /api/v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.manager.ResendVerification(r.Context(), req.Email), http.StatusOK)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.manager.Logout(r.Context()), http.StatusOK)
}

// ProcessPayment handles POST /api/v1/auth/payment
func (h *AuthHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.manager.ProcessPayment(r.Context(), authapi.PaymentInput{
		Plan:             req.Plan,
		Duration:         req.Duration,
		Amount:           req.Amount,
		Currency:         req.Currency,
		PaymentReference: req.PaymentReference,
	})
	writeResult(w, res, http.StatusOK)
}

// UpdateProfile handles PATCH /api/v1/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.manager.UpdateProfile(r.Context(), authapi.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Country:  req.Country,
	})
	writeResult(w, res, http.StatusOK)
}

// UpdatePassword handles PATCH /api/v1/auth/password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.manager.UpdatePassword(r.Context(), req.CurrentPassword, req.NewPassword), http.StatusOK)
}

// UpdateProfileImage handles PATCH /api/v1/auth/profile-image
func (h *AuthHandler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	var req UpdateImageRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.manager.UpdateProfileImage(r.Context(), req.ProfileImage), http.StatusOK)
}

// RequestPasswordReset handles POST /api/v1/auth/reset-password-request
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.manager.RequestPasswordReset(r.Context(), req.Email), http.StatusOK)
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.manager.ResetPassword(r.Context(), req.Token, req.NewPassword), http.StatusOK)
}

// DeleteAccount handles DELETE /api/v1/auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.manager.DeleteAccount(r.Context()), http.StatusOK)
}
