package authapi

import (
	"encoding/json"
	"time"
)

// envelope is the standard response wrapper returned by the remote API.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// User is the account snapshot returned inside auth and status responses.
type User struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	Country            string     `json:"country"`
	ProfileImage       string     `json:"profileImage"`
	IsVip              bool       `json:"isVip"`
	IsAdmin            bool       `json:"isAdmin"`
	IsAuthorized       bool       `json:"isAuthorized"`
	EmailVerified      bool       `json:"emailVerified"`
	VipPlan            string     `json:"vipPlan"`
	VipPlanDisplayName string     `json:"vipPlanDisplayName"`
	Duration           int        `json:"duration"`
	ActivationDate     *time.Time `json:"activationDate,omitempty"`
	ExpiryDate         *time.Time `json:"expiryDate,omitempty"`
	LastLoginAt        *time.Time `json:"lastLogin,omitempty"`
}

// Tokens is the credential pair issued by the remote API.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthData is the payload of register and login responses.
type AuthData struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

// RefreshData is the payload of a refresh-token response. User is only
// present when the server chose to piggyback an updated snapshot.
type RefreshData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
}

// VipStatus is the entitlement payload polled from /auth/vip-status.
type VipStatus struct {
	IsVip              bool       `json:"isVip"`
	VipPlan            string     `json:"vipPlan"`
	VipPlanDisplayName string     `json:"vipPlanDisplayName"`
	Duration           int        `json:"duration"`
	ActivationDate     *time.Time `json:"activationDate,omitempty"`
	ExpiryDate         *time.Time `json:"expiryDate,omitempty"`
}

// UserStatus is the broader account payload polled from /auth/user-status.
type UserStatus struct {
	IsVip              bool       `json:"isVip"`
	IsAdmin            bool       `json:"isAdmin"`
	IsAuthorized       bool       `json:"isAuthorized"`
	EmailVerified      bool       `json:"emailVerified"`
	VipPlan            string     `json:"vipPlan"`
	VipPlanDisplayName string     `json:"vipPlanDisplayName"`
	Duration           int        `json:"duration"`
	ActivationDate     *time.Time `json:"activationDate,omitempty"`
	ExpiryDate         *time.Time `json:"expiryDate,omitempty"`
}

// RegisterInput is the request body for account registration.
type RegisterInput struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Country    string `json:"country"`
	ReferredBy string `json:"referredBy,omitempty"`
}

// PaymentInput is the request body for VIP subscription checkout.
type PaymentInput struct {
	Plan             string    `json:"plan"`
	Duration         int       `json:"duration"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	ActivationDate   time.Time `json:"activationDate"`
	PaymentReference string    `json:"paymentReference,omitempty"`
}

// ProfileUpdate carries optional profile fields for PATCH /auth/update-profile.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Country  *string `json:"country,omitempty"`
}
