package domain

import (
	"time"
)

// VipPlan identifies the subscription plan attached to a VIP session.
type VipPlan string

const (
	PlanNone    VipPlan = ""
	PlanWeekly  VipPlan = "weekly"
	PlanMonthly VipPlan = "monthly"
	PlanYearly  VipPlan = "yearly"
	PlanCustom  VipPlan = "custom"
)

// Valid reports whether p is one of the known plan kinds.
func (p VipPlan) Valid() bool {
	switch p {
	case PlanNone, PlanWeekly, PlanMonthly, PlanYearly, PlanCustom:
		return true
	}
	return false
}

// Session is the single mutable session state owned by the session manager.
// It holds identity, tokens, and VIP entitlement for the signed-in user.
// An ExpiresAt of nil while IsVip and IsAdmin are both true means the
// subscription is permanent and never expires.
type Session struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Country         string `json:"country"`
	ProfileImage    string `json:"profile_image"`

	IsVip         bool `json:"is_vip"`
	IsAdmin       bool `json:"is_admin"`
	IsAuthorized  bool `json:"is_authorized"`
	EmailVerified bool `json:"email_verified"`

	VipPlan            VipPlan    `json:"vip_plan"`
	VipPlanDisplayName string     `json:"vip_plan_display_name"`
	VipDurationDays    int        `json:"vip_duration_days"`
	ActivationDate     *time.Time `json:"activation_date,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`

	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Anonymous returns an empty, signed-out session.
func Anonymous() Session {
	return Session{}
}

// Clear resets s to the anonymous state in place.
func (s *Session) Clear() {
	*s = Session{}
}

// HasTokens reports whether both credential strings are present.
func (s *Session) HasTokens() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Permanent reports whether this is a never-expiring VIP session.
// Only admin sessions may legitimately carry a VIP flag without an expiry.
func (s *Session) Permanent() bool {
	return s.IsVip && s.IsAdmin && s.ExpiresAt == nil
}

// Snapshot is the read-only view of the session exposed to the UI surface.
// Tokens are deliberately omitted.
type Snapshot struct {
	IsAuthenticated    bool       `json:"is_authenticated"`
	UserID             string     `json:"user_id,omitempty"`
	Username           string     `json:"username,omitempty"`
	Email              string     `json:"email,omitempty"`
	Country            string     `json:"country,omitempty"`
	ProfileImage       string     `json:"profile_image,omitempty"`
	IsVip              bool       `json:"is_vip"`
	VipActive          bool       `json:"vip_active"`
	IsAdmin            bool       `json:"is_admin"`
	IsAuthorized       bool       `json:"is_authorized"`
	EmailVerified      bool       `json:"email_verified"`
	VipPlan            VipPlan    `json:"vip_plan,omitempty"`
	VipPlanDisplayName string     `json:"vip_plan_display_name,omitempty"`
	VipDurationDays    int        `json:"vip_duration_days,omitempty"`
	ActivationDate     *time.Time `json:"activation_date,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
}

// Snapshot builds the UI view of s. vipActive is supplied by the caller so
// the evaluation stays with the session manager.
func (s *Session) Snapshot(vipActive bool) Snapshot {
	return Snapshot{
		IsAuthenticated:    s.IsAuthenticated,
		UserID:             s.UserID,
		Username:           s.Username,
		Email:              s.Email,
		Country:            s.Country,
		ProfileImage:       s.ProfileImage,
		IsVip:              s.IsVip,
		VipActive:          vipActive,
		IsAdmin:            s.IsAdmin,
		IsAuthorized:       s.IsAuthorized,
		EmailVerified:      s.EmailVerified,
		VipPlan:            s.VipPlan,
		VipPlanDisplayName: s.VipPlanDisplayName,
		VipDurationDays:    s.VipDurationDays,
		ActivationDate:     s.ActivationDate,
		ExpiresAt:          s.ExpiresAt,
		LastLoginAt:        s.LastLoginAt,
	}
}
