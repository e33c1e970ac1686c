package domain

import (
	"encoding/json"
	"time"
)

// PersistedSession is the allow-listed subset of Session that survives a
// restart. Timer state and listener registrations are never part of it.
type PersistedSession struct {
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

// ToPersisted extracts the durable subset of s.
func ToPersisted(s Session) PersistedSession {
	return PersistedSession{
		IsAuthenticated:    s.IsAuthenticated,
		UserID:             s.UserID,
		Username:           s.Username,
		Email:              s.Email,
		Country:            s.Country,
		ProfileImage:       s.ProfileImage,
		IsVip:              s.IsVip,
		IsAdmin:            s.IsAdmin,
		IsAuthorized:       s.IsAuthorized,
		EmailVerified:      s.EmailVerified,
		VipPlan:            s.VipPlan,
		VipPlanDisplayName: s.VipPlanDisplayName,
		VipDurationDays:    s.VipDurationDays,
		ActivationDate:     s.ActivationDate,
		ExpiresAt:          s.ExpiresAt,
		AccessToken:        s.AccessToken,
		RefreshToken:       s.RefreshToken,
		TokenExpiresAt:     s.TokenExpiresAt,
		LastLoginAt:        s.LastLoginAt,
	}
}

// FromPersisted rebuilds a Session from a stored subset. Callers must treat
// the result as unvalidated until the remote API has confirmed the tokens.
func FromPersisted(p PersistedSession) Session {
	return Session{
		IsAuthenticated:    p.IsAuthenticated,
		UserID:             p.UserID,
		Username:           p.Username,
		Email:              p.Email,
		Country:            p.Country,
		ProfileImage:       p.ProfileImage,
		IsVip:              p.IsVip,
		IsAdmin:            p.IsAdmin,
		IsAuthorized:       p.IsAuthorized,
		EmailVerified:      p.EmailVerified,
		VipPlan:            p.VipPlan,
		VipPlanDisplayName: p.VipPlanDisplayName,
		VipDurationDays:    p.VipDurationDays,
		ActivationDate:     p.ActivationDate,
		ExpiresAt:          p.ExpiresAt,
		AccessToken:        p.AccessToken,
		RefreshToken:       p.RefreshToken,
		TokenExpiresAt:     p.TokenExpiresAt,
		LastLoginAt:        p.LastLoginAt,
	}
}

// DecodePersisted parses a stored blob. A corrupt or empty blob yields an
// anonymous session rather than an error so startup never blocks on bad
// local state.
func DecodePersisted(data []byte) Session {
	if len(data) == 0 {
		return Anonymous()
	}
	var p PersistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return Anonymous()
	}
	return FromPersisted(p)
}

// EncodePersisted serializes the durable subset of s.
func EncodePersisted(s Session) ([]byte, error) {
	return json.Marshal(ToPersisted(s))
}
