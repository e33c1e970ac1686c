package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/domain"
)

// minRefreshDelay keeps an already-due refresh from spinning the timer.
const minRefreshDelay = time.Second

// scheduleRefresh arms the proactive token refresh to fire RefreshLead
// before the current token expires.
func (m *Manager) scheduleRefresh() {
	m.mu.Lock()
	expiresAt := m.sess.TokenExpiresAt
	hasTokens := m.sess.HasTokens()
	epoch := m.epoch
	m.mu.Unlock()
	if !hasTokens {
		return
	}

	delay := expiresAt.Sub(m.clock.Now()) - m.cfg.RefreshLead
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	m.refreshTask.arm(delay, func() {
		if !m.sameEpoch(epoch) {
			return
		}
		ctx := context.Background()
		if m.refreshAccessToken(ctx) {
			// Entitlement may have moved while the old token aged out.
			m.CheckVipStatus(ctx)
		}
	})
}

// refreshAccessToken rotates the token pair. Failure is terminal for the
// session: there is no retry loop, the session is cleared and the caller
// learns it through the false return.
func (m *Manager) refreshAccessToken(ctx context.Context) bool {
	m.mu.Lock()
	refreshToken := m.sess.RefreshToken
	m.mu.Unlock()
	if refreshToken == "" {
		return false
	}

	resp, err := m.api.RefreshToken(ctx, refreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed, clearing session", slog.String("error", err.Error()))
		m.clearSession()
		return false
	}

	m.commit(func(s *domain.Session) {
		s.AccessToken = resp.AccessToken
		if resp.RefreshToken != "" {
			s.RefreshToken = resp.RefreshToken
		}
		s.TokenExpiresAt = m.tokenExpiry(resp.AccessToken)
		if resp.User != nil {
			applyUser(s, resp.User)
		}
	})

	m.scheduleRefresh()
	m.logger.Debug("access token refreshed")
	return true
}
