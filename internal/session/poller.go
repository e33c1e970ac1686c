package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/authapi"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/domain"
	apperrors "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/errors"
)

// startVipStatusPolling arms the recurring entitlement poll. The first
// check fires one interval from now; a failed check does not break the
// cadence.
func (m *Manager) startVipStatusPolling() {
	m.armVipPoll(m.currentEpoch())
}

func (m *Manager) armVipPoll(epoch uint64) {
	m.vipPollTask.arm(m.cfg.VipPollInterval, func() {
		if !m.sameEpoch(epoch) {
			return
		}
		m.CheckVipStatus(context.Background())
		if m.sameEpoch(epoch) {
			m.armVipPoll(epoch)
		}
	})
}

// startUserStatusPolling arms the recurring account status poll.
func (m *Manager) startUserStatusPolling() {
	m.armUserPoll(m.currentEpoch())
}

func (m *Manager) armUserPoll(epoch uint64) {
	m.userPollTask.arm(m.cfg.UserPollInterval, func() {
		if !m.sameEpoch(epoch) {
			return
		}
		m.CheckUserStatus(context.Background())
		if m.sameEpoch(epoch) {
			m.armUserPoll(epoch)
		}
	})
}

// CheckVipStatus reconciles the local entitlement with the server. The
// server answer always wins; a 401 gets a single refresh attempt and the
// check itself is retried on the next tick.
func (m *Manager) CheckVipStatus(ctx context.Context) {
	token, ok := m.bearerToken()
	if !ok {
		return
	}
	pollRunsTotal.WithLabelValues("vip").Inc()
	status, err := m.api.VipStatus(ctx, token)
	if err != nil {
		pollFailuresTotal.WithLabelValues("vip").Inc()
		m.logger.Warn("vip status check failed", slog.String("error", err.Error()))
		if apperrors.IsUnauthorized(err) {
			m.refreshAccessToken(ctx)
		}
		return
	}
	m.applyVipStatus(status)
}

// applyVipStatus overwrites the local entitlement fields with the server
// snapshot and restarts the expiration monitor when the expiry moved.
// A snapshot whose expiry already passed is stored as-is but never
// watched: the evaluator already reports it inactive, and re-arming the
// monitor here would re-enter the expired path inline and loop for as
// long as the server keeps reporting the stale snapshot.
func (m *Manager) applyVipStatus(status *authapi.VipStatus) {
	expiryMoved := false
	m.commit(func(s *domain.Session) {
		expiryMoved = !sameExpiry(s.ExpiresAt, status.ExpiryDate) || s.IsVip != status.IsVip
		s.IsVip = status.IsVip
		s.VipPlan = parsePlan(status.VipPlan)
		s.VipPlanDisplayName = status.VipPlanDisplayName
		s.VipDurationDays = status.Duration
		s.ActivationDate = status.ActivationDate
		s.ExpiresAt = status.ExpiryDate
	})
	if expiryMoved && m.expiryWatchable(status.ExpiryDate) {
		m.StartVipExpirationMonitor()
	}
}

// CheckUserStatus reconciles the broader account flags and broadcasts the
// field-level diff when anything changed.
func (m *Manager) CheckUserStatus(ctx context.Context) {
	token, ok := m.bearerToken()
	if !ok {
		return
	}
	pollRunsTotal.WithLabelValues("user").Inc()
	status, err := m.api.UserStatus(ctx, token)
	if err != nil {
		pollFailuresTotal.WithLabelValues("user").Inc()
		m.logger.Warn("user status check failed", slog.String("error", err.Error()))
		if apperrors.IsUnauthorized(err) {
			m.refreshAccessToken(ctx)
		}
		return
	}

	changes := map[string]any{}
	expiryMoved := false
	m.commit(func(s *domain.Session) {
		if s.IsVip != status.IsVip {
			changes["isVip"] = status.IsVip
		}
		if s.IsAdmin != status.IsAdmin {
			changes["isAdmin"] = status.IsAdmin
		}
		if s.IsAuthorized != status.IsAuthorized {
			changes["isAuthorized"] = status.IsAuthorized
		}
		if s.EmailVerified != status.EmailVerified {
			changes["emailVerified"] = status.EmailVerified
		}
		if string(s.VipPlan) != status.VipPlan {
			changes["vipPlan"] = status.VipPlan
		}
		expiryMoved = !sameExpiry(s.ExpiresAt, status.ExpiryDate) || s.IsVip != status.IsVip

		s.IsVip = status.IsVip
		s.IsAdmin = status.IsAdmin
		s.IsAuthorized = status.IsAuthorized
		s.EmailVerified = status.EmailVerified
		s.VipPlan = parsePlan(status.VipPlan)
		s.VipPlanDisplayName = status.VipPlanDisplayName
		s.VipDurationDays = status.Duration
		s.ActivationDate = status.ActivationDate
		s.ExpiresAt = status.ExpiryDate
	})
	if expiryMoved && m.expiryWatchable(status.ExpiryDate) {
		m.StartVipExpirationMonitor()
	}
	if len(changes) > 0 {
		m.persistWG.Add(1)
		go func() {
			defer m.persistWG.Done()
			m.broadcast.StatusUpdate(context.Background(), changes)
		}()
	}
}

// expiryWatchable reports whether a server-provided expiry is worth
// arming the monitor for. A nil expiry stops the watcher, a future one
// re-arms it, a past one leaves it alone.
func (m *Manager) expiryWatchable(expiry *time.Time) bool {
	return expiry == nil || expiry.After(m.clock.Now())
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
