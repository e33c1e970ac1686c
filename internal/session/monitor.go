package session

import (
	"context"
	"log/slog"
)

// StartVipExpirationMonitor (re)starts the countdown watcher for a timed
// subscription. It checks on a coarse tick until the final window, then
// tightens the cadence so the flip lands close to the actual expiry.
// Permanent entitlements and sessions without an expiry are not watched.
func (m *Manager) StartVipExpirationMonitor() {
	m.expiryTask.stop()

	m.mu.Lock()
	watch := m.sess.IsVip && m.sess.ExpiresAt != nil
	epoch := m.epoch
	m.mu.Unlock()
	if !watch {
		return
	}
	m.armExpiryCheck(epoch)
}

func (m *Manager) armExpiryCheck(epoch uint64) {
	m.mu.Lock()
	isVip := m.sess.IsVip
	expiresAt := m.sess.ExpiresAt
	m.mu.Unlock()
	if !isVip || expiresAt == nil {
		return
	}

	remaining := expiresAt.Sub(m.clock.Now())
	if remaining <= 0 {
		m.handleVipExpired()
		return
	}

	tick := m.cfg.ExpiryCoarseTick
	if remaining <= m.cfg.ExpiryFineWindow {
		tick = m.cfg.ExpiryFineTick
	}
	if tick > remaining {
		tick = remaining
	}
	m.expiryTask.arm(tick, func() {
		if !m.sameEpoch(epoch) {
			return
		}
		m.armExpiryCheck(epoch)
	})
}

// handleVipExpired flips the local entitlement off exactly once and then
// asks the server for the authoritative picture, which may renew it.
func (m *Manager) handleVipExpired() {
	m.mu.Lock()
	wasVip := m.sess.IsVip
	if wasVip {
		m.sess.IsVip = false
	}
	newActive, old, changed := m.announceLocked()
	snap := m.sess
	m.mu.Unlock()
	if !wasVip {
		return
	}

	m.logger.Info("vip subscription expired", slog.String("user_id", snap.UserID))
	m.persist(snap)
	if changed {
		m.fanout(newActive, old)
	}

	ctx := context.Background()
	m.CheckVipStatus(ctx)
	m.CheckUserStatus(ctx)
}
