package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/authapi"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/domain"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/session/store"
	apperrors "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/errors"
)

// API is the surface of the remote auth API the manager depends on.
// *authapi.Client satisfies it.
type API interface {
	Register(ctx context.Context, input authapi.RegisterInput) (*authapi.AuthData, error)
	Login(ctx context.Context, email, password string) (*authapi.AuthData, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	RefreshToken(ctx context.Context, refreshToken string) (*authapi.RefreshData, error)
	Validate(ctx context.Context, accessToken string) (*authapi.User, error)
	VipStatus(ctx context.Context, accessToken string) (*authapi.VipStatus, error)
	UserStatus(ctx context.Context, accessToken string) (*authapi.UserStatus, error)
	ProcessPayment(ctx context.Context, accessToken string, input authapi.PaymentInput) (*authapi.VipStatus, error)
	UpdateProfile(ctx context.Context, accessToken string, update authapi.ProfileUpdate) (*authapi.User, error)
	UpdatePassword(ctx context.Context, accessToken, current, next string) error
	UpdateProfileImage(ctx context.Context, accessToken, imageURL string) (*authapi.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	DeleteAccount(ctx context.Context, accessToken string) error
	Logout(ctx context.Context, accessToken string) error
}

// Broadcaster pushes entitlement events to consumers outside the process.
type Broadcaster interface {
	VipTransition(ctx context.Context, newActive, oldActive bool, at time.Time)
	StatusUpdate(ctx context.Context, changes map[string]any)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

func (NopBroadcaster) VipTransition(context.Context, bool, bool, time.Time) {}
func (NopBroadcaster) StatusUpdate(context.Context, map[string]any)         {}

// Config holds the manager's scheduling parameters.
type Config struct {
	// RefreshLead is how long before token expiry the refresh fires.
	RefreshLead time.Duration
	// AccessTokenTTL is the assumed access token lifetime when the token
	// carries no usable exp claim.
	AccessTokenTTL time.Duration
	// VipPollInterval is the cadence of the VIP entitlement poll.
	VipPollInterval time.Duration
	// UserPollInterval is the cadence of the broader account status poll.
	UserPollInterval time.Duration
	// ExpiryCoarseTick and ExpiryFineTick are the expiration monitor
	// cadences outside and inside ExpiryFineWindow.
	ExpiryCoarseTick time.Duration
	ExpiryFineTick   time.Duration
	ExpiryFineWindow time.Duration
}

// DefaultConfig returns the production scheduling parameters.
func DefaultConfig() Config {
	return Config{
		RefreshLead:      60 * time.Second,
		AccessTokenTTL:   50 * time.Minute,
		VipPollInterval:  15 * time.Second,
		UserPollInterval: 30 * time.Second,
		ExpiryCoarseTick: 15 * time.Second,
		ExpiryFineTick:   5 * time.Second,
		ExpiryFineWindow: 60 * time.Second,
	}
}

// Result is the uniform outcome shape returned by every auth operation.
// Operations never propagate transport or parse errors to callers.
type Result struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requires_verification,omitempty"`
}

// Manager owns the single session instance and all of its timers. It is
// the only writer of session state; external code reads through VipActive
// and Snapshot or calls the exported operations.
type Manager struct {
	cfg       Config
	api       API
	store     store.Store
	broadcast Broadcaster
	clock     Clock
	logger    *slog.Logger
	notifier  *notifier

	mu          sync.Mutex
	sess        domain.Session
	initialized bool
	// lastActive is the entitlement state listeners were last told about.
	// Every announcement path diffs against it, so one real transition is
	// never reported twice even when the monitor and a poll both see it.
	lastActive bool
	// epoch increments every time the session is replaced or cleared.
	// Timer callbacks capture the epoch they were armed under and no-op
	// when it has moved on, so a stale timer can never touch a fresh
	// session.
	epoch uint64

	refreshTask  *task
	vipPollTask  *task
	userPollTask *task
	expiryTask   *task

	persistWG sync.WaitGroup
	// storeMu serializes the actual store calls and storeSeq orders them:
	// each write checks under storeMu that no later write or delete was
	// issued after it, so a save enqueued just before logout can never
	// land after logout's delete and resurrect the discarded session.
	storeMu  sync.Mutex
	storeSeq atomic.Uint64
}

// NewManager creates a session manager. A nil clock uses real time and a
// nil broadcaster discards events.
func NewManager(api API, st store.Store, broadcast Broadcaster, clock Clock, cfg Config, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = NewClock()
	}
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	return &Manager{
		cfg:          cfg,
		api:          api,
		store:        st,
		broadcast:    broadcast,
		clock:        clock,
		logger:       logger,
		notifier:     newNotifier(),
		refreshTask:  newTask(clock),
		vipPollTask:  newTask(clock),
		userPollTask: newTask(clock),
		expiryTask:   newTask(clock),
	}
}

// VipActive reports whether the subscription is currently active. It is a
// pure read: expired-but-flagged sessions are corrected by the expiration
// monitor and the pollers, never from here.
func (m *Manager) VipActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vipActiveLocked()
}

func (m *Manager) vipActiveLocked() bool {
	if !m.sess.IsVip {
		return false
	}
	if m.sess.ExpiresAt == nil {
		return true
	}
	return m.sess.ExpiresAt.After(m.clock.Now())
}

// Snapshot returns the current read-only session view.
func (m *Manager) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Snapshot(m.vipActiveLocked())
}

// AccessToken returns the current bearer token, or "" when signed out.
// It exists for in-process callers proxying authenticated fetches; the
// token never appears in snapshots.
func (m *Manager) AccessToken() string {
	token, _ := m.bearerToken()
	return token
}

// AddVipStatusListener registers fn for entitlement transitions and
// returns its unsubscribe function.
func (m *Manager) AddVipStatusListener(fn Listener) func() {
	return m.notifier.add(fn)
}

// Initialize rehydrates the session from the persistence adapter and, if
// a usable session was stored, validates or refreshes the tokens and
// starts the timers. It runs at most once.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.mu.Unlock()

	blob, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("session store load failed, starting anonymous", slog.String("error", err.Error()))
		blob = nil
	}
	sess := domain.DecodePersisted(blob)
	if !sess.IsAuthenticated || !sess.HasTokens() {
		return
	}

	m.mu.Lock()
	m.sess = sess
	newActive, old, changed := m.announceLocked()
	m.mu.Unlock()
	if changed {
		m.fanout(newActive, old)
	}

	if !sess.TokenExpiresAt.After(m.clock.Now().Add(m.cfg.RefreshLead)) {
		// Token already expired or about to: the refresh decides whether
		// the restored session survives.
		if !m.refreshAccessToken(ctx) {
			return
		}
	} else if user, err := m.api.Validate(ctx, sess.AccessToken); err != nil {
		if apperrors.IsUnauthorized(err) {
			if !m.refreshAccessToken(ctx) {
				return
			}
		} else {
			// Network trouble is not a reason to drop a locally valid
			// session; the pollers reconcile once the API is back.
			m.logger.Warn("session validate failed", slog.String("error", err.Error()))
		}
	} else {
		m.commit(func(s *domain.Session) {
			applyUser(s, user)
		})
	}

	m.scheduleRefresh()
	m.startVipStatusPolling()
	m.startUserStatusPolling()
	m.StartVipExpirationMonitor()
	m.logger.Info("session restored", slog.String("user_id", sess.UserID))
}

// Close cancels all timers and waits for pending persistence writes.
func (m *Manager) Close() {
	m.stopTimers()
	m.persistWG.Wait()
}

// --- auth operations ---

// Register creates an account. The server issues tokens immediately, so a
// session is established even while the email is still unverified.
func (m *Manager) Register(ctx context.Context, input authapi.RegisterInput) Result {
	resp, err := m.api.Register(ctx, input)
	if err != nil {
		return m.failed("register", err)
	}
	if resp.Tokens.AccessToken != "" {
		m.establishSession(resp.User, resp.Tokens)
	}
	return Result{Success: true, Message: "account created, verification code sent", RequiresVerification: !resp.User.EmailVerified}
}

// Login authenticates against the remote API. An unverified email leaves
// the session anonymous and signals the caller to run verification.
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return m.failed("login", err)
	}
	if !resp.User.EmailVerified {
		return Result{Success: false, Message: "email not verified", RequiresVerification: true}
	}
	m.establishSession(resp.User, resp.Tokens)
	m.logger.Info("user logged in", slog.String("user_id", resp.User.ID))
	return Result{Success: true, Message: "login successful"}
}

// VerifyEmail confirms the emailed verification code and marks the local
// session verified on success.
func (m *Manager) VerifyEmail(ctx context.Context, email, code string) Result {
	if err := m.api.VerifyEmail(ctx, email, code); err != nil {
		return m.failed("verify email", err)
	}
	m.commit(func(s *domain.Session) {
		if s.IsAuthenticated && s.Email == email {
			s.EmailVerified = true
		}
	})
	return Result{Success: true, Message: "email verified"}
}

// ResendVerification requests a fresh verification code.
func (m *Manager) ResendVerification(ctx context.Context, email string) Result {
	if err := m.api.ResendVerification(ctx, email); err != nil {
		return m.failed("resend verification", err)
	}
	return Result{Success: true, Message: "verification code sent"}
}

// Logout clears the local session and timers first, then notifies the
// server best-effort. A failed server call never blocks the local logout.
func (m *Manager) Logout(ctx context.Context) Result {
	m.mu.Lock()
	token := m.sess.AccessToken
	m.mu.Unlock()

	m.clearSession()

	if token != "" {
		m.persistWG.Add(1)
		go func() {
			defer m.persistWG.Done()
			notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := m.api.Logout(notifyCtx, token); err != nil {
				m.logger.Warn("server logout failed", slog.String("error", err.Error()))
			}
		}()
	}
	return Result{Success: true, Message: "logged out"}
}

// ProcessPayment records a subscription purchase, applies the returned
// entitlement, and forces a reconciliation pass so the UI reflects server
// truth.
func (m *Manager) ProcessPayment(ctx context.Context, input authapi.PaymentInput) Result {
	if input.ActivationDate.IsZero() {
		input.ActivationDate = m.clock.Now()
	}
	var status *authapi.VipStatus
	err := m.withAuthRetry(ctx, func(token string) error {
		var callErr error
		status, callErr = m.api.ProcessPayment(ctx, token, input)
		return callErr
	})
	if err != nil {
		return m.failed("process payment", err)
	}

	m.applyVipStatus(status)
	m.StartVipExpirationMonitor()
	m.CheckVipStatus(ctx)
	m.CheckUserStatus(ctx)
	m.logger.Info("payment processed",
		slog.String("plan", status.VipPlan),
		slog.Int("duration_days", status.Duration),
	)
	return Result{Success: true, Message: "subscription activated"}
}

// UpdateProfile patches profile fields and reconciles the local snapshot.
func (m *Manager) UpdateProfile(ctx context.Context, update authapi.ProfileUpdate) Result {
	var user *authapi.User
	err := m.withAuthRetry(ctx, func(token string) error {
		var callErr error
		user, callErr = m.api.UpdateProfile(ctx, token, update)
		return callErr
	})
	if err != nil {
		return m.failed("update profile", err)
	}
	m.commit(func(s *domain.Session) {
		applyUser(s, user)
	})
	return Result{Success: true, Message: "profile updated"}
}

// UpdatePassword changes the account password.
func (m *Manager) UpdatePassword(ctx context.Context, current, next string) Result {
	err := m.withAuthRetry(ctx, func(token string) error {
		return m.api.UpdatePassword(ctx, token, current, next)
	})
	if err != nil {
		return m.failed("update password", err)
	}
	return Result{Success: true, Message: "password updated"}
}

// UpdateProfileImage replaces the profile image URL.
func (m *Manager) UpdateProfileImage(ctx context.Context, imageURL string) Result {
	var user *authapi.User
	err := m.withAuthRetry(ctx, func(token string) error {
		var callErr error
		user, callErr = m.api.UpdateProfileImage(ctx, token, imageURL)
		return callErr
	})
	if err != nil {
		return m.failed("update profile image", err)
	}
	m.commit(func(s *domain.Session) {
		applyUser(s, user)
	})
	return Result{Success: true, Message: "profile image updated"}
}

// RequestPasswordReset starts the reset flow for the address.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) Result {
	if err := m.api.RequestPasswordReset(ctx, email); err != nil {
		return m.failed("request password reset", err)
	}
	return Result{Success: true, Message: "reset instructions sent"}
}

// ResetPassword completes the reset flow with the emailed token.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) Result {
	if err := m.api.ResetPassword(ctx, token, newPassword); err != nil {
		return m.failed("reset password", err)
	}
	return Result{Success: true, Message: "password reset"}
}

// DeleteAccount removes the account remotely and clears the session.
func (m *Manager) DeleteAccount(ctx context.Context) Result {
	err := m.withAuthRetry(ctx, func(token string) error {
		return m.api.DeleteAccount(ctx, token)
	})
	if err != nil {
		return m.failed("delete account", err)
	}
	m.clearSession()
	return Result{Success: true, Message: "account deleted"}
}

// --- session state transitions ---

// establishSession replaces the session after a successful login or
// registration. All existing timers are cancelled before the swap.
func (m *Manager) establishSession(u authapi.User, tk authapi.Tokens) {
	m.stopTimers()

	m.mu.Lock()
	m.epoch++
	m.sess = domain.Session{IsAuthenticated: true}
	applyUser(&m.sess, &u)
	m.sess.AccessToken = tk.AccessToken
	m.sess.RefreshToken = tk.RefreshToken
	m.sess.TokenExpiresAt = m.tokenExpiry(tk.AccessToken)
	now := m.clock.Now()
	m.sess.LastLoginAt = &now
	newActive, old, changed := m.announceLocked()
	snap := m.sess
	m.mu.Unlock()

	m.persist(snap)
	if changed {
		m.fanout(newActive, old)
	}

	m.scheduleRefresh()
	m.startVipStatusPolling()
	m.startUserStatusPolling()
	m.StartVipExpirationMonitor()
}

// clearSession drops to anonymous: timers cancelled first, then the state
// swap, then persistence and notification.
func (m *Manager) clearSession() {
	m.stopTimers()

	m.mu.Lock()
	m.epoch++
	m.sess.Clear()
	newActive, old, changed := m.announceLocked()
	m.mu.Unlock()

	m.persistDelete()
	if changed {
		m.fanout(newActive, old)
	}
}

func (m *Manager) stopTimers() {
	m.refreshTask.stop()
	m.vipPollTask.stop()
	m.userPollTask.stop()
	m.expiryTask.stop()
}

// commit applies a mutation under the lock and, once the new state is
// fully committed, persists it and announces any entitlement transition.
func (m *Manager) commit(mutate func(*domain.Session)) {
	m.mu.Lock()
	mutate(&m.sess)
	newActive, old, changed := m.announceLocked()
	snap := m.sess
	m.mu.Unlock()

	m.persist(snap)
	if changed {
		m.fanout(newActive, old)
	}
}

// announceLocked diffs the evaluator against the last announced state and
// advances it. Callers fan out only when changed is true.
func (m *Manager) announceLocked() (newActive, old bool, changed bool) {
	newActive = m.vipActiveLocked()
	old = m.lastActive
	changed = newActive != old
	if changed {
		m.lastActive = newActive
	}
	return newActive, old, changed
}

// fanout delivers a committed transition to direct listeners and the
// process-external broadcaster.
func (m *Manager) fanout(newActive, oldActive bool) {
	vipTransitionsTotal.Inc()
	m.notifier.notify(newActive, oldActive)
	at := m.clock.Now()
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.broadcast.VipTransition(ctx, newActive, oldActive, at)
	}()
}

// persist writes the durable subset in the background; it never blocks a
// timer callback.
func (m *Manager) persist(snap domain.Session) {
	blob, err := domain.EncodePersisted(snap)
	if err != nil {
		m.logger.Error("encode session", slog.String("error", err.Error()))
		return
	}
	seq := m.storeSeq.Add(1)
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()
		m.storeMu.Lock()
		defer m.storeMu.Unlock()
		if seq != m.storeSeq.Load() {
			// Superseded by a later save or delete; dropping it keeps the
			// store converging on the newest state.
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.store.Save(ctx, blob); err != nil {
			m.logger.Warn("session persist failed", slog.String("error", err.Error()))
		}
	}()
}

func (m *Manager) persistDelete() {
	seq := m.storeSeq.Add(1)
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()
		m.storeMu.Lock()
		defer m.storeMu.Unlock()
		if seq != m.storeSeq.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.store.Delete(ctx); err != nil {
			m.logger.Warn("session delete failed", slog.String("error", err.Error()))
		}
	}()
}

// --- helpers ---

// withAuthRetry runs fn with the current access token. A 401 gets exactly
// one refresh attempt before the call is retried; a failed refresh has
// already cleared the session by the time the original error is returned.
func (m *Manager) withAuthRetry(ctx context.Context, fn func(token string) error) error {
	token, ok := m.bearerToken()
	if !ok {
		return apperrors.Unauthorized("not signed in")
	}
	err := fn(token)
	if err == nil || !apperrors.IsUnauthorized(err) {
		return err
	}
	if !m.refreshAccessToken(ctx) {
		return err
	}
	token, ok = m.bearerToken()
	if !ok {
		return err
	}
	return fn(token)
}

// bearerToken returns the access token when calls against protected
// endpoints are currently possible.
func (m *Manager) bearerToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sess.IsAuthenticated || m.sess.AccessToken == "" {
		return "", false
	}
	return m.sess.AccessToken, true
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) sameEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

// failed converts an operation error to the uniform result shape.
func (m *Manager) failed(op string, err error) Result {
	m.logger.Warn(op+" failed", slog.String("error", err.Error()))
	res := Result{Success: false, Message: err.Error()}
	if errors.Is(err, apperrors.ErrUnverifiedEmail) {
		res.RequiresVerification = true
		res.Message = "email not verified"
	}
	return res
}

// tokenExpiry derives the local expiry estimate for an access token: the
// JWT exp claim when present, otherwise now plus the configured TTL.
func (m *Manager) tokenExpiry(accessToken string) time.Time {
	now := m.clock.Now()
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.After(now) {
			return exp.Time
		}
	}
	return now.Add(m.cfg.AccessTokenTTL)
}

// applyUser overwrites the session's identity and entitlement fields with
// a server snapshot. Tokens are left untouched.
func applyUser(s *domain.Session, u *authapi.User) {
	s.UserID = u.ID
	s.Username = u.Username
	s.Email = u.Email
	s.Country = u.Country
	s.ProfileImage = u.ProfileImage
	s.IsVip = u.IsVip
	s.IsAdmin = u.IsAdmin
	s.IsAuthorized = u.IsAuthorized
	s.EmailVerified = u.EmailVerified
	s.VipPlan = parsePlan(u.VipPlan)
	s.VipPlanDisplayName = u.VipPlanDisplayName
	s.VipDurationDays = u.Duration
	s.ActivationDate = u.ActivationDate
	s.ExpiresAt = u.ExpiryDate
	if u.LastLoginAt != nil {
		s.LastLoginAt = u.LastLoginAt
	}
}

func parsePlan(raw string) domain.VipPlan {
	p := domain.VipPlan(raw)
	if !p.Valid() {
		return domain.PlanCustom
	}
	return p
}
