package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/authapi"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/domain"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/session/store"
	apperrors "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/errors"
)

// fakeAPI stubs the remote auth API with per-method functions. Unstubbed
// mutating calls fail, unstubbed status polls answer with zero values.
type fakeAPI struct {
	mu sync.Mutex

	loginFn          func(email, password string) (*authapi.AuthData, error)
	registerFn       func(input authapi.RegisterInput) (*authapi.AuthData, error)
	refreshFn        func(refreshToken string) (*authapi.RefreshData, error)
	validateFn       func(token string) (*authapi.User, error)
	vipStatusFn      func(token string) (*authapi.VipStatus, error)
	userStatusFn     func(token string) (*authapi.UserStatus, error)
	paymentFn        func(token string, in authapi.PaymentInput) (*authapi.VipStatus, error)
	updatePasswordFn func(token, current, next string) error
	logoutErr        error

	refreshCalls  int
	validateCalls int
	vipCalls      int
	userCalls     int
	passwordCalls int
	logoutCalls   int
	logoutTokens  []string
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*authapi.AuthData, error) {
	f.mu.Lock()
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("login not stubbed")
	}
	return fn(email, password)
}

func (f *fakeAPI) Register(_ context.Context, input authapi.RegisterInput) (*authapi.AuthData, error) {
	f.mu.Lock()
	fn := f.registerFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("register not stubbed")
	}
	return fn(input)
}

func (f *fakeAPI) RefreshToken(_ context.Context, refreshToken string) (*authapi.RefreshData, error) {
	f.mu.Lock()
	f.refreshCalls++
	fn := f.refreshFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("refresh not stubbed")
	}
	return fn(refreshToken)
}

func (f *fakeAPI) Validate(_ context.Context, token string) (*authapi.User, error) {
	f.mu.Lock()
	f.validateCalls++
	fn := f.validateFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("validate not stubbed")
	}
	return fn(token)
}

func (f *fakeAPI) VipStatus(_ context.Context, token string) (*authapi.VipStatus, error) {
	f.mu.Lock()
	f.vipCalls++
	fn := f.vipStatusFn
	f.mu.Unlock()
	if fn == nil {
		return &authapi.VipStatus{}, nil
	}
	return fn(token)
}

func (f *fakeAPI) UserStatus(_ context.Context, token string) (*authapi.UserStatus, error) {
	f.mu.Lock()
	f.userCalls++
	fn := f.userStatusFn
	f.mu.Unlock()
	if fn == nil {
		return &authapi.UserStatus{}, nil
	}
	return fn(token)
}

func (f *fakeAPI) ProcessPayment(_ context.Context, token string, in authapi.PaymentInput) (*authapi.VipStatus, error) {
	f.mu.Lock()
	fn := f.paymentFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("payment not stubbed")
	}
	return fn(token, in)
}

func (f *fakeAPI) UpdatePassword(_ context.Context, token, current, next string) error {
	f.mu.Lock()
	f.passwordCalls++
	fn := f.updatePasswordFn
	f.mu.Unlock()
	if fn == nil {
		return errors.New("update password not stubbed")
	}
	return fn(token, current, next)
}

func (f *fakeAPI) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.logoutTokens = append(f.logoutTokens, token)
	return f.logoutErr
}

func (f *fakeAPI) VerifyEmail(context.Context, string, string) error   { return nil }
func (f *fakeAPI) ResendVerification(context.Context, string) error    { return nil }
func (f *fakeAPI) RequestPasswordReset(context.Context, string) error  { return nil }
func (f *fakeAPI) ResetPassword(context.Context, string, string) error { return nil }
func (f *fakeAPI) DeleteAccount(context.Context, string) error         { return nil }

func (f *fakeAPI) UpdateProfile(context.Context, string, authapi.ProfileUpdate) (*authapi.User, error) {
	return nil, errors.New("update profile not stubbed")
}
func (f *fakeAPI) UpdateProfileImage(context.Context, string, string) (*authapi.User, error) {
	return nil, errors.New("update profile image not stubbed")
}

func (f *fakeAPI) counts() (refresh, validate, vip, user int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.validateCalls, f.vipCalls, f.userCalls
}

// fakeBroadcast records fanned-out events.
type fakeBroadcast struct {
	mu          sync.Mutex
	transitions [][2]bool
	updates     []map[string]any
}

func (b *fakeBroadcast) VipTransition(_ context.Context, newActive, oldActive bool, _ time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitions = append(b.transitions, [2]bool{newActive, oldActive})
}

func (b *fakeBroadcast) StatusUpdate(_ context.Context, changes map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, changes)
}

// slowStore delays writes so a save issued before a state change can
// still be in flight when the change lands.
type slowStore struct {
	*store.Memory
	saveDelay time.Duration
}

func (s *slowStore) Save(ctx context.Context, data []byte) error {
	time.Sleep(s.saveDelay)
	return s.Memory.Save(ctx, data)
}

// transitionRecorder is a listener that keeps the transitions it saw.
type transitionRecorder struct {
	mu     sync.Mutex
	events [][2]bool
}

func (r *transitionRecorder) listen(newActive, oldActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, [2]bool{newActive, oldActive})
}

func (r *transitionRecorder) list() [][2]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]bool(nil), r.events...)
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *fakeClock, *fakeAPI, *store.Memory, *fakeBroadcast) {
	t.Helper()
	clock := newFakeClock(testStart)
	api := &fakeAPI{}
	st := store.NewMemory()
	broadcast := &fakeBroadcast{}
	m := NewManager(api, st, broadcast, clock, DefaultConfig(), slog.New(slog.DiscardHandler))
	t.Cleanup(m.Close)
	return m, clock, api, st, broadcast
}

func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func verifiedUser() authapi.User {
	return authapi.User{
		ID:            "u1",
		Username:      "jane",
		Email:         "jane@example.com",
		Country:       "KE",
		EmailVerified: true,
	}
}

func vipUser(expiry *time.Time) authapi.User {
	u := verifiedUser()
	u.IsVip = true
	u.VipPlan = "monthly"
	u.VipPlanDisplayName = "Monthly VIP"
	u.Duration = 30
	u.ExpiryDate = expiry
	return u
}

// stubStatuses makes the polls echo u so background ticks do not disturb
// the state under test.
func stubStatuses(api *fakeAPI, u authapi.User) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.vipStatusFn = func(string) (*authapi.VipStatus, error) {
		return &authapi.VipStatus{
			IsVip:              u.IsVip,
			VipPlan:            u.VipPlan,
			VipPlanDisplayName: u.VipPlanDisplayName,
			Duration:           u.Duration,
			ActivationDate:     u.ActivationDate,
			ExpiryDate:         u.ExpiryDate,
		}, nil
	}
	api.userStatusFn = func(string) (*authapi.UserStatus, error) {
		return &authapi.UserStatus{
			IsVip:              u.IsVip,
			IsAdmin:            u.IsAdmin,
			IsAuthorized:       u.IsAuthorized,
			EmailVerified:      u.EmailVerified,
			VipPlan:            u.VipPlan,
			VipPlanDisplayName: u.VipPlanDisplayName,
			Duration:           u.Duration,
			ActivationDate:     u.ActivationDate,
			ExpiryDate:         u.ExpiryDate,
		}, nil
	}
}

func loginAs(t *testing.T, m *Manager, clock *fakeClock, api *fakeAPI, u authapi.User) {
	t.Helper()
	access := makeToken(t, clock.Now().Add(10*time.Minute))
	api.mu.Lock()
	api.loginFn = func(string, string) (*authapi.AuthData, error) {
		return &authapi.AuthData{
			User:   u,
			Tokens: authapi.Tokens{AccessToken: access, RefreshToken: "refresh-1"},
		}, nil
	}
	api.mu.Unlock()
	stubStatuses(api, u)

	res := m.Login(context.Background(), u.Email, "secret")
	require.True(t, res.Success, res.Message)
}

func (m *Manager) testSession() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

func TestLoginEstablishesSession(t *testing.T) {
	m, clock, api, st, _ := newTestManager(t)
	expiry := clock.Now().Add(30 * 24 * time.Hour)
	loginAs(t, m, clock, api, vipUser(&expiry))

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "jane", snap.Username)
	assert.True(t, snap.IsVip)
	assert.True(t, snap.VipActive)
	assert.Equal(t, domain.PlanMonthly, snap.VipPlan)
	assert.True(t, m.VipActive())

	assert.True(t, m.refreshTask.isRunning())
	assert.True(t, m.vipPollTask.isRunning())
	assert.True(t, m.userPollTask.isRunning())
	assert.True(t, m.expiryTask.isRunning())

	require.Eventually(t, func() bool {
		blob, err := st.Load(context.Background())
		if err != nil || blob == nil {
			return false
		}
		restored := domain.DecodePersisted(blob)
		return restored.IsAuthenticated && restored.HasTokens()
	}, time.Second, 5*time.Millisecond, "session should be persisted")
}

func TestLoginUnverifiedEmailStaysAnonymous(t *testing.T) {
	m, _, api, _, _ := newTestManager(t)
	u := verifiedUser()
	u.EmailVerified = false
	api.loginFn = func(string, string) (*authapi.AuthData, error) {
		return &authapi.AuthData{User: u, Tokens: authapi.Tokens{AccessToken: "a", RefreshToken: "r"}}, nil
	}

	res := m.Login(context.Background(), u.Email, "secret")
	assert.False(t, res.Success)
	assert.True(t, res.RequiresVerification)
	assert.False(t, m.Snapshot().IsAuthenticated)
	assert.False(t, m.refreshTask.isRunning())
}

func TestLoginFailureReturnsResult(t *testing.T) {
	m, _, api, _, _ := newTestManager(t)
	api.loginFn = func(string, string) (*authapi.AuthData, error) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	res := m.Login(context.Background(), "jane@example.com", "wrong")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "invalid credentials")
	assert.False(t, m.Snapshot().IsAuthenticated)
}

func TestRegisterEstablishesPendingSession(t *testing.T) {
	m, _, api, _, _ := newTestManager(t)
	u := verifiedUser()
	u.EmailVerified = false
	api.registerFn = func(authapi.RegisterInput) (*authapi.AuthData, error) {
		return &authapi.AuthData{User: u, Tokens: authapi.Tokens{AccessToken: "a", RefreshToken: "r"}}, nil
	}
	stubStatuses(api, u)

	res := m.Register(context.Background(), authapi.RegisterInput{Username: "jane", Email: u.Email, Password: "secret", Country: "KE"})
	require.True(t, res.Success)
	assert.True(t, res.RequiresVerification)

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.EmailVerified)

	res = m.VerifyEmail(context.Background(), u.Email, "123456")
	require.True(t, res.Success)
	assert.True(t, m.Snapshot().EmailVerified)
}

func TestVipActiveIsPureRead(t *testing.T) {
	m, clock, _, _, _ := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	past := clock.Now().Add(-time.Minute)
	m.mu.Lock()
	m.sess = domain.Session{IsAuthenticated: true, UserID: "u1", IsVip: true, ExpiresAt: &past}
	m.lastActive = true
	m.mu.Unlock()

	assert.False(t, m.VipActive())
	// Reading must not mutate the flag or announce anything; corrections
	// come from the monitor and the pollers only.
	assert.True(t, m.Snapshot().IsVip)
	assert.Empty(t, rec.list())
}

func TestMonitorCorrectsStaleEntitlementImmediately(t *testing.T) {
	m, clock, _, _, _ := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	past := clock.Now().Add(-time.Minute)
	m.mu.Lock()
	m.sess = domain.Session{
		IsAuthenticated: true,
		UserID:          "u1",
		IsVip:           true,
		ExpiresAt:       &past,
		AccessToken:     "stale-access",
	}
	m.lastActive = true
	m.mu.Unlock()

	// Starting the watcher against an already-past expiry flips the flag
	// without waiting for a tick.
	m.StartVipExpirationMonitor()

	assert.False(t, m.Snapshot().IsVip)
	assert.Equal(t, [][2]bool{{false, true}}, rec.list())
}

func TestStaleServerSnapshotReconcilesOnce(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)

	// The server reports an expired subscription that is still flagged
	// VIP and keeps echoing that snapshot on every poll.
	past := clock.Now().Add(-time.Minute)
	loginAs(t, m, clock, api, vipUser(&past))

	// The monitor corrects the flag once and asks the server once per
	// poller; the echoed stale snapshot must not re-enter the expired
	// path and spin inside the login call.
	_, _, vip, user := api.counts()
	assert.Equal(t, 1, vip)
	assert.Equal(t, 1, user)
	assert.False(t, m.VipActive())
	assert.True(t, m.Snapshot().IsVip, "server truth is stored as reported")
	assert.False(t, m.expiryTask.isRunning(), "a past expiry is not watched")

	// The regular cadence stays bounded too: one check per tick.
	clock.Advance(DefaultConfig().VipPollInterval)
	_, _, vipAfter, _ := api.counts()
	assert.Equal(t, vip+1, vipAfter)
}

func TestProactiveRefreshRotatesTokens(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	rotated := makeToken(t, clock.Now().Add(19*time.Minute))
	api.refreshFn = func(refreshToken string) (*authapi.RefreshData, error) {
		return &authapi.RefreshData{AccessToken: rotated, RefreshToken: "refresh-2"}, nil
	}
	loginAs(t, m, clock, api, verifiedUser())

	// Token expires in 10m, so the refresh fires at 9m.
	clock.Advance(9 * time.Minute)
	refresh, _, _, _ := api.counts()
	assert.Equal(t, 1, refresh)

	sess := m.testSession()
	assert.Equal(t, rotated, sess.AccessToken)
	assert.Equal(t, "refresh-2", sess.RefreshToken)
	assert.True(t, m.refreshTask.isRunning(), "next refresh should be armed")
}

func TestRefreshFailureIsTerminal(t *testing.T) {
	m, clock, api, st, _ := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)
	api.refreshFn = func(string) (*authapi.RefreshData, error) {
		return nil, apperrors.Unauthorized("refresh token revoked")
	}
	expiry := clock.Now().Add(30 * 24 * time.Hour)
	loginAs(t, m, clock, api, vipUser(&expiry))

	clock.Advance(9 * time.Minute)

	assert.False(t, m.Snapshot().IsAuthenticated)
	assert.Equal(t, [][2]bool{{true, false}, {false, true}}, rec.list())

	refresh, _, vipAtClear, _ := api.counts()
	assert.Equal(t, 1, refresh)

	// No retry loop: nothing may call out with the dead session.
	clock.Advance(time.Hour)
	refreshAfter, _, vipAfter, _ := api.counts()
	assert.Equal(t, refresh, refreshAfter)
	assert.Equal(t, vipAtClear, vipAfter)

	m.Close()
	blob, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob, "persisted session should be deleted")
}

func TestServerEntitlementOverwritesLocal(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)
	// The listener must observe fully committed state.
	m.AddVipStatusListener(func(newActive, _ bool) {
		assert.Equal(t, newActive, m.Snapshot().VipActive)
	})

	expiry := clock.Now().Add(7 * 24 * time.Hour)
	upgraded := vipUser(&expiry)
	stubStatuses(api, upgraded)

	clock.Advance(DefaultConfig().VipPollInterval)

	assert.True(t, m.VipActive())
	assert.Equal(t, [][2]bool{{true, false}}, rec.list())
	assert.True(t, m.expiryTask.isRunning())
}

func TestVipPollSurvivesErrors(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	api.mu.Lock()
	api.vipStatusFn = func(string) (*authapi.VipStatus, error) {
		return nil, errors.New("connection reset")
	}
	api.mu.Unlock()

	clock.Advance(DefaultConfig().VipPollInterval)
	_, _, vip, _ := api.counts()
	assert.Equal(t, 1, vip)
	assert.True(t, m.Snapshot().IsAuthenticated)

	stubStatuses(api, verifiedUser())
	clock.Advance(DefaultConfig().VipPollInterval)
	_, _, vip, _ = api.counts()
	assert.Equal(t, 2, vip, "cadence continues after a failed check")
}

func TestPollUnauthorizedTriggersSingleRefresh(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	rotated := makeToken(t, clock.Now().Add(time.Hour))
	api.mu.Lock()
	api.refreshFn = func(string) (*authapi.RefreshData, error) {
		return &authapi.RefreshData{AccessToken: rotated, RefreshToken: "refresh-2"}, nil
	}
	failed := false
	api.vipStatusFn = func(string) (*authapi.VipStatus, error) {
		if !failed {
			failed = true
			return nil, apperrors.Unauthorized("token expired")
		}
		return &authapi.VipStatus{}, nil
	}
	api.mu.Unlock()

	clock.Advance(DefaultConfig().VipPollInterval)

	refresh, _, _, _ := api.counts()
	assert.Equal(t, 1, refresh)
	assert.True(t, m.Snapshot().IsAuthenticated)
	assert.Equal(t, rotated, m.testSession().AccessToken)
}

func TestVipExpiryFlipsExactlyOnce(t *testing.T) {
	m, clock, api, _, broadcast := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	expiry := clock.Now().Add(2 * time.Second)
	loginAs(t, m, clock, api, vipUser(&expiry))
	require.True(t, m.VipActive())

	// After expiry the server agrees the subscription lapsed.
	lapsed := verifiedUser()
	stubStatuses(api, lapsed)

	clock.Advance(3 * time.Second)

	snap := m.Snapshot()
	assert.False(t, snap.IsVip)
	assert.False(t, snap.VipActive)
	assert.Equal(t, [][2]bool{{true, false}, {false, true}}, rec.list())

	// The flip forces an immediate reconciliation, well before the
	// regular poll cadence.
	_, _, vip, user := api.counts()
	assert.GreaterOrEqual(t, vip, 1)
	assert.GreaterOrEqual(t, user, 1)

	// Later polls confirming the lapse must not re-announce it.
	clock.Advance(time.Minute)
	assert.Equal(t, [][2]bool{{true, false}, {false, true}}, rec.list())

	m.Close()
	broadcast.mu.Lock()
	defer broadcast.mu.Unlock()
	assert.ElementsMatch(t, [][2]bool{{true, false}, {false, true}}, broadcast.transitions)
}

func TestPermanentVipIsNotWatched(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	u := vipUser(nil)
	u.IsAdmin = true
	loginAs(t, m, clock, api, u)

	assert.True(t, m.VipActive())
	assert.False(t, m.expiryTask.isRunning())

	clock.Advance(time.Hour)
	assert.True(t, m.VipActive())
	assert.Equal(t, [][2]bool{{true, false}}, rec.list())
}

func TestLogoutClearsLocallyBeforeServer(t *testing.T) {
	m, clock, api, st, _ := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	expiry := clock.Now().Add(30 * 24 * time.Hour)
	loginAs(t, m, clock, api, vipUser(&expiry))
	access := m.testSession().AccessToken

	api.mu.Lock()
	api.logoutErr = errors.New("server unavailable")
	api.mu.Unlock()

	res := m.Logout(context.Background())
	assert.True(t, res.Success, "server failure must not block local logout")
	assert.False(t, m.Snapshot().IsAuthenticated)
	assert.Equal(t, [][2]bool{{true, false}, {false, true}}, rec.list())

	m.Close()
	api.mu.Lock()
	assert.Equal(t, 1, api.logoutCalls)
	assert.Equal(t, []string{access}, api.logoutTokens)
	api.mu.Unlock()

	blob, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestLogoutDeleteWinsOverInflightSave(t *testing.T) {
	clock := newFakeClock(testStart)
	api := &fakeAPI{}
	st := &slowStore{Memory: store.NewMemory(), saveDelay: 50 * time.Millisecond}
	m := NewManager(api, st, &fakeBroadcast{}, clock, DefaultConfig(), slog.New(slog.DiscardHandler))
	t.Cleanup(m.Close)

	loginAs(t, m, clock, api, verifiedUser())

	// Logout before the login's background save has landed. However the
	// slow save and the delete interleave, the store must end up empty,
	// or a restart would resurrect the logged-out session.
	res := m.Logout(context.Background())
	require.True(t, res.Success)
	m.Close()

	blob, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob, "save enqueued before logout landed after the delete")
}

func TestStaleTimersAfterLogout(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	res := m.Logout(context.Background())
	require.True(t, res.Success)

	clock.Advance(time.Hour)
	refresh, _, vip, user := api.counts()
	assert.Equal(t, 0, refresh)
	assert.Equal(t, 0, vip)
	assert.Equal(t, 0, user)
}

func TestInitializeRestoresPersistedSession(t *testing.T) {
	m, clock, api, st, _ := newTestManager(t)
	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	expiry := clock.Now().Add(30 * 24 * time.Hour)
	u := vipUser(&expiry)
	sess := domain.Session{IsAuthenticated: true}
	applyUser(&sess, &u)
	sess.AccessToken = makeToken(t, clock.Now().Add(time.Hour))
	sess.RefreshToken = "refresh-1"
	sess.TokenExpiresAt = clock.Now().Add(time.Hour)
	blob, err := domain.EncodePersisted(sess)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), blob))

	api.mu.Lock()
	api.validateFn = func(string) (*authapi.User, error) { return &u, nil }
	api.mu.Unlock()
	stubStatuses(api, u)

	m.Initialize(context.Background())

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "u1", snap.UserID)
	assert.True(t, snap.VipActive)
	assert.Equal(t, [][2]bool{{true, false}}, rec.list())
	assert.True(t, m.refreshTask.isRunning())
	assert.True(t, m.vipPollTask.isRunning())

	// Initialize is one-shot.
	m.Initialize(context.Background())
	_, validate, _, _ := api.counts()
	assert.Equal(t, 1, validate)
}

func TestInitializeRefreshesStaleToken(t *testing.T) {
	m, clock, api, st, _ := newTestManager(t)

	sess := domain.Session{
		IsAuthenticated: true,
		UserID:          "u1",
		Email:           "jane@example.com",
		EmailVerified:   true,
		AccessToken:     "stale",
		RefreshToken:    "refresh-1",
		TokenExpiresAt:  clock.Now().Add(30 * time.Second),
	}
	blob, err := domain.EncodePersisted(sess)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), blob))

	rotated := makeToken(t, clock.Now().Add(time.Hour))
	api.mu.Lock()
	api.refreshFn = func(refreshToken string) (*authapi.RefreshData, error) {
		assert.Equal(t, "refresh-1", refreshToken)
		return &authapi.RefreshData{AccessToken: rotated, RefreshToken: "refresh-2"}, nil
	}
	api.mu.Unlock()

	m.Initialize(context.Background())

	refresh, validate, _, _ := api.counts()
	assert.Equal(t, 1, refresh)
	assert.Equal(t, 0, validate, "stale token goes straight to refresh")
	assert.True(t, m.Snapshot().IsAuthenticated)
	assert.Equal(t, rotated, m.testSession().AccessToken)
}

func TestInitializeDropsSessionWhenRefreshFails(t *testing.T) {
	m, clock, api, st, _ := newTestManager(t)

	sess := domain.Session{
		IsAuthenticated: true,
		UserID:          "u1",
		AccessToken:     "stale",
		RefreshToken:    "refresh-1",
		TokenExpiresAt:  clock.Now().Add(-time.Minute),
	}
	blob, err := domain.EncodePersisted(sess)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), blob))

	api.mu.Lock()
	api.refreshFn = func(string) (*authapi.RefreshData, error) {
		return nil, apperrors.Unauthorized("refresh token revoked")
	}
	api.mu.Unlock()

	m.Initialize(context.Background())

	assert.False(t, m.Snapshot().IsAuthenticated)
	m.Close()
	stored, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestInitializeIgnoresCorruptBlob(t *testing.T) {
	m, _, api, st, _ := newTestManager(t)
	require.NoError(t, st.Save(context.Background(), []byte("{not json")))

	m.Initialize(context.Background())

	assert.False(t, m.Snapshot().IsAuthenticated)
	_, validate, _, _ := api.counts()
	assert.Equal(t, 0, validate)
	assert.False(t, m.refreshTask.isRunning())
}

func TestListenerUnsubscribe(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	first := &transitionRecorder{}
	second := &transitionRecorder{}
	unsubscribe := m.AddVipStatusListener(first.listen)
	m.AddVipStatusListener(second.listen)

	unsubscribe()
	unsubscribe() // idempotent

	expiry := clock.Now().Add(7 * 24 * time.Hour)
	stubStatuses(api, vipUser(&expiry))
	clock.Advance(DefaultConfig().VipPollInterval)

	assert.Empty(t, first.list())
	assert.Equal(t, [][2]bool{{true, false}}, second.list())
}

func TestAuthRetryAfterUnauthorized(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	rotated := makeToken(t, clock.Now().Add(time.Hour))
	api.mu.Lock()
	api.refreshFn = func(string) (*authapi.RefreshData, error) {
		return &authapi.RefreshData{AccessToken: rotated, RefreshToken: "refresh-2"}, nil
	}
	calls := 0
	api.updatePasswordFn = func(token, _, _ string) error {
		calls++
		if calls == 1 {
			return apperrors.Unauthorized("token expired")
		}
		assert.Equal(t, rotated, token)
		return nil
	}
	api.mu.Unlock()

	res := m.UpdatePassword(context.Background(), "old", "new")
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, 2, calls)
	refresh, _, _, _ := api.counts()
	assert.Equal(t, 1, refresh)
}

func TestUpdatePasswordRequiresSession(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	res := m.UpdatePassword(context.Background(), "old", "new")
	assert.False(t, res.Success)
}

func TestProcessPaymentActivatesEntitlement(t *testing.T) {
	m, clock, api, _, _ := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	rec := &transitionRecorder{}
	m.AddVipStatusListener(rec.listen)

	expiry := clock.Now().Add(30 * 24 * time.Hour)
	upgraded := vipUser(&expiry)
	api.mu.Lock()
	api.paymentFn = func(_ string, in authapi.PaymentInput) (*authapi.VipStatus, error) {
		assert.Equal(t, "monthly", in.Plan)
		return &authapi.VipStatus{
			IsVip:              true,
			VipPlan:            "monthly",
			VipPlanDisplayName: "Monthly VIP",
			Duration:           30,
			ExpiryDate:         &expiry,
		}, nil
	}
	api.mu.Unlock()
	stubStatuses(api, upgraded)

	res := m.ProcessPayment(context.Background(), authapi.PaymentInput{
		Plan: "monthly", Duration: 30, Amount: 29.99, Currency: "USD", ActivationDate: clock.Now(),
	})
	require.True(t, res.Success, res.Message)

	assert.True(t, m.VipActive())
	// The payment result and the forced reconciliation both report the
	// same upgrade; only one transition may surface.
	assert.Equal(t, [][2]bool{{true, false}}, rec.list())
	assert.True(t, m.expiryTask.isRunning())

	_, _, vip, user := api.counts()
	assert.GreaterOrEqual(t, vip, 1)
	assert.GreaterOrEqual(t, user, 1)
}

func TestUserStatusDiffIsBroadcast(t *testing.T) {
	m, clock, api, _, broadcast := newTestManager(t)
	loginAs(t, m, clock, api, verifiedUser())

	authorized := verifiedUser()
	authorized.IsAuthorized = true
	stubStatuses(api, authorized)

	clock.Advance(DefaultConfig().UserPollInterval)
	m.Close()

	broadcast.mu.Lock()
	defer broadcast.mu.Unlock()
	require.NotEmpty(t, broadcast.updates)
	assert.Equal(t, true, broadcast.updates[0]["isAuthorized"])
	assert.True(t, m.Snapshot().IsAuthorized)
}
