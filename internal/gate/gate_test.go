package gate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stars-storefront-go/internal/database"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticFlag bool

func (f staticFlag) Maintenance() bool { return bool(f) }

var testConfig = models.GateConfig{
	MaxRequests: 20,
	Window:      60 * time.Second,
	MaxFailures: 5,
	BanDuration: 30 * time.Minute,
}

func setupTestDb(t *testing.T) *database.Service {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "gate.db"),
		MaxOpenConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func newTestGate(db *database.Service, clock *fakeClock, admins ...int64) *Gate {
	isAdmin := func(userId int64) bool {
		for _, id := range admins {
			if id == userId {
				return true
			}
		}
		return false
	}
	g := New(db, testConfig, isAdmin, staticFlag(false), metrics.NewIsolated())
	g.now = clock.Now
	return g
}

func TestAdmit_WindowCeiling(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	clock := &fakeClock{now: time.Now().UTC()}
	g := newTestGate(db, clock)

	for i := 0; i < testConfig.MaxRequests; i++ {
		require.Equal(t, Allowed, g.Admit(ctx, 1), "request %d", i+1)
	}
	require.Equal(t, RateLimited, g.Admit(ctx, 1))
	require.Equal(t, RateLimited, g.Admit(ctx, 1))

	// Rejections do not consume the window
	record, err := db.GetRateLimit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(testConfig.MaxRequests), record.RequestCount)

	// Other users are unaffected
	require.Equal(t, Allowed, g.Admit(ctx, 2))

	clock.Advance(testConfig.Window)
	require.Equal(t, Allowed, g.Admit(ctx, 1))
	record, err = db.GetRateLimit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), record.RequestCount)
}

func TestAdmit_StateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	clock := &fakeClock{now: time.Now().UTC()}

	first := newTestGate(db, clock)
	for i := 0; i < testConfig.MaxRequests; i++ {
		require.Equal(t, Allowed, first.Admit(ctx, 1))
	}

	second := newTestGate(db, clock)
	require.Equal(t, RateLimited, second.Admit(ctx, 1))
}

func TestRecordFailure_TemporaryBan(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	clock := &fakeClock{now: time.Now().UTC()}
	g := newTestGate(db, clock)

	for i := 1; i < testConfig.MaxFailures; i++ {
		banned, err := g.RecordFailure(ctx, 1, "price mismatch")
		require.NoError(t, err)
		require.False(t, banned, "failure %d", i)
		require.Equal(t, Allowed, g.Admit(ctx, 1))
	}

	banned, err := g.RecordFailure(ctx, 1, "price mismatch")
	require.NoError(t, err)
	require.True(t, banned)

	require.Equal(t, Banned, g.Admit(ctx, 1))
	clock.Advance(testConfig.BanDuration - time.Second)
	require.Equal(t, Banned, g.Admit(ctx, 1))

	clock.Advance(time.Second)
	require.Equal(t, Allowed, g.Admit(ctx, 1))

	// Expiry resets the failure counter
	record, err := db.GetRateLimit(ctx, 1)
	require.NoError(t, err)
	require.False(t, record.IsTempBanned)
	require.Equal(t, int64(0), record.FailedAttempts)
}

func TestAdmit_AdministratorsBypass(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	clock := &fakeClock{now: time.Now().UTC()}
	g := newTestGate(db, clock, 99)
	g.maintenance = staticFlag(true)

	for i := 0; i < testConfig.MaxRequests*2; i++ {
		require.Equal(t, Allowed, g.Admit(ctx, 99))
	}
	banned, err := g.RecordFailure(ctx, 99, "test")
	require.NoError(t, err)
	require.False(t, banned)

	require.Equal(t, Maintenance, g.Admit(ctx, 1))
}

func TestAdmit_PermanentBan(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	clock := &fakeClock{now: time.Now().UTC()}
	g := newTestGate(db, clock)

	_, _, err := db.EnsureUser(ctx, store.EnsureUserParams{UserId: 5})
	require.NoError(t, err)
	require.Equal(t, Allowed, g.Admit(ctx, 5))

	require.NoError(t, db.BanUser(ctx, 5, "chargeback abuse"))
	require.Equal(t, Banned, g.Admit(ctx, 5))
}

func TestDecision_String(t *testing.T) {
	require.Equal(t, "allowed", Allowed.String())
	require.Equal(t, "rate_limited", RateLimited.String())
	require.Equal(t, "banned", Banned.String())
	require.Equal(t, "maintenance", Maintenance.String())
}
