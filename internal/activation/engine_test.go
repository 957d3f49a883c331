package activation

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/fingerprint"
	"github.com/keypilot/keypilot-api/internal/storage/memstorage"
	"github.com/keypilot/keypilot-api/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store  *memstorage.Store
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstorage.NewStore()
	recorder := telemetry.NewDirectRecorder(store.Tracking(), zap.NewNop())
	engine := NewEngine(store.Licenses(), store.Machines(), recorder, zap.NewNop())
	return &testEnv{store: store, engine: engine}
}

func (env *testEnv) seedLicense(t *testing.T, lic license.License) *license.License {
	t.Helper()
	id, err := env.store.Licenses().Create(context.Background(), &lic)
	require.NoError(t, err)
	created, err := env.store.Licenses().FindByID(context.Background(), id)
	require.NoError(t, err)
	return created
}

func (env *testEnv) activations(t *testing.T) []*tracking.Activation {
	t.Helper()
	recs, err := env.store.Tracking().ListActivations(context.Background(), 0)
	require.NoError(t, err)
	return recs
}

func (env *testEnv) failedAttempts(t *testing.T) []*tracking.FailedAttempt {
	t.Helper()
	recs, err := env.store.Tracking().ListFailedAttempts(context.Background(), 0)
	require.NoError(t, err)
	return recs
}

func testMeta() tracking.ClientMeta {
	return tracking.ClientMeta{
		IPAddress: "127.0.0.1",
		UserAgent: "engine-test",
		Country:   "Unknown",
		City:      "Unknown",
	}
}

func trialDays(n int32) sql.NullInt32 {
	return sql.NullInt32{Int32: n, Valid: true}
}

func TestActivateFirstUseBindsAndTransitions(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})

	assertion, err := env.engine.Activate(context.Background(), Request{
		AppID:          1,
		LicenseKey:     lic.LicenseKey,
		RawFingerprint: "Machine-One",
		Meta:           testMeta(),
	})
	require.NoError(t, err)

	wantHash, _ := fingerprint.Normalize("Machine-One")
	assert.Equal(t, lic.ID, assertion.LicenseID)
	assert.Equal(t, int64(1), assertion.AppID)
	assert.Equal(t, license.TypeLifetime, assertion.LicenseType)
	assert.Nil(t, assertion.ExpiresAt)
	assert.Equal(t, wantHash, assertion.Fingerprint)

	stored, err := env.store.Licenses().FindByID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusUsed, stored.Status)

	binding, err := env.store.Machines().FindByLicenseID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, wantHash, binding.Fingerprint)

	assert.Len(t, env.activations(t), 1)
	assert.Empty(t, env.failedAttempts(t))
}

func TestActivateRepeatFromBoundMachine(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})

	first, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	require.NoError(t, err)

	// Repeat activation, differing only in case and padding.
	second, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "  MACHINE-ONE  ", Meta: testMeta(),
	})
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	binding, err := env.store.Machines().FindByLicenseID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, binding.Fingerprint)

	assert.Empty(t, env.failedAttempts(t))
}

func TestActivateRejectsSecondMachine(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})

	_, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	require.NoError(t, err)

	_, err = env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-two", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindAlreadyBound), "got %v", err)

	failed := env.failedAttempts(t)
	require.Len(t, failed, 1)
	assert.Equal(t, tracking.ReasonAlreadyUsed, failed[0].Reason)
	assert.Equal(t, int64(1), failed[0].AppID)
	assert.Equal(t, lic.LicenseKey, failed[0].AttemptedKey)

	// Binding unchanged.
	wantHash, _ := fingerprint.Normalize("machine-one")
	binding, err := env.store.Machines().FindByLicenseID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, wantHash, binding.Fingerprint)
}

func TestActivateHwidMismatchWhileStillActive(t *testing.T) {
	// A binding exists but the license never left active (interrupted
	// first activation under a non-atomic legacy store). A different
	// machine must be rejected with the hwid mismatch reason.
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})
	otherHash, _ := fingerprint.Normalize("machine-one")
	_, err := env.store.Machines().BindAndTransition(context.Background(), lic.ID, otherHash, license.StatusActive, license.StatusActive)
	require.NoError(t, err)

	_, err = env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-two", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindHwidMismatch), "got %v", err)

	failed := env.failedAttempts(t)
	require.Len(t, failed, 1)
	assert.Equal(t, tracking.ReasonHwidMismatch, failed[0].Reason)
}

func TestActivateIdempotentWhenBindingExistsButStatusActive(t *testing.T) {
	// Defensive branch: binding for the same fingerprint already
	// present while the status flip was lost. Treated as a repeat
	// activation and the status is settled to used.
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})
	hash, _ := fingerprint.Normalize("machine-one")
	_, err := env.store.Machines().BindAndTransition(context.Background(), lic.ID, hash, license.StatusActive, license.StatusActive)
	require.NoError(t, err)

	assertion, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	require.NoError(t, err)
	assert.Equal(t, hash, assertion.Fingerprint)

	stored, err := env.store.Licenses().FindByID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusUsed, stored.Status)
}

func TestTrialExpiresLazily(t *testing.T) {
	env := newTestEnv(t)
	createdAt := time.Now().UTC().Add(-10 * 24 * time.Hour)
	lic := env.seedLicense(t, license.License{
		AppID:        1,
		LicenseKey:   "TTTT-TTTT-TTTT-TTTT",
		Type:         license.TypeTrial,
		DurationDays: trialDays(5),
		Status:       license.StatusActive,
		CreatedAt:    createdAt,
	})

	_, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindExpired), "got %v", err)

	stored, err := env.store.Licenses().FindByID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusExpired, stored.Status)

	failed := env.failedAttempts(t)
	require.Len(t, failed, 1)
	assert.Equal(t, tracking.ReasonExpired, failed[0].Reason)

	// A subsequent attempt short-circuits on the persisted status.
	// Rewinding the clock inside the trial window proves the window is
	// not recomputed once the status is expired.
	env.engine.now = func() time.Time { return createdAt.Add(24 * time.Hour) }
	_, err = env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindExpired), "got %v", err)
	assert.Len(t, env.failedAttempts(t), 2)
}

func TestTrialActivationCarriesExpiry(t *testing.T) {
	env := newTestEnv(t)
	createdAt := time.Now().UTC().Add(-24 * time.Hour)
	lic := env.seedLicense(t, license.License{
		AppID:        1,
		LicenseKey:   "TTTT-TTTT-TTTT-TTTT",
		Type:         license.TypeTrial,
		DurationDays: trialDays(5),
		Status:       license.StatusActive,
		CreatedAt:    createdAt,
	})

	assertion, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	require.NoError(t, err)

	require.NotNil(t, assertion.ExpiresAt)
	assert.Equal(t, createdAt.Add(5*24*time.Hour), *assertion.ExpiresAt)
	assert.Empty(t, env.failedAttempts(t))
}

func TestActivateInvalidFingerprint(t *testing.T) {
	env := newTestEnv(t)
	env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})

	for _, raw := range []string{"", "   "} {
		_, err := env.engine.Activate(context.Background(), Request{
			AppID: 1, LicenseKey: "AAAA-BBBB-CCCC-DDDD", RawFingerprint: raw, Meta: testMeta(),
		})
		assert.True(t, IsKind(err, KindInvalidFingerprint), "raw=%q got %v", raw, err)
	}

	// No storage writes of any kind.
	assert.Empty(t, env.activations(t))
	assert.Empty(t, env.failedAttempts(t))
}

func TestActivateMissingFields(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Activate(context.Background(), Request{
		AppID: 0, LicenseKey: "AAAA-BBBB-CCCC-DDDD", RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindMissingFields), "got %v", err)

	_, err = env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: "", RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindMissingFields), "got %v", err)

	assert.Empty(t, env.failedAttempts(t))
}

func TestActivateUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Activate(context.Background(), Request{
		AppID: 3, LicenseKey: "NOPE-NOPE-NOPE-NOPE", RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindNotFound), "got %v", err)

	failed := env.failedAttempts(t)
	require.Len(t, failed, 1)
	assert.Equal(t, tracking.ReasonNotFound, failed[0].Reason)
	assert.Equal(t, int64(3), failed[0].AppID)
	assert.Equal(t, "NOPE-NOPE-NOPE-NOPE", failed[0].AttemptedKey)
}

func TestActivateAppMismatch(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})

	_, err := env.engine.Activate(context.Background(), Request{
		AppID: 2, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindAppMismatch), "got %v", err)

	// Attributed to the license's true owning app, not the requester.
	failed := env.failedAttempts(t)
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].AppID)
	assert.Equal(t, tracking.ReasonAppMismatch, failed[0].Reason)
}

func TestActivateRevoked(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusRevoked,
	})

	_, err := env.engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: "machine-one", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindRevoked), "got %v", err)

	failed := env.failedAttempts(t)
	require.Len(t, failed, 1)
	assert.Equal(t, tracking.ReasonRevoked, failed[0].Reason)
}

func TestConcurrentFirstActivationSingleWinner(t *testing.T) {
	const n = 16

	env := newTestEnv(t)
	lic := env.seedLicense(t, license.License{
		AppID:      1,
		LicenseKey: "RACE-RACE-RACE-RACE",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		winners    []string
		rejections int
	)

	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			raw := "machine-" + string(rune('a'+i))
			assertion, err := env.engine.Activate(context.Background(), Request{
				AppID: 1, LicenseKey: lic.LicenseKey, RawFingerprint: raw, Meta: testMeta(),
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, assertion.Fingerprint)
				return
			}
			if IsKind(err, KindAlreadyBound) || IsKind(err, KindHwidMismatch) {
				rejections++
				return
			}
			t.Errorf("unexpected activation error: %v", err)
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1, "exactly one concurrent activation must win")
	assert.Equal(t, n-1, rejections)

	binding, err := env.store.Machines().FindByLicenseID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], binding.Fingerprint)

	stored, err := env.store.Licenses().FindByID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, license.StatusUsed, stored.Status)

	assert.Len(t, env.activations(t), 1)
	assert.Len(t, env.failedAttempts(t), n-1)
}

type failingTrackingRepo struct{}

func (failingTrackingRepo) InsertActivation(ctx context.Context, rec *tracking.Activation) (int64, error) {
	return 0, assert.AnError
}
func (failingTrackingRepo) InsertFailedAttempt(ctx context.Context, rec *tracking.FailedAttempt) (int64, error) {
	return 0, assert.AnError
}
func (failingTrackingRepo) ListActivations(ctx context.Context, appID int64) ([]*tracking.Activation, error) {
	return nil, assert.AnError
}
func (failingTrackingRepo) ListFailedAttempts(ctx context.Context, appID int64) ([]*tracking.FailedAttempt, error) {
	return nil, assert.AnError
}

func TestTelemetryFailureDoesNotAlterDecision(t *testing.T) {
	store := memstorage.NewStore()
	recorder := telemetry.NewDirectRecorder(failingTrackingRepo{}, zap.NewNop())
	engine := NewEngine(store.Licenses(), store.Machines(), recorder, zap.NewNop())

	id, err := store.Licenses().Create(context.Background(), &license.License{
		AppID:      1,
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Type:       license.TypeLifetime,
		Status:     license.StatusActive,
	})
	require.NoError(t, err)

	assertion, err := engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: "AAAA-BBBB-CCCC-DDDD", RawFingerprint: "machine-one", Meta: testMeta(),
	})
	require.NoError(t, err)
	assert.Equal(t, id, assertion.LicenseID)

	// The rejection path tolerates the failing recorder the same way.
	_, err = engine.Activate(context.Background(), Request{
		AppID: 1, LicenseKey: "AAAA-BBBB-CCCC-DDDD", RawFingerprint: "machine-two", Meta: testMeta(),
	})
	assert.True(t, IsKind(err, KindAlreadyBound), "got %v", err)
}
