package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/backend/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/errors"
)

func testManagerConfig() backend.ManagerConfig {
	cfg := backend.DefaultManagerConfig()
	cfg.RetryAttempts = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.FailureThreshold = 3
	cfg.Cooldown = 50 * time.Millisecond
	return cfg
}

func TestManagerSetGet(t *testing.T) {
	store := mock.NewMockStore()
	manager := backend.NewManager(store, testManagerConfig())
	ctx := context.Background()

	err := manager.Set(ctx, "short:s1:state", []byte("hello"), 0)
	require.NoError(t, err)

	value, err := manager.Get(ctx, "short:s1:state")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)
}

func TestManagerGetNotFound(t *testing.T) {
	store := mock.NewMockStore()
	manager := backend.NewManager(store, testManagerConfig())

	_, err := manager.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// A not-found result is data, not an infrastructure failure
	assert.Equal(t, backend.BreakerClosed, manager.BreakerState())
}

func TestManagerRetriesTransientFailures(t *testing.T) {
	store := mock.NewMockStore()
	cfg := testManagerConfig()
	cfg.RetryAttempts = 2
	manager := backend.NewManager(store, cfg)
	ctx := context.Background()

	store.FailNext(1)
	err := manager.Set(ctx, "k", []byte("v"), 0)
	require.NoError(t, err, "one transient failure should be retried away")
	assert.Equal(t, 2, store.CallCount())
	assert.Equal(t, backend.BreakerClosed, manager.BreakerState())
}

func TestManagerFailFastWhileOpen(t *testing.T) {
	store := mock.NewMockStore()
	manager := backend.NewManager(store, testManagerConfig())
	ctx := context.Background()

	store.SetFailAll(true)
	for i := 0; i < 3; i++ {
		err := manager.Set(ctx, "k", []byte("v"), 0)
		require.Error(t, err)
	}
	require.Equal(t, backend.BreakerOpen, manager.BreakerState())

	// While open, calls are rejected without touching the backend
	calls := store.CallCount()
	err := manager.Set(ctx, "k", []byte("v"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInfrastructureUnavailable))
	assert.Equal(t, calls, store.CallCount(), "open breaker must not reach the backend")
}

func TestManagerHalfOpenProbeRecovers(t *testing.T) {
	store := mock.NewMockStore()
	manager := backend.NewManager(store, testManagerConfig())
	ctx := context.Background()

	store.SetFailAll(true)
	for i := 0; i < 3; i++ {
		manager.Set(ctx, "k", []byte("v"), 0)
	}
	require.Equal(t, backend.BreakerOpen, manager.BreakerState())

	// Backend recovers; after the cooldown a single probe closes the circuit
	store.SetFailAll(false)
	time.Sleep(60 * time.Millisecond)

	err := manager.Set(ctx, "k", []byte("v"), 0)
	require.NoError(t, err)
	assert.Equal(t, backend.BreakerClosed, manager.BreakerState())
}

func TestManagerPermanentErrorNotRetried(t *testing.T) {
	calls := 0
	fs := &funcStore{
		MockStore: mock.NewMockStore(),
		pingFn: func(ctx context.Context) error {
			calls++
			return backend.MarkPermanent(errors.New("auth denied"))
		},
	}
	cfg := testManagerConfig()
	cfg.RetryAttempts = 3
	manager := backend.NewManager(fs, cfg)

	err := manager.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

// funcStore routes Ping to a caller-supplied function; every other
// operation falls through to the embedded mock.
type funcStore struct {
	*mock.MockStore
	pingFn func(ctx context.Context) error
}

func (f *funcStore) Ping(ctx context.Context) error {
	return f.pingFn(ctx)
}

func TestManagerPoolStats(t *testing.T) {
	store := mock.NewMockStore()
	cfg := testManagerConfig()
	cfg.MaxConns = 4
	manager := backend.NewManager(store, cfg)

	stats := manager.PoolStats()
	assert.Equal(t, 4, stats.Max)
	assert.Equal(t, 4, stats.Available)
	assert.Equal(t, 0, stats.InUse)
}

func TestManagerHealthy(t *testing.T) {
	store := mock.NewMockStore()
	manager := backend.NewManager(store, testManagerConfig())

	assert.True(t, manager.Healthy(context.Background()))

	store.SetFailAll(true)
	assert.False(t, manager.Healthy(context.Background()))
}
