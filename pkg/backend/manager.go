package backend

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// PoolStats is a snapshot of connection pool usage.
type PoolStats struct {
	// InUse is the number of handles currently held by callers
	InUse int

	// Available is the number of free handles
	Available int

	// Max is the pool capacity
	Max int
}

// ManagerConfig contains configuration options for the connection manager.
type ManagerConfig struct {
	// MaxConns is the pool capacity
	MaxConns int

	// AcquireTimeout bounds how long a caller waits for a free handle
	AcquireTimeout time.Duration

	// OpTimeout bounds each backend operation
	OpTimeout time.Duration

	// RetryAttempts is how many times a transient failure is retried
	RetryAttempts int

	// RetryBackoff is the base delay between retries, scaled linearly
	// with the attempt number
	RetryBackoff time.Duration

	// FailureThreshold is the consecutive-failure count that opens the breaker
	FailureThreshold int

	// Cooldown is how long the breaker stays open before a half-open probe
	Cooldown time.Duration
}

// DefaultManagerConfig returns the default connection manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConns:         20,
		AcquireTimeout:   5 * time.Second,
		OpTimeout:        5 * time.Second,
		RetryAttempts:    2,
		RetryBackoff:     100 * time.Millisecond,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent wraps an error so the connection manager propagates it
// immediately instead of retrying. Use for auth and other fatal failures.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return stderrors.As(err, &pe)
}

// Manager mediates all access to the durable backend. Every operation
// first consults the circuit breaker, then acquires a pooled handle, runs
// under a per-op timeout, and retries transient failures with bounded
// backoff. It is the only shared mutable state between concurrent turns
// and is safe for concurrent use.
type Manager struct {
	store   Store
	breaker *Breaker
	slots   chan struct{}
	config  ManagerConfig
}

// NewManager creates a connection manager wrapping the given backend store.
func NewManager(store Store, config ManagerConfig) *Manager {
	if config.MaxConns <= 0 {
		config.MaxConns = DefaultManagerConfig().MaxConns
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = DefaultManagerConfig().OpTimeout
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = DefaultManagerConfig().AcquireTimeout
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultManagerConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultManagerConfig().Cooldown
	}

	slots := make(chan struct{}, config.MaxConns)
	for i := 0; i < config.MaxConns; i++ {
		slots <- struct{}{}
	}

	m := &Manager{
		store:   store,
		breaker: NewBreaker(config.FailureThreshold, config.Cooldown),
		slots:   slots,
		config:  config,
	}

	log.Debug("Connection manager initialized",
		"max_conns", config.MaxConns,
		"op_timeout", config.OpTimeout,
		"failure_threshold", config.FailureThreshold,
		"cooldown", config.Cooldown,
	)

	return m
}

// acquire takes a pooled handle, waiting up to AcquireTimeout. The
// returned release function must be deferred by the caller.
func (m *Manager) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(m.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case <-m.slots:
		return func() { m.slots <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, "context done while waiting for connection")
	case <-timer.C:
		return nil, errors.Wrap(errors.ErrInfrastructureUnavailable, "connection pool exhausted")
	}
}

// execute runs fn through the breaker, pool, per-op timeout, and retry
// policy. Not-found and validation results count as successful calls for
// breaker purposes; they reflect data, not infrastructure.
func (m *Manager) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	if !m.breaker.Allow() {
		return errors.Wrap(errors.ErrInfrastructureUnavailable, "circuit open, %s rejected", op)
	}

	release, err := m.acquire(ctx)
	if err != nil {
		m.breaker.RecordFailure()
		return err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := m.config.RetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				m.breaker.RecordFailure()
				return errors.Wrap(errors.ErrTimeout, "%s canceled during retry backoff", op)
			case <-time.After(backoff):
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
		err := fn(opCtx)
		cancel()

		if err == nil {
			m.breaker.RecordSuccess()
			return nil
		}

		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrValidation) {
			m.breaker.RecordSuccess()
			return err
		}

		if isPermanent(err) {
			m.breaker.RecordFailure()
			return err
		}

		lastErr = err
		log.WarnContext(ctx, "Backend operation failed, will retry",
			"op", op,
			"attempt", attempt+1,
			"error", err,
		)
	}

	m.breaker.RecordFailure()
	return errors.Wrap(lastErr, "%s failed after %d attempts", op, m.config.RetryAttempts+1)
}

// Healthy reports whether the backend is usable: the breaker is not open
// and the backend answers a ping.
func (m *Manager) Healthy(ctx context.Context) bool {
	if m.breaker.State() == BreakerOpen {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()

	return m.store.Ping(pingCtx) == nil
}

// PoolStats returns a snapshot of pool usage.
func (m *Manager) PoolStats() PoolStats {
	available := len(m.slots)
	return PoolStats{
		InUse:     m.config.MaxConns - available,
		Available: available,
		Max:       m.config.MaxConns,
	}
}

// BreakerState returns the current circuit breaker state.
func (m *Manager) BreakerState() BreakerState {
	return m.breaker.State()
}

// Close releases the underlying backend.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Set implements Store.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.execute(ctx, "set", func(ctx context.Context) error {
		return m.store.Set(ctx, key, value, ttl)
	})
}

// Get implements Store.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := m.execute(ctx, "get", func(ctx context.Context) error {
		v, err := m.store.Get(ctx, key)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Delete implements Store.
func (m *Manager) Delete(ctx context.Context, keys ...string) (int, error) {
	var removed int
	err := m.execute(ctx, "delete", func(ctx context.Context) error {
		n, err := m.store.Delete(ctx, keys...)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed, err
}

// ListAppend implements Store.
func (m *Manager) ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.execute(ctx, "list_append", func(ctx context.Context) error {
		return m.store.ListAppend(ctx, key, value, ttl)
	})
}

// ListRange implements Store.
func (m *Manager) ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	var out [][]byte
	err := m.execute(ctx, "list_range", func(ctx context.Context) error {
		v, err := m.store.ListRange(ctx, key, start, stop)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// ListLen implements Store.
func (m *Manager) ListLen(ctx context.Context, key string) (int, error) {
	var out int
	err := m.execute(ctx, "list_len", func(ctx context.Context) error {
		n, err := m.store.ListLen(ctx, key)
		if err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

// HashSet implements Store.
func (m *Manager) HashSet(ctx context.Context, key, field string, value []byte) error {
	return m.execute(ctx, "hash_set", func(ctx context.Context) error {
		return m.store.HashSet(ctx, key, field, value)
	})
}

// HashGet implements Store.
func (m *Manager) HashGet(ctx context.Context, key, field string) ([]byte, error) {
	var out []byte
	err := m.execute(ctx, "hash_get", func(ctx context.Context) error {
		v, err := m.store.HashGet(ctx, key, field)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// VectorUpsert implements Store.
func (m *Manager) VectorUpsert(ctx context.Context, namespace string, record VectorRecord) error {
	return m.execute(ctx, "vector_upsert", func(ctx context.Context) error {
		return m.store.VectorUpsert(ctx, namespace, record)
	})
}

// VectorSearch implements Store.
func (m *Manager) VectorSearch(ctx context.Context, namespace string, query []float32, topK int, filters map[string]string) ([]VectorHit, error) {
	var out []VectorHit
	err := m.execute(ctx, "vector_search", func(ctx context.Context) error {
		hits, err := m.store.VectorSearch(ctx, namespace, query, topK, filters)
		if err != nil {
			return err
		}
		out = hits
		return nil
	})
	return out, err
}

// VectorClear implements Store.
func (m *Manager) VectorClear(ctx context.Context, namespace string) (int, error) {
	var removed int
	err := m.execute(ctx, "vector_clear", func(ctx context.Context) error {
		n, err := m.store.VectorClear(ctx, namespace)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed, err
}

// Ping implements Store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.execute(ctx, "ping", func(ctx context.Context) error {
		return m.store.Ping(ctx)
	})
}

// Statically assert that Manager satisfies the Store interface.
var _ Store = (*Manager)(nil)
