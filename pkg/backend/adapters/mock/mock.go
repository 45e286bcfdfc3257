package mock

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

type listEntry struct {
	values    [][]byte
	expiresAt time.Time
}

type vectorEntry struct {
	record    backend.VectorRecord
	expiresAt time.Time
}

// MockStore is an in-memory implementation of the backend.Store interface
// used for testing and development. FailNext and FailAll allow failure
// injection for breaker and fault-isolation tests.
type MockStore struct {
	mutex   sync.RWMutex
	kv      map[string]kvEntry
	lists   map[string]*listEntry
	hashes  map[string]map[string][]byte
	vectors map[string]map[string]vectorEntry

	// failNext holds how many upcoming calls should fail
	failNext int

	// failAll makes every call fail until cleared
	failAll bool

	// callCount tracks how many backend calls actually executed
	callCount int
}

// NewMockStore creates a new instance of the MockStore.
func NewMockStore() *MockStore {
	store := &MockStore{
		kv:      make(map[string]kvEntry),
		lists:   make(map[string]*listEntry),
		hashes:  make(map[string]map[string][]byte),
		vectors: make(map[string]map[string]vectorEntry),
	}

	log.Debug("Initialized mock backend store")
	return store
}

// FailNext makes the next n backend calls fail with an infrastructure error.
func (m *MockStore) FailNext(n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failNext = n
}

// SetFailAll toggles failure of every backend call.
func (m *MockStore) SetFailAll(fail bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failAll = fail
}

// CallCount returns how many backend calls have executed (including
// injected failures, excluding calls rejected before reaching the store).
func (m *MockStore) CallCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.callCount
}

// checkFailure counts the call and returns an injected error when failure
// injection is active. Callers must hold the write lock.
func (m *MockStore) checkFailure() error {
	m.callCount++
	if m.failAll {
		return errors.Wrap(errors.ErrInfrastructureUnavailable, "injected failure")
	}
	if m.failNext > 0 {
		m.failNext--
		return errors.Wrap(errors.ErrInfrastructureUnavailable, "injected failure")
	}
	return nil
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func ttlDeadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Set implements backend.Store.
func (m *MockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return err
	}

	m.kv[key] = kvEntry{value: append([]byte(nil), value...), expiresAt: ttlDeadline(ttl)}
	return nil
}

// Get implements backend.Store.
func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return nil, err
	}

	entry, ok := m.kv[key]
	if !ok || expired(entry.expiresAt) {
		delete(m.kv, key)
		return nil, errors.Wrap(errors.ErrNotFound, "key %q", key)
	}
	return append([]byte(nil), entry.value...), nil
}

// Delete implements backend.Store.
func (m *MockStore) Delete(ctx context.Context, keys ...string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		if _, ok := m.kv[key]; ok {
			delete(m.kv, key)
			removed++
		}
		if _, ok := m.lists[key]; ok {
			delete(m.lists, key)
			removed++
		}
		if _, ok := m.hashes[key]; ok {
			delete(m.hashes, key)
			removed++
		}
	}
	return removed, nil
}

// ListAppend implements backend.Store.
func (m *MockStore) ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return err
	}

	entry, ok := m.lists[key]
	if !ok || expired(entry.expiresAt) {
		entry = &listEntry{}
		m.lists[key] = entry
	}
	entry.values = append(entry.values, append([]byte(nil), value...))
	entry.expiresAt = ttlDeadline(ttl)
	return nil
}

// ListRange implements backend.Store.
func (m *MockStore) ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return nil, err
	}

	entry, ok := m.lists[key]
	if !ok || expired(entry.expiresAt) {
		delete(m.lists, key)
		return [][]byte{}, nil
	}

	n := len(entry.values)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for _, v := range entry.values[start : stop+1] {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

// ListLen implements backend.Store.
func (m *MockStore) ListLen(ctx context.Context, key string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return 0, err
	}

	entry, ok := m.lists[key]
	if !ok || expired(entry.expiresAt) {
		return 0, nil
	}
	return len(entry.values), nil
}

// HashSet implements backend.Store.
func (m *MockStore) HashSet(ctx context.Context, key, field string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return err
	}

	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string][]byte)
		m.hashes[key] = hash
	}
	hash[field] = append([]byte(nil), value...)
	return nil
}

// HashGet implements backend.Store.
func (m *MockStore) HashGet(ctx context.Context, key, field string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return nil, err
	}

	hash, ok := m.hashes[key]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "hash %q", key)
	}
	value, ok := hash[field]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "hash %q field %q", key, field)
	}
	return append([]byte(nil), value...), nil
}

// VectorUpsert implements backend.Store.
func (m *MockStore) VectorUpsert(ctx context.Context, namespace string, record backend.VectorRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return err
	}

	ns, ok := m.vectors[namespace]
	if !ok {
		ns = make(map[string]vectorEntry)
		m.vectors[namespace] = ns
	}
	ns[record.ID] = vectorEntry{record: record, expiresAt: ttlDeadline(record.TTL)}
	return nil
}

// VectorSearch implements backend.Store.
func (m *MockStore) VectorSearch(ctx context.Context, namespace string, query []float32, topK int, filters map[string]string) ([]backend.VectorHit, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return nil, err
	}

	ns := m.vectors[namespace]
	hits := make([]backend.VectorHit, 0, len(ns))
	for id, entry := range ns {
		if expired(entry.expiresAt) {
			delete(ns, id)
			continue
		}
		if !matchesFilters(entry.record.Metadata, filters) {
			continue
		}
		hits = append(hits, backend.VectorHit{
			Record:     entry.record,
			Similarity: cosineSimilarity(query, entry.record.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// VectorClear implements backend.Store.
func (m *MockStore) VectorClear(ctx context.Context, namespace string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.checkFailure(); err != nil {
		return 0, err
	}

	removed := len(m.vectors[namespace])
	delete(m.vectors, namespace)
	return removed, nil
}

// Ping implements backend.Store.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.checkFailure()
}

// Close implements backend.Store.
func (m *MockStore) Close() error {
	return nil
}

func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Statically assert that MockStore satisfies the Store interface.
var _ backend.Store = (*MockStore)(nil)
