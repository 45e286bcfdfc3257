// Package embedded implements the backend.Store interface with a local
// bbolt database for KV/list/hash data and a chromem-go index for vector
// similarity search. It needs no external services, which makes it the
// default backend for development and single-node deployments.
package embedded

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	bolt "go.etcd.io/bbolt"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// Bucket names for the bbolt side of the store.
var (
	bucketKV     = []byte("kv")
	bucketLists  = []byte("lists")
	bucketHashes = []byte("hashes")
)

// expiresAtKey is the reserved vector metadata key holding the record
// deadline in RFC 3339 format.
const expiresAtKey = "_expires_at"

// Config contains the configuration for the embedded store.
type Config struct {
	// Path is the bbolt database file path
	Path string

	// VectorPath is the directory for persistent vector storage; empty
	// keeps the vector index in memory
	VectorPath string
}

// EmbeddedStore implements backend.Store over bbolt and chromem-go.
// bbolt has no native TTL, so entries carry a stored deadline and are
// reaped lazily on read.
type EmbeddedStore struct {
	db     *bolt.DB
	vdb    *chromem.DB
	colMu  sync.Mutex
	closed bool
}

type kvRecord struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type listMeta struct {
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewEmbeddedStore opens the bbolt database and vector index described
// by config and creates the required buckets.
func NewEmbeddedStore(config Config) (*EmbeddedStore, error) {
	if config.Path == "" {
		return nil, errors.New("embedded store path cannot be empty")
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketKV, bucketLists, bucketHashes} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	var vdb *chromem.DB
	if config.VectorPath != "" {
		vdb, err = chromem.NewPersistentDB(config.VectorPath, false)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	} else {
		vdb = chromem.NewDB()
	}

	log.Debug("Initialized embedded backend store",
		"path", config.Path,
		"vector_path", config.VectorPath,
	)

	return &EmbeddedStore{db: db, vdb: vdb}, nil
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func deadlineFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Set implements backend.Store.
func (s *EmbeddedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	record := kvRecord{Value: value, ExpiresAt: deadlineFor(ttl)}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal kv record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), data)
	})
}

// Get implements backend.Store.
func (s *EmbeddedStore) Get(ctx context.Context, key string) ([]byte, error) {
	var record kvRecord
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketKV).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal kv record: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !found || expired(record.ExpiresAt) {
		if found {
			// Lazy expiry: reap the dead entry
			s.db.Update(func(tx *bolt.Tx) error {
				return tx.Bucket(bucketKV).Delete([]byte(key))
			})
		}
		return nil, errors.Wrap(errors.ErrNotFound, "key %q", key)
	}

	return record.Value, nil
}

// Delete implements backend.Store.
func (s *EmbeddedStore) Delete(ctx context.Context, keys ...string) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		kv := tx.Bucket(bucketKV)
		lists := tx.Bucket(bucketLists)
		hashes := tx.Bucket(bucketHashes)

		for _, key := range keys {
			bk := []byte(key)
			if kv.Get(bk) != nil {
				if err := kv.Delete(bk); err != nil {
					return err
				}
				removed++
			}
			if lists.Bucket(bk) != nil {
				if err := lists.DeleteBucket(bk); err != nil {
					return err
				}
				removed++
			}
			if hashes.Bucket(bk) != nil {
				if err := hashes.DeleteBucket(bk); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// listMetaKey is the in-bucket key holding list expiry metadata. Element
// keys are 8-byte big-endian sequence numbers, so this never collides.
var listMetaKey = []byte("meta")

func elementKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'e'
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

// ListAppend implements backend.Store.
func (s *EmbeddedStore) ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		list, err := tx.Bucket(bucketLists).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}

		// Drop an expired list before appending to it
		if data := list.Get(listMetaKey); data != nil {
			var meta listMeta
			if err := json.Unmarshal(data, &meta); err == nil && expired(meta.ExpiresAt) {
				if err := tx.Bucket(bucketLists).DeleteBucket([]byte(key)); err != nil {
					return err
				}
				list, err = tx.Bucket(bucketLists).CreateBucketIfNotExists([]byte(key))
				if err != nil {
					return err
				}
			}
		}

		seq, err := list.NextSequence()
		if err != nil {
			return err
		}
		if err := list.Put(elementKey(seq), value); err != nil {
			return err
		}

		// TTL refreshes on every append (sliding lifetime)
		meta, err := json.Marshal(listMeta{ExpiresAt: deadlineFor(ttl)})
		if err != nil {
			return err
		}
		return list.Put(listMetaKey, meta)
	})
}

func (s *EmbeddedStore) readList(key string) ([][]byte, error) {
	var values [][]byte
	liveList := true

	err := s.db.View(func(tx *bolt.Tx) error {
		list := tx.Bucket(bucketLists).Bucket([]byte(key))
		if list == nil {
			return nil
		}

		if data := list.Get(listMetaKey); data != nil {
			var meta listMeta
			if err := json.Unmarshal(data, &meta); err == nil && expired(meta.ExpiresAt) {
				liveList = false
				return nil
			}
		}

		cursor := list.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if len(k) == 0 || k[0] != 'e' {
				continue
			}
			values = append(values, append([]byte(nil), v...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !liveList {
		s.db.Update(func(tx *bolt.Tx) error {
			if tx.Bucket(bucketLists).Bucket([]byte(key)) != nil {
				return tx.Bucket(bucketLists).DeleteBucket([]byte(key))
			}
			return nil
		})
		return nil, nil
	}
	return values, nil
}

// ListRange implements backend.Store.
func (s *EmbeddedStore) ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	values, err := s.readList(key)
	if err != nil {
		return nil, err
	}

	n := len(values)
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
	if n == 0 || start > stop {
		return [][]byte{}, nil
	}
	return values[start : stop+1], nil
}

// ListLen implements backend.Store.
func (s *EmbeddedStore) ListLen(ctx context.Context, key string) (int, error) {
	values, err := s.readList(key)
	if err != nil {
		return 0, err
	}
	return len(values), nil
}

// HashSet implements backend.Store.
func (s *EmbeddedStore) HashSet(ctx context.Context, key, field string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		hash, err := tx.Bucket(bucketHashes).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		return hash.Put([]byte(field), value)
	})
}

// HashGet implements backend.Store.
func (s *EmbeddedStore) HashGet(ctx context.Context, key, field string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		hash := tx.Bucket(bucketHashes).Bucket([]byte(key))
		if hash == nil {
			return nil
		}
		if v := hash.Get([]byte(field)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "hash %q field %q", key, field)
	}
	return value, nil
}

// collection returns the chromem collection for the namespace, creating
// it on first use.
func (s *EmbeddedStore) collection(namespace string) (*chromem.Collection, error) {
	s.colMu.Lock()
	defer s.colMu.Unlock()
	return s.vdb.GetOrCreateCollection(namespace, nil, nil)
}

// VectorUpsert implements backend.Store.
func (s *EmbeddedStore) VectorUpsert(ctx context.Context, namespace string, record backend.VectorRecord) error {
	col, err := s.collection(namespace)
	if err != nil {
		return fmt.Errorf("failed to open collection %q: %w", namespace, err)
	}

	metadata := make(map[string]string, len(record.Metadata)+1)
	for k, v := range record.Metadata {
		metadata[k] = v
	}
	if deadline := deadlineFor(record.TTL); !deadline.IsZero() {
		metadata[expiresAtKey] = deadline.Format(time.RFC3339)
	}

	doc := chromem.Document{
		ID:        record.ID,
		Content:   record.Content,
		Embedding: record.Embedding,
		Metadata:  metadata,
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

// VectorSearch implements backend.Store.
func (s *EmbeddedStore) VectorSearch(ctx context.Context, namespace string, query []float32, topK int, filters map[string]string) ([]backend.VectorHit, error) {
	col, err := s.collection(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", namespace, err)
	}

	// chromem rejects nResults larger than the collection, so clamp.
	// Over-fetch to leave room for expired records filtered below.
	count := col.Count()
	if count == 0 {
		return []backend.VectorHit{}, nil
	}
	fetch := topK * 2
	if fetch <= 0 || fetch > count {
		fetch = count
	}

	results, err := col.QueryEmbedding(ctx, query, fetch, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %q: %w", namespace, err)
	}

	hits := make([]backend.VectorHit, 0, len(results))
	now := time.Now()
	for _, result := range results {
		if raw, ok := result.Metadata[expiresAtKey]; ok {
			deadline, err := time.Parse(time.RFC3339, raw)
			if err == nil && now.After(deadline) {
				col.Delete(ctx, nil, nil, result.ID)
				continue
			}
		}

		metadata := make(map[string]string, len(result.Metadata))
		for k, v := range result.Metadata {
			if k == expiresAtKey {
				continue
			}
			metadata[k] = v
		}

		hits = append(hits, backend.VectorHit{
			Record: backend.VectorRecord{
				ID:        result.ID,
				Content:   result.Content,
				Embedding: result.Embedding,
				Metadata:  metadata,
			},
			Similarity: float64(result.Similarity),
		})
		if topK > 0 && len(hits) >= topK {
			break
		}
	}

	return hits, nil
}

// VectorClear implements backend.Store.
func (s *EmbeddedStore) VectorClear(ctx context.Context, namespace string) (int, error) {
	s.colMu.Lock()
	defer s.colMu.Unlock()

	col := s.vdb.GetCollection(namespace, nil)
	if col == nil {
		return 0, nil
	}
	removed := col.Count()
	if err := s.vdb.DeleteCollection(namespace); err != nil {
		return 0, fmt.Errorf("failed to delete collection %q: %w", namespace, err)
	}
	return removed, nil
}

// Ping implements backend.Store.
func (s *EmbeddedStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketKV) == nil {
			return errors.New("kv bucket missing")
		}
		return nil
	})
}

// Close implements backend.Store.
func (s *EmbeddedStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Statically assert that EmbeddedStore satisfies the Store interface.
var _ backend.Store = (*EmbeddedStore)(nil)
