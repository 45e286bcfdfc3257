// Package postgres implements the backend.Store interface on PostgreSQL.
// KV, list, and hash data live in plain tables with expiry columns;
// vector similarity uses the pgvector extension with cosine distance.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// Config contains the configuration for the PostgreSQL store.
type Config struct {
	// DSN is the PostgreSQL connection string
	DSN string

	// TablePrefix is prepended to all table names (default "agentmem_")
	TablePrefix string

	// Dimensions is the vector column dimensionality
	Dimensions int
}

// PostgresStore implements backend.Store using PostgreSQL with pgvector.
type PostgresStore struct {
	db         *pgxpool.Pool
	prefix     string
	dimensions int
}

// NewPostgresStore connects to PostgreSQL and creates the backend tables
// if they don't exist.
func NewPostgresStore(ctx context.Context, config Config) (*PostgresStore, error) {
	if config.DSN == "" {
		return nil, errors.New("connection string cannot be empty")
	}
	if config.TablePrefix == "" {
		config.TablePrefix = "agentmem_"
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 1536
	}

	db, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{
		db:         db,
		prefix:     config.TablePrefix,
		dimensions: config.Dimensions,
	}

	if err := store.initializeTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.Debug("Initialized PostgreSQL backend store",
		"table_prefix", config.TablePrefix,
		"dimensions", config.Dimensions,
	)

	return store, nil
}

// DB returns the underlying connection pool (used for testing).
func (s *PostgresStore) DB() *pgxpool.Pool {
	return s.db
}

func (s *PostgresStore) table(name string) string {
	return s.prefix + name
}

// initializeTables creates the backend tables and indexes if they don't exist.
func (s *PostgresStore) initializeTables(ctx context.Context) error {
	var extensionExists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&extensionExists)
	if err != nil {
		return fmt.Errorf("failed to check for pgvector extension: %w", err)
	}

	if !extensionExists {
		if _, err = s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create pgvector extension: %w", err)
		}
		log.Info("Created pgvector extension")
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value BYTEA NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE
			)`, s.table("kv")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				key TEXT NOT NULL,
				value BYTEA NOT NULL
			)`, s.table("list_items")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_key_idx ON %s (key, id)`,
			s.table("list_items"), s.table("list_items")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				expires_at TIMESTAMP WITH TIME ZONE
			)`, s.table("list_meta")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT NOT NULL,
				field TEXT NOT NULL,
				value BYTEA NOT NULL,
				PRIMARY KEY (key, field)
			)`, s.table("hashes")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				namespace TEXT NOT NULL,
				id TEXT NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				embedding VECTOR(%d) NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (namespace, id)
			)`, s.table("vectors"), s.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_namespace_idx ON %s (namespace)`,
			s.table("vectors"), s.table("vectors")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
			s.table("vectors"), s.table("vectors")),
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func expiryValue(ttl time.Duration) interface{} {
	if ttl <= 0 {
		return nil
	}
	return time.Now().Add(ttl)
}

// vectorLiteral formats an embedding as a pgvector text literal.
func vectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Set implements backend.Store.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = $3`, s.table("kv")),
		key, value, expiryValue(ttl))
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Get implements backend.Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT value FROM %s
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, s.table("kv")),
		key).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "key %q", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// Delete implements backend.Store.
func (s *PostgresStore) Delete(ctx context.Context, keys ...string) (int, error) {
	removed := 0
	for _, key := range keys {
		tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table("kv")), key)
		if err != nil {
			return removed, fmt.Errorf("failed to delete key: %w", err)
		}
		removed += int(tag.RowsAffected())

		tag, err = s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table("list_items")), key)
		if err != nil {
			return removed, fmt.Errorf("failed to delete list: %w", err)
		}
		if tag.RowsAffected() > 0 {
			removed++
		}
		if _, err = s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table("list_meta")), key); err != nil {
			return removed, fmt.Errorf("failed to delete list meta: %w", err)
		}

		tag, err = s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table("hashes")), key)
		if err != nil {
			return removed, fmt.Errorf("failed to delete hash: %w", err)
		}
		if tag.RowsAffected() > 0 {
			removed++
		}
	}
	return removed, nil
}

// listLive reports whether the list under key has not expired, reaping
// it when it has.
func (s *PostgresStore) listLive(ctx context.Context, key string) (bool, error) {
	var expiresAt *time.Time
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT expires_at FROM %s WHERE key = $1", s.table("list_meta")), key).Scan(&expiresAt)
	if err == pgx.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read list meta: %w", err)
	}
	if expiresAt != nil && time.Now().After(*expiresAt) {
		if _, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table("list_items")), key); err != nil {
			return false, fmt.Errorf("failed to reap expired list: %w", err)
		}
		if _, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table("list_meta")), key); err != nil {
			return false, fmt.Errorf("failed to reap expired list meta: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// ListAppend implements backend.Store.
func (s *PostgresStore) ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.listLive(ctx, key); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (key, value) VALUES ($1, $2)", s.table("list_items")), key, value); err != nil {
		return fmt.Errorf("failed to append to list: %w", err)
	}

	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, expires_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = $2`, s.table("list_meta")),
		key, expiryValue(ttl))
	if err != nil {
		return fmt.Errorf("failed to refresh list ttl: %w", err)
	}
	return nil
}

// ListRange implements backend.Store.
func (s *PostgresStore) ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	live, err := s.listLive(ctx, key)
	if err != nil {
		return nil, err
	}
	if !live {
		return [][]byte{}, nil
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(
		"SELECT value FROM %s WHERE key = $1 ORDER BY id", s.table("list_items")), key)
	if err != nil {
		return nil, fmt.Errorf("failed to read list: %w", err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan list value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate list: %w", err)
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
func (s *PostgresStore) ListLen(ctx context.Context, key string) (int, error) {
	live, err := s.listLive(ctx, key)
	if err != nil {
		return 0, err
	}
	if !live {
		return 0, nil
	}

	var count int
	err = s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE key = $1", s.table("list_items")), key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count list: %w", err)
	}
	return count, nil
}

// HashSet implements backend.Store.
func (s *PostgresStore) HashSet(ctx context.Context, key, field string, value []byte) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, field, value) VALUES ($1, $2, $3)
		ON CONFLICT (key, field) DO UPDATE SET value = $3`, s.table("hashes")),
		key, field, value)
	if err != nil {
		return fmt.Errorf("failed to set hash field: %w", err)
	}
	return nil
}

// HashGet implements backend.Store.
func (s *PostgresStore) HashGet(ctx context.Context, key, field string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT value FROM %s WHERE key = $1 AND field = $2", s.table("hashes")),
		key, field).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "hash %q field %q", key, field)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash field: %w", err)
	}
	return value, nil
}

// VectorUpsert implements backend.Store.
func (s *PostgresStore) VectorUpsert(ctx context.Context, namespace string, record backend.VectorRecord) error {
	if len(record.Embedding) != s.dimensions {
		return errors.Wrap(errors.ErrValidation,
			"embedding has %d dimensions, store requires %d", len(record.Embedding), s.dimensions)
	}

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (namespace, id, content, metadata, embedding, expires_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
		ON CONFLICT (namespace, id) DO UPDATE
		SET content = $3, metadata = $4, embedding = $5::vector, expires_at = $6`, s.table("vectors")),
		namespace, record.ID, record.Content, metadata, vectorLiteral(record.Embedding), expiryValue(record.TTL))
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

// VectorSearch implements backend.Store.
func (s *PostgresStore) VectorSearch(ctx context.Context, namespace string, query []float32, topK int, filters map[string]string) ([]backend.VectorHit, error) {
	if topK <= 0 {
		topK = 10
	}

	sql := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE namespace = $2 AND (expires_at IS NULL OR expires_at > now())`, s.table("vectors"))
	args := []interface{}{vectorLiteral(query), namespace}

	if len(filters) > 0 {
		filterJSON, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filters: %w", err)
		}
		sql += fmt.Sprintf(" AND metadata @> $%d", len(args)+1)
		args = append(args, filterJSON)
	}

	sql += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args)+1)
	args = append(args, topK)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	var hits []backend.VectorHit
	for rows.Next() {
		var (
			id, content  string
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&id, &content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}

		metadata := make(map[string]string)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		hits = append(hits, backend.VectorHit{
			Record: backend.VectorRecord{
				ID:       id,
				Content:  content,
				Metadata: metadata,
			},
			Similarity: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vector hits: %w", err)
	}
	return hits, nil
}

// VectorClear implements backend.Store.
func (s *PostgresStore) VectorClear(ctx context.Context, namespace string) (int, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE namespace = $1", s.table("vectors")), namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to clear namespace: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping implements backend.Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close implements backend.Store.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// Statically assert that PostgresStore satisfies the Store interface.
var _ backend.Store = (*PostgresStore)(nil)
