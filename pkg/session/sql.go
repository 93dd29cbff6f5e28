package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// SQLStore keeps sessions in a database/sql table. Expiry is stored as
// unix seconds and compared against a time supplied by the store, so the
// same queries work on every dialect:
//
//	CREATE TABLE smarthttp_sessions (
//	    id         VARCHAR(64) PRIMARY KEY,
//	    data       BYTEA NOT NULL,
//	    expires_at BIGINT NOT NULL,
//	    updated_at BIGINT NOT NULL
//	);
type SQLStore struct {
	db              *sql.DB
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	now             func() time.Time
	closed          atomic.Bool
	done            chan struct{}
}

// SQLDialect selects placeholder and upsert syntax.
type SQLDialect int

const (
	// DialectPostgreSQL uses $1, $2 placeholders.
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses ? placeholders.
	DialectMySQL
	// DialectSQLite uses ? placeholders.
	DialectSQLite
)

func (d SQLDialect) String() string {
	switch d {
	case DialectPostgreSQL:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	}
	return fmt.Sprintf("SQLDialect(%d)", int(d))
}

// SQLStoreOption configures an SQLStore.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithSQLTableName sets the table name. Default: "smarthttp_sessions".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect. Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// WithSQLCleanupInterval sets how often expired rows are deleted.
// Default: 5 minutes.
func WithSQLCleanupInterval(d time.Duration) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithSQLClock replaces time.Now, for tests.
func WithSQLClock(now func() time.Time) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.now = now
	}
}

// NewSQLStore creates a store over db and starts its cleanup loop. The
// store does not own db and never closes it.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName:       "smarthttp_sessions",
		dialect:         DialectPostgreSQL,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &SQLStore{
		db:              db,
		tableName:       cfg.tableName,
		dialect:         cfg.dialect,
		cleanupInterval: cfg.cleanupInterval,
		now:             cfg.now,
		done:            make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// placeholder returns the n-th (1-based) bind parameter.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertQuery() string {
	switch s.dialect {
	case DialectMySQL:
		return fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				expires_at = VALUES(expires_at),
				updated_at = VALUES(updated_at)
		`, s.tableName)
	case DialectSQLite:
		return fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, s.tableName)
	default:
		return fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				expires_at = EXCLUDED.expires_at,
				updated_at = EXCLUDED.updated_at
		`, s.tableName)
	}
}

func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), sessionID, data, expiresAt.Unix(), s.now().Unix())
	return err
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s AND expires_at > %s`,
		s.tableName, s.placeholder(1), s.placeholder(2))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, s.now().Unix()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, sessionID)
	return err
}

func (s *SQLStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	query := fmt.Sprintf(`UPDATE %s SET expires_at = %s, updated_at = %s WHERE id = %s`,
		s.tableName, s.placeholder(1), s.placeholder(2), s.placeholder(3))
	_, err := s.db.ExecContext(ctx, query, expiresAt.Unix(), s.now().Unix(), sessionID)
	return err
}

// SaveAll writes every session in one transaction.
func (s *SQLStore) SaveAll(ctx context.Context, sessions map[string]SessionData) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if len(sessions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().Unix()
	for id, sd := range sessions {
		if _, err := stmt.ExecContext(ctx, id, sd.Data, sd.ExpiresAt.Unix(), now); err != nil {
			return fmt.Errorf("session: save %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close stops the cleanup loop. The database stays open.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	return nil
}

func (s *SQLStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.Cleanup(ctx)
			cancel()
		case <-s.done:
			return
		}
	}
}

// Cleanup deletes expired rows and returns how many were removed.
func (s *SQLStore) Cleanup(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, s.tableName, s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateTable creates the session table and its expiry index if missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	dataType, intType := "BYTEA", "BIGINT"
	switch s.dialect {
	case DialectMySQL:
		dataType = "BLOB"
	case DialectSQLite:
		dataType, intType = "BLOB", "INTEGER"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			data %s NOT NULL,
			expires_at %s NOT NULL,
			updated_at %s NOT NULL
		)
	`, s.tableName, dataType, intType, intType)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}

	index := fmt.Sprintf("idx_%s_expires", strings.ReplaceAll(s.tableName, ".", "_"))
	if s.dialect == DialectMySQL {
		// no IF NOT EXISTS for indexes; an existing index is fine
		s.db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX %s ON %s(expires_at)`, index, s.tableName))
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(expires_at)`, index, s.tableName))
	return err
}
