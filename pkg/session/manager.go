package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/smarthttp/pkg/httpctx"
)

// Session is server-side state bound to one client and one host.
type Session struct {
	ID        string
	Host      string
	CreatedAt time.Time
	Params    *Params

	// guarded by Manager.mu
	expiresAt time.Time
}

// Config configures the session manager.
type Config struct {
	// Timeout is the sliding lifetime of a session. Default: 10 minutes.
	Timeout time.Duration

	// CleanupInterval is how often the reaper runs. Default: 1 minute.
	CleanupInterval time.Duration

	// AliasWindow is how long a replaced stale id keeps pointing at its
	// replacement. Default: 30 seconds.
	AliasWindow time.Duration

	// CookieName is the session cookie name. Default: "sid".
	CookieName string

	// IDLength is the number of letters in a session id. Default: 20.
	IDLength int

	// StoreTimeout bounds store calls made on behalf of a request.
	// Default: 5 seconds.
	StoreTimeout time.Duration
}

// DefaultConfig returns a Config with the defaults applied.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Minute,
		CleanupInterval: time.Minute,
		AliasWindow:     30 * time.Second,
		CookieName:      "sid",
		IDLength:        20,
		StoreTimeout:    5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.AliasWindow <= 0 {
		c.AliasWindow = d.AliasWindow
	}
	if c.CookieName == "" {
		c.CookieName = d.CookieName
	}
	if c.IDLength <= 0 {
		c.IDLength = d.IDLength
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
}

// ErrManagerStopped is returned by Resolve after Shutdown.
var ErrManagerStopped = errors.New("session: manager is stopped")

// alias remembers which session replaced a stale id, so concurrent
// requests carrying the same stale cookie land in the same new session.
type alias struct {
	id    string
	host  string
	until time.Time
}

// Manager owns the session table and its reaper.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	aliases  map[string]alias

	config Config
	store  Store
	logger *slog.Logger

	now   func() time.Time
	newID func(n int) (string, error)

	done    chan struct{}
	stopped bool

	// storeOps tracks fire-and-forget store writes.
	storeOps sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator replaces the random id source, for tests.
func WithIDGenerator(gen func(n int) (string, error)) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// NewManager creates a manager and starts the reaper. store may be nil.
func NewManager(store Store, config Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	config.applyDefaults()

	m := &Manager{
		sessions: make(map[string]*Session),
		aliases:  make(map[string]alias),
		config:   config,
		store:    store,
		logger:   logger.With("component", "session_manager"),
		now:      time.Now,
		newID:    RandomID,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.cleanupLoop()
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Resolve returns the session for a request presenting candidateID from
// host. A missing, unknown, expired, or foreign-host id yields a fresh
// session and created=true; the caller must then send Cookie(sess). A valid
// id has its expiry slid forward. The whole check-or-create runs under the
// manager lock.
func (m *Manager) Resolve(ctx context.Context, candidateID, host string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, false, ErrManagerStopped
	}
	now := m.now()

	if candidateID != "" {
		if s, ok := m.sessions[candidateID]; ok {
			if s.Host == host && now.Before(s.expiresAt) {
				m.slideLocked(s, now)
				return s, false, nil
			}
			if !now.Before(s.expiresAt) {
				m.removeLocked(candidateID)
			}
		}

		if a, ok := m.aliases[candidateID]; ok && a.host == host && now.Before(a.until) {
			if s, ok := m.sessions[a.id]; ok && now.Before(s.expiresAt) {
				m.slideLocked(s, now)
				return s, true, nil
			}
		}

		if _, live := m.sessions[candidateID]; !live && m.store != nil {
			if s := m.restoreLocked(ctx, candidateID, host, now); s != nil {
				return s, false, nil
			}
		}
	}

	s, err := m.createLocked(host, now)
	if err != nil {
		return nil, false, err
	}
	if candidateID != "" {
		m.aliases[candidateID] = alias{id: s.ID, host: host, until: now.Add(m.config.AliasWindow)}
	}
	m.logger.Debug("session created",
		"session_id", s.ID,
		"host", host,
		"replaced", candidateID != "")
	return s, true, nil
}

// slideLocked moves the expiry of s forward and pushes the new expiry to
// the store in the background.
func (m *Manager) slideLocked(s *Session, now time.Time) {
	s.expiresAt = now.Add(m.config.Timeout)
	if m.store == nil {
		return
	}
	id, expiresAt := s.ID, s.expiresAt
	m.storeOps.Add(1)
	go func() {
		defer m.storeOps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.config.StoreTimeout)
		defer cancel()
		if err := m.store.Touch(ctx, id, expiresAt); err != nil && !errors.Is(err, ErrStoreClosed) {
			m.logger.Warn("failed to touch session in store", "session_id", id, "error", err)
		}
	}()
}

func (m *Manager) createLocked(host string, now time.Time) (*Session, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id, err := m.newID(m.config.IDLength)
		if err != nil {
			return nil, fmt.Errorf("session: generate id: %w", err)
		}
		if _, taken := m.sessions[id]; taken {
			continue
		}
		s := &Session{
			ID:        id,
			Host:      host,
			CreatedAt: now,
			Params:    NewParams(nil),
			expiresAt: now.Add(m.config.Timeout),
		}
		m.sessions[id] = s
		return s, nil
	}
	return nil, errors.New("session: could not generate a unique id")
}

// restoreLocked brings a persisted session back into memory if it belongs
// to host and has not expired.
func (m *Manager) restoreLocked(ctx context.Context, id, host string, now time.Time) *Session {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	data, err := m.store.Load(ctx, id)
	if err != nil {
		m.logger.Warn("failed to load session from store", "session_id", id, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	ss, err := Deserialize(data)
	if err != nil {
		m.logger.Warn("discarding unreadable stored session", "session_id", id, "error", err)
		return nil
	}
	// Load already filters expired records; the store's expiry is the
	// one Touch keeps current.
	if ss.Host != host {
		return nil
	}

	s := &Session{
		ID:        ss.ID,
		Host:      ss.Host,
		CreatedAt: ss.CreatedAt,
		Params:    NewParams(ss.Params),
	}
	m.sessions[s.ID] = s
	m.slideLocked(s, now)
	m.logger.Debug("session restored from store", "session_id", s.ID)
	return s
}

// Cookie returns the Set-Cookie entry for s.
func (m *Manager) Cookie(s *Session) httpctx.Cookie {
	return httpctx.Cookie{
		Name:     m.config.CookieName,
		Value:    s.ID,
		Domain:   s.Host,
		Path:     "/",
		MaxAge:   int(m.config.Timeout / time.Second),
		HttpOnly: true,
	}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.config.CookieName
}

// Get returns a live session by id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !m.now().Before(s.expiresAt) {
		return nil
	}
	return s
}

// ExpiresAt returns the current expiry of s.
func (m *Manager) ExpiresAt(s *Session) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.expiresAt
}

// Remove drops a session from memory and the store.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) {
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)

	if m.store != nil {
		m.storeOps.Add(1)
		go func() {
			defer m.storeOps.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.config.StoreTimeout)
			defer cancel()
			if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrStoreClosed) {
				m.logger.Warn("failed to delete session from store", "session_id", id, "error", err)
			}
		}()
	}
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
			m.checkpoint(context.Background())
		case <-m.done:
			return
		}
	}
}

// cleanupExpired drops expired sessions and stale aliases.
func (m *Manager) cleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return 0
	}

	now := m.now()
	var expired []string
	for id, s := range m.sessions {
		if !now.Before(s.expiresAt) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.removeLocked(id)
	}
	for id, a := range m.aliases {
		if !now.Before(a.until) {
			delete(m.aliases, id)
		}
	}

	if len(expired) > 0 {
		m.logger.Debug("cleaned up expired sessions",
			"count", len(expired),
			"remaining", len(m.sessions))
	}
	return len(expired)
}

// snapshotLocked serializes every live session.
func (m *Manager) snapshotLocked(now time.Time) map[string]SessionData {
	out := make(map[string]SessionData, len(m.sessions))
	for id, s := range m.sessions {
		if !now.Before(s.expiresAt) {
			continue
		}
		data, err := Serialize(&SerializableSession{
			ID:        s.ID,
			Host:      s.Host,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.expiresAt,
			Params:    s.Params.Snapshot(),
		})
		if err != nil {
			m.logger.Warn("failed to serialize session", "session_id", id, "error", err)
			continue
		}
		out[id] = SessionData{Data: data, ExpiresAt: s.expiresAt}
	}
	return out
}

// checkpoint writes every live session to the store so a crash loses at
// most one cleanup interval of changes. It returns the number saved.
func (m *Manager) checkpoint(ctx context.Context) int {
	m.mu.Lock()
	if m.stopped || m.store == nil {
		m.mu.Unlock()
		return 0
	}
	toSave := m.snapshotLocked(m.now())
	m.mu.Unlock()

	saved := 0
	for id, sd := range toSave {
		sctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
		err := m.store.Save(sctx, id, sd.Data, sd.ExpiresAt)
		cancel()
		if err != nil {
			if !errors.Is(err, ErrStoreClosed) {
				m.logger.Warn("failed to checkpoint session", "session_id", id, "error", err)
			}
			continue
		}
		saved++
	}
	if saved > 0 {
		m.logger.Debug("checkpointed sessions", "count", saved)
	}
	return saved
}

// Shutdown stops the reaper and saves every live session to the store.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.done)

	var toSave map[string]SessionData
	if m.store != nil {
		toSave = m.snapshotLocked(m.now())
	}
	m.mu.Unlock()
	m.storeOps.Wait()

	if len(toSave) > 0 {
		if err := m.store.SaveAll(ctx, toSave); err != nil {
			m.logger.Warn("failed to persist sessions on shutdown",
				"error", err,
				"count", len(toSave))
			return err
		}
		m.logger.Info("persisted sessions on shutdown", "count", len(toSave))
	}
	return nil
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	hosts := make(map[string]struct{})
	for _, s := range m.sessions {
		hosts[s.Host] = struct{}{}
	}
	return ManagerStats{
		Total:   len(m.sessions),
		Hosts:   len(hosts),
		Aliases: len(m.aliases),
	}
}

// ManagerStats contains session manager statistics.
type ManagerStats struct {
	// Total is the number of sessions in memory, expired ones not yet
	// reaped included.
	Total int `json:"total"`

	// Hosts is the number of distinct hosts with sessions.
	Hosts int `json:"hosts"`

	// Aliases is the number of replaced ids still redirecting.
	Aliases int `json:"aliases"`
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomID returns n uppercase letters from crypto/rand.
func RandomID(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 234 = 9*26 keeps the distribution uniform
			if b >= 234 {
				continue
			}
			out = append(out, idAlphabet[b%26])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
