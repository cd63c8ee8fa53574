package banlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrInvalidAddress is returned for the zero netip.Addr.
var ErrInvalidAddress = errors.New("banlist: invalid address")

const schema = `
create table if not exists t_bans (
	addr          text    primary key,
	reason        text    not null default '',
	created_unixms integer not null,
	expires_unixms integer not null default 0
);`

// Entry is one banned address. A zero Expires never expires.
type Entry struct {
	Addr    netip.Addr
	Reason  string
	Created time.Time
	Expires time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !now.Before(e.Expires)
}

// Store keeps bans in SQLite and serves lookups from an in-memory copy, so
// the per-datagram check never touches the database.
type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[netip.Addr]Entry
}

// OpenMemory returns a store backed by a private in-memory database.
func OpenMemory(logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("unable to create database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return open(db, logger)
}

// Open returns a store persisted in the SQLite file at path, creating the
// file and its directory as needed.
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to create database file: %w", err)
	}
	db.SetMaxOpenConns(1)
	return open(db, logger)
}

func open(db *sql.DB, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	s := &Store{db: db, logger: logger, now: time.Now, cache: make(map[netip.Addr]Entry)}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize database: %w", err)
	}
	if err := s.load(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	entries, err := s.query(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.cache[e.Addr] = e
	}
	s.logger.WithFields(logrus.Fields{
		"function": "load",
		"count":    len(entries),
	}).Debug("Loaded ban list")
	return nil
}

func (s *Store) query(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"select addr, reason, created_unixms, expires_unixms from t_bans order by addr")
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			addr             string
			e                Entry
			created, expires int64
		)
		if err := rows.Scan(&addr, &e.Reason, &created, &expires); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		if e.Addr, err = netip.ParseAddr(addr); err != nil {
			return nil, fmt.Errorf("scan ban %q: %w", addr, err)
		}
		e.Created = time.UnixMilli(created)
		if expires != 0 {
			e.Expires = time.UnixMilli(expires)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ban blocks addr. A positive ttl makes the ban expire; zero bans forever.
// Banning an address again replaces its reason and expiry.
func (s *Store) Ban(ctx context.Context, addr netip.Addr, reason string, ttl time.Duration) error {
	if !addr.IsValid() {
		return ErrInvalidAddress
	}
	addr = addr.Unmap()
	now := s.now()
	e := Entry{Addr: addr, Reason: reason, Created: now}
	var expires int64
	if ttl > 0 {
		e.Expires = now.Add(ttl)
		expires = e.Expires.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`insert into t_bans
		(addr, reason, created_unixms, expires_unixms)
		values
		($1, $2, $3, $4)
		on conflict (addr) do
			update set
				reason = excluded.reason,
				created_unixms = excluded.created_unixms,
				expires_unixms = excluded.expires_unixms`,
		addr.String(), reason, now.UnixMilli(), expires)
	if err != nil {
		return fmt.Errorf("ban %s: %w", addr, err)
	}

	s.mu.Lock()
	s.cache[addr] = e
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"function": "Ban",
		"addr":     addr.String(),
		"reason":   reason,
		"ttl":      ttl.String(),
	}).Info("Address banned")
	return nil
}

// Unban lifts the ban on addr and reports whether one existed.
func (s *Store) Unban(ctx context.Context, addr netip.Addr) (bool, error) {
	addr = addr.Unmap()
	res, err := s.db.ExecContext(ctx, "delete from t_bans where addr = $1", addr.String())
	if err != nil {
		return false, fmt.Errorf("unban %s: %w", addr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unban %s: %w", addr, err)
	}

	s.mu.Lock()
	delete(s.cache, addr)
	s.mu.Unlock()
	return n > 0, nil
}

// IsBanned reports whether addr is under an unexpired ban.
func (s *Store) IsBanned(addr netip.Addr) bool {
	addr = addr.Unmap()
	s.mu.RLock()
	e, ok := s.cache[addr]
	s.mu.RUnlock()
	return ok && !e.expired(s.now())
}

// List returns the unexpired bans ordered by address.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.query(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := entries[:0]
	for _, e := range entries {
		if !e.expired(now) {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Addr.Less(live[j].Addr) })
	return live, nil
}

// Prune deletes expired bans and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		"delete from t_bans where expires_unixms != 0 and expires_unixms <= $1", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune bans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune bans: %w", err)
	}

	s.mu.Lock()
	for addr, e := range s.cache {
		if e.expired(now) {
			delete(s.cache, addr)
		}
	}
	s.mu.Unlock()
	return int(n), nil
}

// Blocked matches dispatch.BlockFunc: traffic from banned senders is dropped
// before it is decoded.
func (s *Store) Blocked(_ []byte, sender, _ netip.AddrPort) bool {
	return s.IsBanned(sender.Addr())
}

// Admit matches session.NewSessionHook: sessions for banned peers are
// vetoed.
func (s *Store) Admit(sess *session.Session) bool {
	if s.IsBanned(sess.Remote().Addr()) {
		s.logger.WithFields(logrus.Fields{
			"function": "Admit",
			"remote":   sess.Remote().String(),
		}).Debug("Vetoed session from banned address")
		return false
	}
	return true
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
