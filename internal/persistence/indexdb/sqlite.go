package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// MediaRecord is the last known resolution of one media file.
type MediaRecord struct {
	Name    string
	SHA1Hex string
	Path    string
	Found   bool
	Hits    int
	SeenAt  time.Time
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
	WriteErrors   uint64
}

// SQLiteIndex records media resolutions off the caller's goroutine. Writes
// are queued and dropped when the writer falls behind; the media cache on
// disk stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	// mu orders sends on ch against Close closing it.
	mu   sync.RWMutex
	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed    atomic.Bool
	dropped   atomic.Uint64
	writeErrs atomic.Uint64
}

type req struct {
	media MediaRecord
	// sync, when set, is closed once every earlier request has been written.
	sync chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS media (
			name TEXT PRIMARY KEY,
			sha1 TEXT NOT NULL,
			path TEXT NOT NULL,
			found INTEGER NOT NULL,
			hits INTEGER NOT NULL DEFAULT 1,
			seen_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_media_sha1 ON media(sha1);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordMedia queues rec. It never blocks and is a no-op after Close.
func (s *SQLiteIndex) RecordMedia(rec MediaRecord) {
	if s == nil {
		return
	}
	if rec.SeenAt.IsZero() {
		rec.SeenAt = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{media: rec}:
	default:
		s.dropped.Add(1)
	}
}

// Sync waits until every record queued before the call is written.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{sync: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Lookup(ctx context.Context, name string) (MediaRecord, bool, error) {
	var (
		rec    MediaRecord
		found  int
		seenAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, sha1, path, found, hits, seen_at FROM media WHERE name = ?`, name,
	).Scan(&rec.Name, &rec.SHA1Hex, &rec.Path, &found, &rec.Hits, &seenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaRecord{}, false, nil
	}
	if err != nil {
		return MediaRecord{}, false, err
	}
	rec.Found = found != 0
	rec.SeenAt, _ = time.Parse(time.RFC3339Nano, seenAt)
	return rec, true, nil
}

// Count returns how many media names are indexed and how many of them were
// present in the cache when last seen.
func (s *SQLiteIndex) Count(ctx context.Context) (total, found int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(found), 0) FROM media`,
	).Scan(&total, &found)
	return total, found, err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropped.Load(),
		WriteErrors:   s.writeErrs.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	upsert, err := s.db.Prepare(`INSERT INTO media(name,sha1,path,found,hits,seen_at) VALUES(?,?,?,?,1,?)
		ON CONFLICT(name) DO UPDATE SET
			sha1=excluded.sha1, path=excluded.path, found=excluded.found,
			hits=media.hits+1, seen_at=excluded.seen_at`)
	if err != nil {
		upsert = nil
	}
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
	}()

	var (
		tx      *sql.Tx
		pending int
	)
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(uint64(pending))
		}
		tx = nil
		pending = 0
	}

	for {
		var (
			r  req
			ok bool
		)
		// Batch whatever is already queued into one transaction.
		select {
		case r, ok = <-s.ch:
		default:
			commit()
			r, ok = <-s.ch
		}
		if !ok {
			commit()
			return
		}
		if r.sync != nil {
			commit()
			close(r.sync)
			continue
		}
		if upsert == nil {
			s.writeErrs.Add(1)
			continue
		}
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				s.writeErrs.Add(1)
				continue
			}
			tx = txx
		}
		m := r.media
		found := 0
		if m.Found {
			found = 1
		}
		if _, err := tx.Stmt(upsert).Exec(m.Name, m.SHA1Hex, m.Path, found, m.SeenAt.UTC().Format(time.RFC3339Nano)); err != nil {
			s.writeErrs.Add(1)
			continue
		}
		pending++
		if pending >= 1000 {
			commit()
		}
	}
}
