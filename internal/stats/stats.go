// Package stats records clipguard usage statistics.
//
// The guard calls the recorder on its poll path, so increments are
// in-memory atomics; the SQLite backing store is only touched by a
// periodic flush and on close. Losing a flush interval of counts on a
// crash is acceptable for usage statistics.
package stats

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"clipguard/internal/wallet"
)

// Schema for the clipguard statistics store.
const schema = `
CREATE TABLE IF NOT EXISTS counters (
    name   TEXT PRIMARY KEY,
    value  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS copies (
    coin   TEXT PRIMARY KEY,
    count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS activations (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at_ns INTEGER NOT NULL,
    duration_sec  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activations_time ON activations(started_at_ns);
`

// Counter names in the counters table.
const (
	counterChecks      = "checks"
	counterSafePastes  = "safe_pastes"
	counterThreats     = "threats_blocked"
	counterActivations = "activations"
)

// Snapshot is a point-in-time view of all statistics.
type Snapshot struct {
	Checks         uint64            `json:"checks"`
	CopiesByCoin   map[string]uint64 `json:"copies_by_coin"`
	SafePastes     uint64            `json:"safe_pastes"`
	ThreatsBlocked uint64            `json:"threats_blocked"`
	Activations    uint64            `json:"activations"`
}

// TotalCopies sums detections across all coins.
func (s Snapshot) TotalCopies() uint64 {
	var total uint64
	for _, n := range s.CopiesByCoin {
		total += n
	}
	return total
}

// Coins returns the coin names in the snapshot, sorted.
func (s Snapshot) Coins() []string {
	coins := make([]string, 0, len(s.CopiesByCoin))
	for c := range s.CopiesByCoin {
		coins = append(coins, c)
	}
	sort.Strings(coins)
	return coins
}

// Store implements guard.Recorder over in-memory counters with optional
// SQLite persistence. A nil db (memory backend) keeps everything volatile.
type Store struct {
	mu sync.Mutex

	checks      uint64
	copies      map[wallet.Coin]uint64
	safePastes  uint64
	threats     uint64
	activations uint64

	// pendingActivations holds unflushed activation rows.
	pendingActivations []activation

	db *sql.DB

	flushEvery time.Duration
	stopFlush  chan struct{}
	flushDone  chan struct{}
}

type activation struct {
	startedAt time.Time
	duration  time.Duration
}

// OpenMemory returns a volatile in-memory store.
func OpenMemory() *Store {
	return &Store{copies: make(map[wallet.Coin]uint64)}
}

// Open opens or creates the SQLite statistics store at path, loads the
// persisted totals, and starts a background flush loop.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create stats directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open stats database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply stats schema: %w", err)
	}

	s := &Store{
		copies:     make(map[wallet.Coin]uint64),
		db:         db,
		flushEvery: 30 * time.Second,
		stopFlush:  make(chan struct{}),
		flushDone:  make(chan struct{}),
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	go s.flushLoop()
	return s, nil
}

// load reads persisted totals into memory.
func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT name, value FROM counters`)
	if err != nil {
		return fmt.Errorf("load counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value uint64
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scan counter: %w", err)
		}
		switch name {
		case counterChecks:
			s.checks = value
		case counterSafePastes:
			s.safePastes = value
		case counterThreats:
			s.threats = value
		case counterActivations:
			s.activations = value
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	coinRows, err := s.db.Query(`SELECT coin, count FROM copies`)
	if err != nil {
		return fmt.Errorf("load copies: %w", err)
	}
	defer coinRows.Close()

	for coinRows.Next() {
		var coin string
		var count uint64
		if err := coinRows.Scan(&coin, &count); err != nil {
			return fmt.Errorf("scan copies: %w", err)
		}
		s.copies[wallet.Coin(coin)] = count
	}
	return coinRows.Err()
}

// RecordCheck counts one processed clipboard change.
func (s *Store) RecordCheck() {
	s.mu.Lock()
	s.checks++
	s.mu.Unlock()
}

// RecordCopy counts one detected wallet address copy.
func (s *Store) RecordCopy(coin wallet.Coin) {
	s.mu.Lock()
	s.copies[coin]++
	s.mu.Unlock()
}

// RecordSafePaste counts one verified paste.
func (s *Store) RecordSafePaste() {
	s.mu.Lock()
	s.safePastes++
	s.mu.Unlock()
}

// RecordThreatBlocked counts one neutralized hijack attempt.
func (s *Store) RecordThreatBlocked() {
	s.mu.Lock()
	s.threats++
	s.mu.Unlock()
}

// RecordProtectionActivation counts one started session.
func (s *Store) RecordProtectionActivation(duration time.Duration) {
	s.mu.Lock()
	s.activations++
	s.pendingActivations = append(s.pendingActivations, activation{
		startedAt: time.Now(),
		duration:  duration,
	})
	s.mu.Unlock()
}

// Snapshot returns current totals.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCoin := make(map[string]uint64, len(s.copies))
	for coin, n := range s.copies {
		byCoin[string(coin)] = n
	}
	return Snapshot{
		Checks:         s.checks,
		CopiesByCoin:   byCoin,
		SafePastes:     s.safePastes,
		ThreatsBlocked: s.threats,
		Activations:    s.activations,
	}
}

// Flush persists the current totals. No-op for memory stores.
func (s *Store) Flush() error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	snap := Snapshot{
		Checks:         s.checks,
		SafePastes:     s.safePastes,
		ThreatsBlocked: s.threats,
		Activations:    s.activations,
	}
	byCoin := make(map[wallet.Coin]uint64, len(s.copies))
	for coin, n := range s.copies {
		byCoin[coin] = n
	}
	pending := s.pendingActivations
	s.pendingActivations = nil
	s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin stats flush: %w", err)
	}
	defer tx.Rollback()

	upsert := `INSERT INTO counters (name, value) VALUES (?, ?)
	           ON CONFLICT(name) DO UPDATE SET value = excluded.value`
	for name, value := range map[string]uint64{
		counterChecks:      snap.Checks,
		counterSafePastes:  snap.SafePastes,
		counterThreats:     snap.ThreatsBlocked,
		counterActivations: snap.Activations,
	} {
		if _, err := tx.Exec(upsert, name, value); err != nil {
			return fmt.Errorf("flush counter %s: %w", name, err)
		}
	}

	for coin, count := range byCoin {
		if _, err := tx.Exec(`INSERT INTO copies (coin, count) VALUES (?, ?)
		                      ON CONFLICT(coin) DO UPDATE SET count = excluded.count`,
			string(coin), count); err != nil {
			return fmt.Errorf("flush copies for %s: %w", coin, err)
		}
	}

	for _, a := range pending {
		if _, err := tx.Exec(`INSERT INTO activations (started_at_ns, duration_sec) VALUES (?, ?)`,
			a.startedAt.UnixNano(), int64(a.duration.Seconds())); err != nil {
			return fmt.Errorf("flush activation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats flush: %w", err)
	}
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.flushDone)

	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopFlush:
			return
		case <-ticker.C:
			// Flush errors are not fatal; the next interval retries.
			_ = s.Flush()
		}
	}
}

// Close flushes and closes the backing store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	close(s.stopFlush)
	<-s.flushDone

	flushErr := s.Flush()
	closeErr := s.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
