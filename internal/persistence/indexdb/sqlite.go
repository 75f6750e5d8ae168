package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable record of finished raids. Writes
// go through a buffered queue drained by one goroutine; the simulation
// never waits on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan kingdom.RaidSummary
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRaidTotal    atomic.Uint64
	writtenRaidTotal atomic.Uint64
	writeErrTotal    atomic.Uint64
}

type Stats struct {
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
	DropRaidTotal    uint64 `json:"drop_raid_total"`
	WrittenRaidTotal uint64 `json:"written_raid_total"`
	WriteErrTotal    uint64 `json:"write_err_total"`
}

// RaidRow is one finished raid as stored in the ledger.
type RaidRow struct {
	ID            int64     `json:"id"`
	Wave          int       `json:"wave"`
	Enemies       int       `json:"enemies"`
	Duration      float64   `json:"duration"`
	Attacks       int       `json:"attacks"`
	DamageDealt   float64   `json:"damage_dealt"`
	GoldStolen    float64   `json:"gold_stolen"`
	Determination float64   `json:"determination"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
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
		ch: make(chan kingdom.RaidSummary, 1024),
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS raids (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wave INTEGER NOT NULL,
			enemies INTEGER NOT NULL,
			duration REAL NOT NULL,
			attacks INTEGER NOT NULL,
			damage_dealt REAL NOT NULL,
			gold_stolen REAL NOT NULL,
			determination REAL NOT NULL,
			started_at_ms INTEGER NOT NULL,
			ended_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_raids_wave ON raids(wave);`,
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
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRaid queues a finished raid. Drops when the writer falls behind;
// the journal remains the source of truth.
func (s *SQLiteIndex) RecordRaid(r kingdom.RaidSummary) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropRaidTotal.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropRaidTotal:    s.dropRaidTotal.Load(),
		WrittenRaidTotal: s.writtenRaidTotal.Load(),
		WriteErrTotal:    s.writeErrTotal.Load(),
	}
}

// UpsertCatalogs stores the catalogs and tuning the server runs with so
// ledger rows can be read against the balance that produced them.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cats.Buildings.Defs); len(b) > 0 {
		rows = append(rows, kv{name: "buildings", digest: cats.Buildings.Digest, json: b})
	}
	if b, _ := json.Marshal(cats.Buffs.Defs); len(b) > 0 {
		rows = append(rows, kv{name: "buffs", digest: cats.Buffs.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for name, or "" if absent.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

// RecentRaids returns up to limit raids, newest first.
func (s *SQLiteIndex) RecentRaids(ctx context.Context, limit int) ([]RaidRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, wave, enemies, duration, attacks, damage_dealt, gold_stolen,
		determination, started_at_ms, ended_at_ms FROM raids ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RaidRow
	for rows.Next() {
		var r RaidRow
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.Wave, &r.Enemies, &r.Duration, &r.Attacks, &r.DamageDealt,
			&r.GoldStolen, &r.Determination, &started, &ended); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.EndedAt = time.UnixMilli(ended).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	insert, err := s.db.Prepare(`INSERT INTO raids(wave,enemies,duration,attacks,damage_dealt,gold_stolen,
		determination,started_at_ms,ended_at_ms) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
			s.writeErrTotal.Add(1)
		}
		return
	}
	defer insert.Close()

	for r := range s.ch {
		_, err := insert.Exec(r.Wave, r.Enemies, r.Duration, r.Attacks, r.DamageDealt, r.GoldStolen,
			r.Determination, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli())
		if err != nil {
			s.writeErrTotal.Add(1)
			continue
		}
		s.writtenRaidTotal.Add(1)
	}
}
