package savestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kingdomkeep.app/internal/persistence/snapshot"
)

func sampleDoc() snapshot.DocumentV1 {
	gt := int64(321)
	left, dur, rem := 0.0, 10.0, 0
	return snapshot.DocumentV1{
		Header:    snapshot.Header{Version: snapshot.Version, SavedAt: 1700000000000},
		Resources: snapshot.ResourcesV1{Gold: 77.5, Wood: 3, Stone: 1},
		Buildings: []snapshot.BuildingV1{
			{ID: "main", TypeID: "castle", HP: 100, MaxHP: 100, X: 2, Y: 4, Level: 1},
			{ID: "b1", TypeID: "farm", HP: 12, MaxHP: 30, X: 0, Y: 0, Level: 2},
		},
		Buffs: []snapshot.BuffV1{{ID: "knight1", Purchased: true}},
		Raid: snapshot.RaidV1{
			Wave:             4,
			TimeToNextRaid:   30,
			RaidTimeLeft:     &left,
			RaidDuration:     &dur,
			EnemiesRemaining: &rem,
			Savages:          []snapshot.SavageV1{},
		},
		ClickMultiplier: 1,
		GameTime:        &gt,
		GameStarted:     true,
		LastUpdate:      1700000000000,
	}
}

func checkRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: got err=%v want ErrNotFound", err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("delete on empty store: %v", err)
	}

	doc := sampleDoc()
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc.Resources.Gold = 99
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Resources.Gold != 99 || len(got.Buildings) != 2 || got.Buildings[1].Level != 2 || *got.GameTime != 321 || got.Raid.Wave != 4 {
		t.Fatalf("loaded doc: %+v", got)
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: got err=%v want ErrNotFound", err)
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	defer s.Close()
	checkRoundTrip(t, s)
}

func TestFileStore_CorruptSave(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	if err := os.WriteFile(s.Path(), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load(context.Background())
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt save: got err=%v", err)
	}
}

func TestSQLStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "saves.sqlite")
	s, err := OpenSQL(context.Background(), DialectSQLite, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	checkRoundTrip(t, s)
}

func TestSQLStore_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves.sqlite")
	ctx := context.Background()
	s1, err := OpenSQL(ctx, DialectSQLite, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Save(ctx, sampleDoc()); err != nil {
		t.Fatalf("save: %v", err)
	}
	s1.Close()

	s2, err := OpenSQL(ctx, DialectSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Load(ctx); err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
}

func TestOpenSQLFromEnv(t *testing.T) {
	t.Setenv("DB_SQLITE_PATH", "")
	t.Setenv("DB_POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "")
	ctx := context.Background()

	t.Setenv("DB_DIALECT", "postgres")
	if _, err := OpenSQLFromEnv(ctx, ""); err == nil || !strings.Contains(err.Error(), "requires DB_POSTGRES_DSN or DATABASE_URL") {
		t.Fatalf("expected postgres DSN error, got %v", err)
	}

	t.Setenv("DB_DIALECT", "bogus")
	if _, err := OpenSQLFromEnv(ctx, ""); err == nil || !strings.Contains(err.Error(), "unsupported DB_DIALECT") {
		t.Fatalf("expected unsupported dialect error, got %v", err)
	}

	t.Setenv("DB_DIALECT", "")
	def := filepath.Join(t.TempDir(), "default.sqlite")
	s, err := OpenSQLFromEnv(ctx, def)
	if err != nil {
		t.Fatalf("default sqlite: %v", err)
	}
	defer s.Close()
	if s.Dialect() != DialectSQLite {
		t.Fatalf("dialect: got=%s", s.Dialect())
	}
	if _, err := os.Stat(def); err != nil {
		t.Fatalf("sqlite file not created: %v", err)
	}
}
