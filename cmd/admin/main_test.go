package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	persistlog "kingdomkeep.app/internal/persistence/log"
	"kingdomkeep.app/internal/persistence/snapshot"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

func TestSummarize(t *testing.T) {
	k := kingdom.New(catalogs.Defaults(), tuning.Defaults(), kingdom.NewRand(1), time.UnixMilli(1_700_000_000_000))
	doc := k.Export(time.UnixMilli(1_700_000_000_000))
	got := summarize(doc)
	for _, want := range []string{"version=1", "status=not started", "gold=25.0", "buildings=1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary %q missing %q", got, want)
		}
	}
}

func TestCheckDocument_MigratesLegacy(t *testing.T) {
	legacy := []byte(`{
	  "resources":{"gold":40,"wood":3,"stone":1,"determination":0},
	  "buildings":[{"id":"c","typeId":"castle","x":2,"y":4,"hp":100,"maxHp":100,"level":1,"lastProduced":0}],
	  "buffs":[],
	  "raid":{"isActive":false,"wave":2,"enemyCount":0,"timeToNextRaid":30,"totalTimeToNextRaid":83,"savages":[]},
	  "clickMultiplier":1,
	  "gameStarted":true,"gameWon":false,"gameLost":false,
	  "lastUpdate":1700000000000
	}`)
	path := filepath.Join(t.TempDir(), "legacy.json")
	if err := os.WriteFile(path, legacy, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, applied, err := readDocument(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, more, err := checkDocument(t.TempDir(), doc)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	applied = append(applied, more...)
	if len(applied) == 0 {
		t.Fatalf("expected migrations for a legacy document")
	}
	if out.Header.Version != snapshot.Version || out.LastUpdate != 1_700_000_000_000 {
		t.Fatalf("header=%+v last=%d", out.Header, out.LastUpdate)
	}
	if out.Resources.Gold != 40 || out.Raid.Wave != 2 {
		t.Fatalf("doc: %+v", out)
	}
	if len(out.Buffs) == 0 {
		t.Fatalf("buff list should be filled from the catalog")
	}
}

func TestTailJournal(t *testing.T) {
	dir := t.TempDir()
	j := persistlog.NewJournal(dir)
	base := time.UnixMilli(1_700_000_000_000)
	kinds := []kingdom.LogKind{kingdom.LogRaidStart, kingdom.LogRaidEnd, kingdom.LogRaidStart, kingdom.LogRaidEnd, kingdom.LogVictory}
	for i, k := range kinds {
		if err := j.WriteEvent(kingdom.LogEvent{At: base.Add(time.Duration(i) * time.Second), Kind: k, Text: string(k)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	all, err := tailJournal(dir, "", 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("all: n=%d err=%v", len(all), err)
	}
	last, _ := tailJournal(dir, "", 2)
	if len(last) != 2 || last[1].Kind != kingdom.LogVictory {
		t.Fatalf("last: %+v", last)
	}
	ends, _ := tailJournal(dir, kingdom.LogRaidEnd, 0)
	if len(ends) != 2 {
		t.Fatalf("raid ends: %+v", ends)
	}
}
