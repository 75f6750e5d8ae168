package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"kingdomkeep.app/internal/persistence/snapshot"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/tuning"
)

func TestRun_FiveMinutes(t *testing.T) {
	var out bytes.Buffer
	res, err := run(runConfig{
		Cats:     catalogs.Defaults(),
		Tune:     tuning.Defaults(),
		Seed:     7,
		Duration: 5 * time.Minute,
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stats.SecondsProcessed != 300 || res.Stats.SecondsDropped != 0 {
		t.Fatalf("stats: %+v", res.Stats)
	}
	if res.State.Lost || res.State.GameTime != 300 {
		t.Fatalf("state: lost=%t game_time=%d", res.State.Lost, res.State.GameTime)
	}
	if res.Logs < 2 || !strings.Contains(out.String(), "raid_start") || !strings.Contains(out.String(), "raid_end") {
		t.Fatalf("logs=%d out=%s", res.Logs, out.String())
	}
}

func TestRun_DeterministicForSeed(t *testing.T) {
	cfg := runConfig{
		Cats:     catalogs.Defaults(),
		Tune:     tuning.Defaults(),
		Seed:     42,
		Duration: 4 * time.Minute,
		Clicks:   2,
	}
	var a, b bytes.Buffer
	ra, err := run(cfg, &a)
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	rb, err := run(cfg, &b)
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	ja, _ := snapshot.Marshal(ra.Doc)
	jb, _ := snapshot.Marshal(rb.Doc)
	if !bytes.Equal(ja, jb) || a.String() != b.String() {
		t.Fatalf("same seed diverged:\n%s\n%s", ja, jb)
	}
	if ra.State.Resources.Gold <= 25 {
		t.Fatalf("clicks should have earned gold: %+v", ra.State.Resources)
	}
}

func TestRun_ContinuesFromSave(t *testing.T) {
	first, err := run(runConfig{Cats: catalogs.Defaults(), Tune: tuning.Defaults(), Seed: 3, Duration: time.Minute}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	doc := first.Doc
	second, err := run(runConfig{Cats: catalogs.Defaults(), Tune: tuning.Defaults(), Seed: 3, Doc: &doc, Duration: time.Minute}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.State.GameTime != 120 {
		t.Fatalf("game time=%d want 120", second.State.GameTime)
	}
}
