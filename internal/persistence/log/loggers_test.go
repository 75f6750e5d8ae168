package log

import (
	"path/filepath"
	"testing"
	"time"

	"kingdomkeep.app/internal/sim/kingdom"
)

func TestJournal_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return clock }

	events := []kingdom.LogEvent{
		{At: clock, Kind: kingdom.LogRaidStart, Wave: 1, Text: "Wave 1! 3 savages attack!"},
		{At: clock, Kind: kingdom.LogRaidEnd, Wave: 1, Text: "Wave 1 repelled!", Raid: &kingdom.RaidSummary{Wave: 1, Enemies: 3, Attacks: 7}},
	}
	for _, ev := range events {
		if err := j.WriteEvent(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	if err := j.WriteEvent(kingdom.LogEvent{At: clock, Kind: kingdom.LogOffline, Text: "Away 3 min"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "journal", "*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("files: got=%v want 2", files)
	}

	var got []kingdom.LogEvent
	if err := ReadJournal(dir, func(ev kingdom.LogEvent) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("events: got=%d want=3", len(got))
	}
	if got[0].Kind != kingdom.LogRaidStart || got[2].Kind != kingdom.LogOffline {
		t.Fatalf("order: %v %v", got[0].Kind, got[2].Kind)
	}
	if got[1].Raid == nil || got[1].Raid.Attacks != 7 {
		t.Fatalf("raid summary lost: %+v", got[1])
	}
}

func TestJournal_ReopenSameHourAppends(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 2; i++ {
		j := NewJournal(dir)
		j.w.now = func() time.Time { return at }
		if err := j.WriteEvent(kingdom.LogEvent{Kind: kingdom.LogRaidStart, Wave: i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	var waves []int
	if err := ReadJournal(dir, func(ev kingdom.LogEvent) error {
		waves = append(waves, ev.Wave)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(waves) != 2 || waves[0] != 1 || waves[1] != 2 {
		t.Fatalf("waves: %v", waves)
	}
}
