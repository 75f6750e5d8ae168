package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// legacySave is the shape written by the browser build before raid timers,
// per-savage state and gameTime existed.
const legacySave = `{
  "resources": {"gold": 120.5, "wood": 3, "stone": 0, "determination": 0},
  "buildings": [
    {"id": "main", "typeId": "castle", "hp": 100, "maxHp": 100, "x": 2, "y": 4, "lastProduction": 1700000000000, "level": 1},
    {"id": "farm-1700000000500", "typeId": "farm", "hp": 12.25, "maxHp": 30, "x": 0, "y": 0, "lastProduction": 1700000000500}
  ],
  "buffs": [
    {"id": "knight1", "name": "x", "emoji": "y", "description": "z", "cost": 10, "effect": {"type": "damage_reduction", "value": 0.1}, "purchased": true}
  ],
  "raid": {"isActive": false, "wave": 3, "enemyCount": 4, "timeToNextRaid": 42, "totalTimeToNextRaid": 90},
  "clickMultiplier": 1,
  "gameStarted": true,
  "gameWon": false,
  "gameLost": false,
  "lastUpdate": 1700000100000
}`

func TestUnmarshal_MigratesLegacy(t *testing.T) {
	doc, applied, err := Unmarshal([]byte(legacySave))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.GameTime == nil || *doc.GameTime != 0 {
		t.Fatalf("gameTime: got=%v want=0", doc.GameTime)
	}
	if *doc.Raid.RaidTimeLeft != 0 || *doc.Raid.RaidDuration != 10 || *doc.Raid.EnemiesRemaining != 0 {
		t.Fatalf("raid timers: got left=%v dur=%v rem=%v", *doc.Raid.RaidTimeLeft, *doc.Raid.RaidDuration, *doc.Raid.EnemiesRemaining)
	}
	if doc.Raid.Savages == nil || len(doc.Raid.Savages) != 0 {
		t.Fatalf("savages: got=%v want=[]", doc.Raid.Savages)
	}
	if doc.Buildings[1].Level != 1 {
		t.Fatalf("missing level should default to 1: got=%d", doc.Buildings[1].Level)
	}
	if !doc.Buffs[0].Purchased || doc.Buffs[0].ID != "knight1" {
		t.Fatalf("buff: got=%+v", doc.Buffs[0])
	}
	if doc.Header.Version != Version {
		t.Fatalf("version: got=%d want=%d", doc.Header.Version, Version)
	}
	want := map[string]bool{"game_time": true, "raid_timers": true, "savages": true, "header": true}
	if len(applied) != len(want) {
		t.Fatalf("applied: got=%v", applied)
	}
	for _, a := range applied {
		if !want[a] {
			t.Fatalf("unexpected migration %q", a)
		}
	}
}

func TestUnmarshal_KeepsPresentFields(t *testing.T) {
	left, dur, rem, gt := 3.5, 9.0, 2, int64(77)
	in := DocumentV1{
		Resources: ResourcesV1{Gold: 1},
		Buildings: []BuildingV1{{ID: "main", TypeID: "castle", HP: 50, MaxHP: 100, X: 2, Y: 4, Level: 2}},
		Raid: RaidV1{
			IsActive: true, Wave: 1, EnemyCount: 3,
			RaidTimeLeft: &left, RaidDuration: &dur, EnemiesRemaining: &rem,
			Savages: []SavageV1{{ID: 0, NextAttackTime: 1234.5, AttackCount: 2}},
		},
		GameTime: &gt,
	}
	raw, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, applied, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out.Raid.RaidTimeLeft != 3.5 || *out.Raid.RaidDuration != 9 || *out.Raid.EnemiesRemaining != 2 || *out.GameTime != 77 {
		t.Fatalf("fields overwritten: got=%+v", out.Raid)
	}
	if len(out.Raid.Savages) != 1 || out.Raid.Savages[0].NextAttackTime != 1234.5 {
		t.Fatalf("savages: got=%+v", out.Raid.Savages)
	}
	if out.ClickMultiplier != 1 {
		t.Fatalf("click multiplier default: got=%v", out.ClickMultiplier)
	}
	if len(applied) != 1 || applied[0] != "header" {
		t.Fatalf("applied: got=%v", applied)
	}
}

func TestUnmarshal_RejectsCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"resources":`,
		"missing raid":     `{"resources":{"gold":1,"wood":1,"stone":1},"buildings":[]}`,
		"wrong type":       `{"resources":{"gold":"lots","wood":1,"stone":1},"buildings":[],"raid":{"isActive":false,"wave":0}}`,
		"building no type": `{"resources":{"gold":1,"wood":1,"stone":1},"buildings":[{"id":"a","hp":1,"maxHp":1,"x":0,"y":0}],"raid":{"isActive":false,"wave":0}}`,
		"negative gold":    `{"resources":{"gold":-500,"wood":1,"stone":1},"buildings":[],"raid":{"isActive":false,"wave":0}}`,
	}
	for name, raw := range cases {
		if _, _, err := Unmarshal([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "save.snap.zst")
	if _, _, err := ReadFile(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: got=%v", err)
	}

	doc, _, err := Unmarshal([]byte(legacySave))
	if err != nil {
		t.Fatal(err)
	}
	doc.Header.SavedAt = 42
	if err := WriteFile(path, doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, applied, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("re-read should need no migrations: got=%v", applied)
	}
	if got.Header.SavedAt != 42 || got.Resources.Gold != 120.5 || len(got.Buildings) != 2 || got.Raid.Wave != 3 {
		t.Fatalf("round trip mismatch: got=%+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
