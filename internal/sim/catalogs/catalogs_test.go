package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Shape(t *testing.T) {
	c := Defaults()
	if got := len(c.Buildings.IDs); got != 18 {
		t.Fatalf("building types: got=%d want=18", got)
	}
	if got := len(c.Buffs.IDs); got != 12 {
		t.Fatalf("buffs: got=%d want=12", got)
	}
	origin := c.Buildings.Origin()
	if origin.ID != "castle" || origin.MaxHP != 100 {
		t.Fatalf("origin: got=%+v", origin)
	}
	if _, ok := c.Buildings.Placeable("castle"); ok {
		t.Fatalf("castle must not be placeable")
	}
	farm, ok := c.Buildings.Placeable("farm")
	if !ok || farm.Cost.Gold != 50 || farm.Production.Gold != 0.5 || !farm.Produces() {
		t.Fatalf("farm: got=%+v", farm)
	}
	forge, _ := c.Buildings.Get("forge")
	if forge.Produces() || forge.RepairRate != 2 {
		t.Fatalf("forge: got=%+v", forge)
	}
	hero, ok := c.Buffs.Get("hero")
	if !ok || hero.Cost != 100 || hero.Effect.Type != DamageReduction || hero.Effect.Value != 0.3 {
		t.Fatalf("hero: got=%+v", hero)
	}
	if c.Buildings.Digest == "" || c.Buffs.Digest == "" {
		t.Fatalf("missing digests")
	}
}

func TestLoad_OverrideAndFallback(t *testing.T) {
	dir := t.TempDir()
	buffs := `[{"id":"b1","name":"One","cost":3,"effect":{"type":"gold_boost","value":0.5}}]`
	if err := os.WriteFile(filepath.Join(dir, "buffs.json"), []byte(buffs), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Buffs.IDs) != 1 || c.Buffs.IDs[0] != "b1" {
		t.Fatalf("buff override: got=%v", c.Buffs.IDs)
	}
	if len(c.Buildings.IDs) != 18 {
		t.Fatalf("buildings should fall back to defaults: got=%d", len(c.Buildings.IDs))
	}
	if c.Buffs.Digest == Defaults().Buffs.Digest {
		t.Fatalf("digest should change with content")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown effect": `[{"id":"x","cost":1,"effect":{"type":"luck","value":1}}]`,
		"duplicate":      `[{"id":"x","cost":1,"effect":{"type":"gold_boost","value":1}},{"id":"x","cost":1,"effect":{"type":"gold_boost","value":1}}]`,
		"negative":       `[{"id":"x","cost":-1,"effect":{"type":"gold_boost","value":1}}]`,
	}
	for name, body := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "buffs.json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	dir := t.TempDir()
	noOrigin := `[{"id":"farm","name":"Farm","cost":{"gold":1},"max_hp":10,"production":{},"production_interval_ms":0,"repair_rate":0,"repair_cost":{}}]`
	if err := os.WriteFile(filepath.Join(dir, "buildings.json"), []byte(noOrigin), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing-origin error")
	}
}

func TestResources_CoversSub(t *testing.T) {
	have := Resources{Gold: 100, Wood: 5}
	cost := Resources{Gold: 50, Wood: 5}
	if !have.Covers(cost) {
		t.Fatalf("should cover")
	}
	have.Sub(cost)
	if have.Gold != 50 || have.Wood != 0 {
		t.Fatalf("sub: got=%+v", have)
	}
	if have.Covers(Resources{Stone: 1}) {
		t.Fatalf("should not cover stone")
	}
	f := Resources{Gold: 1.9, Wood: 2.2}.Floor()
	if f.Gold != 1 || f.Wood != 2 {
		t.Fatalf("floor: got=%+v", f)
	}
}
