package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed defaults/*.json
var defaultFS embed.FS

type Catalogs struct {
	Buildings BuildingCatalog
	Buffs     BuffCatalog
}

type BuildingCatalog struct {
	// IDs keeps file order; the UI lists build options in this order.
	IDs    []string
	Defs   map[string]BuildingType
	Digest string

	origin string
}

type BuildingType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Emoji       string    `json:"emoji,omitempty"`
	Description string    `json:"description,omitempty"`
	Origin      bool      `json:"origin,omitempty"`
	Cost        Resources `json:"cost"`
	MaxHP       float64   `json:"max_hp"`
	Production  Resources `json:"production"`
	// ProductionIntervalMs is the production period; 0 for non-producers.
	ProductionIntervalMs int64     `json:"production_interval_ms"`
	RepairRate           float64   `json:"repair_rate"`
	RepairCost           Resources `json:"repair_cost"`
}

func (t BuildingType) Produces() bool {
	return t.ProductionIntervalMs > 0 && !t.Production.IsZero()
}

type BuffCatalog struct {
	IDs    []string
	Defs   map[string]BuffDef
	Digest string
}

type EffectType string

const (
	DamageReduction EffectType = "damage_reduction"
	GoldBoost       EffectType = "gold_boost"
	RepairBoost     EffectType = "repair_boost"
	StealReduction  EffectType = "steal_reduction"
	ProductionBoost EffectType = "production_boost"
)

type BuffDef struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Emoji       string     `json:"emoji,omitempty"`
	Description string     `json:"description,omitempty"`
	Cost        float64    `json:"cost"`
	Effect      BuffEffect `json:"effect"`
}

type BuffEffect struct {
	Type  EffectType `json:"type"`
	Value float64    `json:"value"`
}

// Load reads buildings.json and buffs.json from configDir. A file that is
// absent falls back to the embedded default for that catalog.
func Load(configDir string) (*Catalogs, error) {
	b, err := readCatalogFile(configDir, "buildings.json")
	if err != nil {
		return nil, err
	}
	f, err := readCatalogFile(configDir, "buffs.json")
	if err != nil {
		return nil, err
	}
	return build(b, f)
}

// Defaults returns the catalogs compiled into the binary.
func Defaults() *Catalogs {
	c, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("embedded catalogs: %v", err))
	}
	return c
}

func readCatalogFile(configDir, name string) ([]byte, error) {
	if configDir != "" {
		raw, err := os.ReadFile(filepath.Join(configDir, name))
		if err == nil {
			return raw, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return defaultFS.ReadFile("defaults/" + name)
}

func build(buildingsRaw, buffsRaw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := c.Buildings.parse(buildingsRaw); err != nil {
		return nil, fmt.Errorf("buildings.json: %w", err)
	}
	if err := c.Buffs.parse(buffsRaw); err != nil {
		return nil, fmt.Errorf("buffs.json: %w", err)
	}
	return &c, nil
}

func (bc *BuildingCatalog) parse(raw []byte) error {
	var defs []BuildingType
	if err := json.Unmarshal(raw, &defs); err != nil {
		return err
	}
	bc.Defs = make(map[string]BuildingType, len(defs))
	bc.IDs = bc.IDs[:0]
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("building type missing id")
		}
		if _, dup := bc.Defs[d.ID]; dup {
			return fmt.Errorf("duplicate building type %q", d.ID)
		}
		if d.MaxHP <= 0 {
			return fmt.Errorf("building %s: max_hp must be > 0", d.ID)
		}
		if d.Cost.Negative() || d.Production.Negative() || d.RepairCost.Negative() || d.RepairRate < 0 {
			return fmt.Errorf("building %s: negative amounts", d.ID)
		}
		if !d.Production.IsZero() && d.ProductionIntervalMs <= 0 {
			return fmt.Errorf("building %s: production without production_interval_ms", d.ID)
		}
		if d.Origin {
			if bc.origin != "" {
				return fmt.Errorf("building %s: second origin building (already %s)", d.ID, bc.origin)
			}
			bc.origin = d.ID
		}
		bc.Defs[d.ID] = d
		bc.IDs = append(bc.IDs, d.ID)
	}
	if bc.origin == "" {
		return fmt.Errorf("no origin building type")
	}
	bc.Digest = sha256Hex(compact(raw))
	return nil
}

func (bc BuildingCatalog) Get(id string) (BuildingType, bool) {
	d, ok := bc.Defs[id]
	return d, ok
}

// Placeable reports whether id names a building the player may construct.
// The origin type is placed once at game creation and is never buildable.
func (bc BuildingCatalog) Placeable(id string) (BuildingType, bool) {
	d, ok := bc.Defs[id]
	if !ok || d.Origin {
		return BuildingType{}, false
	}
	return d, true
}

func (bc BuildingCatalog) Origin() BuildingType {
	return bc.Defs[bc.origin]
}

func (fc *BuffCatalog) parse(raw []byte) error {
	var defs []BuffDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return err
	}
	fc.Defs = make(map[string]BuffDef, len(defs))
	fc.IDs = fc.IDs[:0]
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("buff missing id")
		}
		if _, dup := fc.Defs[d.ID]; dup {
			return fmt.Errorf("duplicate buff %q", d.ID)
		}
		if d.Cost < 0 || d.Effect.Value < 0 {
			return fmt.Errorf("buff %s: negative amounts", d.ID)
		}
		switch d.Effect.Type {
		case DamageReduction, GoldBoost, RepairBoost, StealReduction, ProductionBoost:
		default:
			return fmt.Errorf("buff %s: unknown effect type %q", d.ID, d.Effect.Type)
		}
		fc.Defs[d.ID] = d
		fc.IDs = append(fc.IDs, d.ID)
	}
	fc.Digest = sha256Hex(compact(raw))
	return nil
}

func (fc BuffCatalog) Get(id string) (BuffDef, bool) {
	d, ok := fc.Defs[id]
	return d, ok
}

func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
