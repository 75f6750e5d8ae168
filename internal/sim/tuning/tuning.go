package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kingdomkeep.app/internal/sim/catalogs"
)

type Tuning struct {
	SampleIntervalMs  int `yaml:"sample_interval_ms"`
	SaveIntervalMs    int `yaml:"save_interval_ms"`
	MaxCatchUpSeconds int `yaml:"max_catch_up_seconds"`

	OfflineMaxSeconds int64   `yaml:"offline_max_seconds"`
	OfflineEfficiency float64 `yaml:"offline_efficiency"`

	MaxWaves             int `yaml:"max_waves"`
	InitialRaidCountdown int `yaml:"initial_raid_countdown"`
	InitialRaidDuration  int `yaml:"initial_raid_duration"`

	GridRows int `yaml:"grid_rows"`
	GridCols int `yaml:"grid_cols"`

	StartingResources catalogs.Resources `yaml:"starting_resources"`
	ClickMultiplier   float64            `yaml:"click_multiplier"`
	LogCapacity       int                `yaml:"log_capacity"`

	Raid    Raid    `yaml:"raid"`
	Economy Economy `yaml:"economy"`
	Upgrade Upgrade `yaml:"upgrade"`
}

type Raid struct {
	EnemyBase         float64 `yaml:"enemy_base"`
	Growth            float64 `yaml:"growth"`
	GrowthJitter      float64 `yaml:"growth_jitter"`
	DurationPerEnemy  float64 `yaml:"duration_per_enemy"`
	DurationPad       int     `yaml:"duration_pad"`
	AttackIntervalMin int     `yaml:"attack_interval_min_ms"`
	AttackIntervalMax int     `yaml:"attack_interval_max_ms"`
	DamageMin         float64 `yaml:"damage_min"`
	DamageMax         float64 `yaml:"damage_max"`
	StealAmount       float64 `yaml:"steal_amount"`
	TowerReduction    float64 `yaml:"tower_reduction"`
	TowerTypeID       string  `yaml:"tower_type_id"`
	TempleTypeID      string  `yaml:"temple_type_id"`
	ReductionCap      float64 `yaml:"reduction_cap"`
	CountdownBase     float64 `yaml:"countdown_base"`
	CountdownLogScale float64 `yaml:"countdown_log_scale"`
	// RewardBasis selects how "defeated enemies" is counted when a raid ends.
	// "legacy" never decrements enemies_remaining during a raid, so temples
	// award nothing; "engaged" counts every savage that attacked at least once.
	RewardBasis string `yaml:"reward_basis"`
}

const (
	RewardLegacy  = "legacy"
	RewardEngaged = "engaged"
)

type Economy struct {
	LevelBonus          float64           `yaml:"level_bonus"`
	RepairMaterialPerHP float64           `yaml:"repair_material_per_hp"`
	RepairMaterial      catalogs.Resource `yaml:"repair_material"`
}

type Upgrade struct {
	MaxLevel           int     `yaml:"max_level"`
	HPGrowth           float64 `yaml:"hp_growth"`
	SecondaryFactor    float64 `yaml:"secondary_factor"`
	DefaultPrimaryBase float64 `yaml:"default_primary_base"`
	// ManualRepairDivisor scales the per-building manual repair price:
	// ceil(repair_cost * missing_hp / divisor).
	ManualRepairDivisor float64 `yaml:"manual_repair_divisor"`
}

func Defaults() Tuning {
	return Tuning{
		SampleIntervalMs:     100,
		SaveIntervalMs:       5000,
		MaxCatchUpSeconds:    10,
		OfflineMaxSeconds:    24 * 60 * 60,
		OfflineEfficiency:    0.7,
		MaxWaves:             99,
		InitialRaidCountdown: 60,
		InitialRaidDuration:  10,
		GridRows:             9,
		GridCols:             5,
		StartingResources:    catalogs.Resources{Gold: 25, Wood: 10, Stone: 5},
		ClickMultiplier:      1,
		LogCapacity:          20,
		Raid: Raid{
			EnemyBase:         3,
			Growth:            1.18,
			GrowthJitter:      0.07,
			DurationPerEnemy:  1.15,
			DurationPad:       3,
			AttackIntervalMin: 800,
			AttackIntervalMax: 1500,
			DamageMin:         0.5,
			DamageMax:         1.0,
			StealAmount:       5,
			TowerReduction:    0.05,
			TowerTypeID:       "tower",
			TempleTypeID:      "temple",
			ReductionCap:      0.9,
			CountdownBase:     60,
			CountdownLogScale: 15,
			RewardBasis:       RewardLegacy,
		},
		Economy: Economy{
			LevelBonus:          0.2,
			RepairMaterialPerHP: 0.1,
			RepairMaterial:      catalogs.Wood,
		},
		Upgrade: Upgrade{
			MaxLevel:            5,
			HPGrowth:            0.2,
			SecondaryFactor:     0.5,
			DefaultPrimaryBase:  50,
			ManualRepairDivisor: 10,
		},
	}
}

// Load overlays the YAML file at path on Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.SampleIntervalMs <= 0:
		return fmt.Errorf("sample_interval_ms must be > 0")
	case t.SaveIntervalMs <= 0:
		return fmt.Errorf("save_interval_ms must be > 0")
	case t.MaxCatchUpSeconds <= 0:
		return fmt.Errorf("max_catch_up_seconds must be > 0")
	case t.OfflineEfficiency < 0 || t.OfflineEfficiency > 1:
		return fmt.Errorf("offline_efficiency must be within [0,1]")
	case t.GridRows <= 0 || t.GridCols <= 0:
		return fmt.Errorf("grid must be non-empty")
	case t.MaxWaves <= 0:
		return fmt.Errorf("max_waves must be > 0")
	case t.Raid.AttackIntervalMin <= 0 || t.Raid.AttackIntervalMax < t.Raid.AttackIntervalMin:
		return fmt.Errorf("raid attack interval range invalid")
	case t.Raid.DamageMax < t.Raid.DamageMin:
		return fmt.Errorf("raid damage range invalid")
	case t.Raid.ReductionCap < 0 || t.Raid.ReductionCap >= 1:
		return fmt.Errorf("raid.reduction_cap must be within [0,1)")
	case t.Raid.RewardBasis != RewardLegacy && t.Raid.RewardBasis != RewardEngaged:
		return fmt.Errorf("raid.reward_basis must be %q or %q", RewardLegacy, RewardEngaged)
	case t.Upgrade.ManualRepairDivisor <= 0:
		return fmt.Errorf("upgrade.manual_repair_divisor must be > 0")
	case !knownResource(t.Economy.RepairMaterial):
		return fmt.Errorf("economy.repair_material %q is not a resource", t.Economy.RepairMaterial)
	}
	return nil
}

func knownResource(r catalogs.Resource) bool {
	for _, k := range catalogs.ResourceKinds {
		if r == k {
			return true
		}
	}
	return false
}

func (t Tuning) SampleInterval() time.Duration {
	return time.Duration(t.SampleIntervalMs) * time.Millisecond
}

func (t Tuning) SaveInterval() time.Duration {
	return time.Duration(t.SaveIntervalMs) * time.Millisecond
}

// OriginCell is the grid cell the origin building occupies: the center.
func (t Tuning) OriginCell() (x, y int) {
	return t.GridCols / 2, t.GridRows / 2
}
