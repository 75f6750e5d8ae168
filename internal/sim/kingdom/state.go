package kingdom

import (
	"time"

	"github.com/google/uuid"

	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/tuning"
)

// OriginID is the instance id of the building created with every new kingdom.
const OriginID = "main"

type State struct {
	Resources       catalogs.Resources `json:"resources"`
	Buildings       []Building         `json:"buildings"`
	Buffs           []Buff             `json:"buffs"`
	Raid            RaidState          `json:"raid"`
	ClickMultiplier float64            `json:"click_multiplier"`
	GameTime        int64              `json:"game_time"`
	Started         bool               `json:"started"`
	Won             bool               `json:"won"`
	Lost            bool               `json:"lost"`
	LastUpdate      time.Time          `json:"last_update"`
}

// Building is a placed instance. X is the grid column, Y the row.
type Building struct {
	ID             string    `json:"id"`
	TypeID         string    `json:"type_id"`
	HP             float64   `json:"hp"`
	MaxHP          float64   `json:"max_hp"`
	X              int       `json:"x"`
	Y              int       `json:"y"`
	Level          int       `json:"level"`
	LastProduction time.Time `json:"last_production"`
}

func (b Building) Alive() bool   { return b.HP > 0 }
func (b Building) Damaged() bool { return b.HP > 0 && b.HP < b.MaxHP }

type Buff struct {
	ID        string `json:"id"`
	Purchased bool   `json:"purchased"`
}

type RaidState struct {
	Active              bool    `json:"active"`
	Wave                int     `json:"wave"`
	EnemyCount          int     `json:"enemy_count"`
	TimeToNextRaid      float64 `json:"time_to_next_raid"`
	TotalTimeToNextRaid float64 `json:"total_time_to_next_raid"`
	RaidTimeLeft        float64 `json:"raid_time_left"`
	RaidDuration        float64 `json:"raid_duration"`
	// EnemiesRemaining is informational; see tuning.Raid.RewardBasis.
	EnemiesRemaining int      `json:"enemies_remaining"`
	Savages          []Savage `json:"savages"`

	StartedAt   time.Time `json:"started_at"`
	Attacks     int       `json:"attacks"`
	DamageDealt float64   `json:"damage_dealt"`
	GoldStolen  float64   `json:"gold_stolen"`
}

type Savage struct {
	ID           int       `json:"id"`
	NextAttackAt time.Time `json:"next_attack_at"`
	AttackCount  int       `json:"attack_count"`
}

// Kingdom owns one State and every rule that mutates it. It is not safe for
// concurrent use; the engine serializes all access on its loop goroutine.
type Kingdom struct {
	cats *catalogs.Catalogs
	tune tuning.Tuning
	rng  Rand
	ids  func() string

	state State

	effects []Effect
	logs    []LogEvent
}

type Option func(*Kingdom)

// WithIDs replaces the building id generator (uuid by default).
func WithIDs(next func() string) Option {
	return func(k *Kingdom) { k.ids = next }
}

func New(cats *catalogs.Catalogs, tune tuning.Tuning, rng Rand, now time.Time, opts ...Option) *Kingdom {
	k := &Kingdom{
		cats: cats,
		tune: tune,
		rng:  rng,
		ids:  func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(k)
	}
	k.state = k.initialState(now)
	return k
}

func (k *Kingdom) initialState(now time.Time) State {
	origin := k.cats.Buildings.Origin()
	x, y := k.tune.OriginCell()

	buffs := make([]Buff, 0, len(k.cats.Buffs.IDs))
	for _, id := range k.cats.Buffs.IDs {
		buffs = append(buffs, Buff{ID: id})
	}

	countdown := float64(k.tune.InitialRaidCountdown)
	return State{
		Resources: k.tune.StartingResources,
		Buildings: []Building{{
			ID:             OriginID,
			TypeID:         origin.ID,
			HP:             origin.MaxHP,
			MaxHP:          origin.MaxHP,
			X:              x,
			Y:              y,
			Level:          1,
			LastProduction: now,
		}},
		Buffs: buffs,
		Raid: RaidState{
			TimeToNextRaid:      countdown,
			TotalTimeToNextRaid: countdown,
			RaidDuration:        float64(k.tune.InitialRaidDuration),
			Savages:             []Savage{},
		},
		ClickMultiplier: k.tune.ClickMultiplier,
		LastUpdate:      now,
	}
}

func (k *Kingdom) Catalogs() *catalogs.Catalogs { return k.cats }
func (k *Kingdom) Tuning() tuning.Tuning        { return k.tune }

// Snapshot returns a deep copy that observers may keep.
func (k *Kingdom) Snapshot() State {
	return k.state.Clone()
}

func (s State) Clone() State {
	out := s
	out.Buildings = append([]Building(nil), s.Buildings...)
	out.Buffs = append([]Buff(nil), s.Buffs...)
	out.Raid.Savages = append([]Savage{}, s.Raid.Savages...)
	return out
}

// Finished reports whether the game reached victory or defeat.
func (k *Kingdom) Finished() bool { return k.state.Won || k.state.Lost }

func (k *Kingdom) Raiding() bool { return k.state.Raid.Active }

func (k *Kingdom) Started() bool { return k.state.Started }

// Start marks the kingdom as running. Offline progress only applies to
// kingdoms that were started before they were saved.
func (k *Kingdom) Start(now time.Time) {
	k.state.Started = true
	k.state.LastUpdate = now
}

// Touch records the wall-clock time of the latest sample.
func (k *Kingdom) Touch(now time.Time) { k.state.LastUpdate = now }

func (k *Kingdom) GameTime() int64 { return k.state.GameTime }

func (k *Kingdom) buildingAt(x, y int) (int, bool) {
	for i := range k.state.Buildings {
		if k.state.Buildings[i].X == x && k.state.Buildings[i].Y == y {
			return i, true
		}
	}
	return -1, false
}

func (k *Kingdom) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < k.tune.GridCols && y < k.tune.GridRows
}

func (k *Kingdom) isOrigin(b Building) bool {
	t, ok := k.cats.Buildings.Get(b.TypeID)
	return ok && t.Origin
}

func (k *Kingdom) allDestroyed() bool {
	for _, b := range k.state.Buildings {
		if b.Alive() {
			return false
		}
	}
	return true
}

func (k *Kingdom) aliveOfType(typeID string) int {
	n := 0
	for _, b := range k.state.Buildings {
		if b.TypeID == typeID && b.Alive() {
			n++
		}
	}
	return n
}
