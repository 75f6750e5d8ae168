package kingdom

import (
	"math"
	"math/rand"
	"time"

	"kingdomkeep.app/internal/sim/catalogs"
)

// Rand is the single source of randomness for raids: wave size jitter,
// attack intervals, target selection and damage rolls all draw from it.
// *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

type EffectKind string

const (
	EffectProduction EffectKind = "production"
	EffectClick      EffectKind = "click"
	EffectTheft      EffectKind = "theft"
	EffectDamage     EffectKind = "damage"
	EffectRepair     EffectKind = "repair"
)

type Motion string

const (
	MotionToResource Motion = "to_resource"
	MotionUp         Motion = "up"
	MotionDown       Motion = "down"
)

// Effect is a transient visual cue. Building-anchored effects carry the
// building id and cell; theft is anchored to the resource indicator.
type Effect struct {
	Kind       EffectKind        `json:"kind"`
	BuildingID string            `json:"building_id,omitempty"`
	X          int               `json:"x"`
	Y          int               `json:"y"`
	Resource   catalogs.Resource `json:"resource,omitempty"`
	Amount     float64           `json:"amount"`
	Motion     Motion            `json:"motion"`
	Negative   bool              `json:"negative,omitempty"`
}

type LogKind string

const (
	LogRaidStart LogKind = "raid_start"
	LogRaidEnd   LogKind = "raid_end"
	LogReward    LogKind = "reward"
	LogVictory   LogKind = "victory"
	LogDefeat    LogKind = "defeat"
	LogOffline   LogKind = "offline"
)

type LogEvent struct {
	At       time.Time    `json:"at"`
	GameTime int64        `json:"game_time"`
	Kind     LogKind      `json:"kind"`
	Wave     int          `json:"wave,omitempty"`
	Text     string       `json:"text"`
	Raid     *RaidSummary `json:"raid,omitempty"`
}

// RaidSummary is attached to raid_end log events.
type RaidSummary struct {
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

func (k *Kingdom) emit(e Effect) {
	k.effects = append(k.effects, e)
}

func (k *Kingdom) logf(now time.Time, kind LogKind, wave int, text string) *LogEvent {
	k.logs = append(k.logs, LogEvent{
		At:       now,
		GameTime: k.state.GameTime,
		Kind:     kind,
		Wave:     wave,
		Text:     text,
	})
	return &k.logs[len(k.logs)-1]
}

// DrainEvents hands over everything emitted since the previous call.
func (k *Kingdom) DrainEvents() ([]Effect, []LogEvent) {
	effects, logs := k.effects, k.logs
	k.effects, k.logs = nil, nil
	return effects, logs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
