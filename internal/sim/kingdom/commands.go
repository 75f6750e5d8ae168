package kingdom

import (
	"math"
	"time"

	"kingdomkeep.app/internal/sim/catalogs"
)

// Rejection codes. Commands never return errors for ordinary rule
// violations; they return a Result with Accepted=false and one of these.
const (
	CodeGameOver       = "game_over"
	CodeOutOfBounds    = "out_of_bounds"
	CodeOriginCell     = "origin_cell"
	CodeOccupied       = "occupied"
	CodeUnknownType    = "unknown_type"
	CodeInsufficient   = "insufficient_resources"
	CodeNotFound       = "not_found"
	CodeProtected      = "protected"
	CodeDestroyed      = "destroyed"
	CodeNoDamage       = "no_damage"
	CodeMaxLevel       = "max_level"
	CodeAlreadyOwned   = "already_purchased"
	CodeUnknownCommand = "unknown_command"
)

type Result struct {
	Accepted   bool    `json:"accepted"`
	Code       string  `json:"code,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	BuildingID string  `json:"building_id,omitempty"`
}

func accepted() Result            { return Result{Accepted: true} }
func rejected(code string) Result { return Result{Code: code} }

// Command is a player intent queued for the engine loop.
type Command interface {
	Name() string
	Apply(k *Kingdom, now time.Time) Result
}

type Click struct{}

type Place struct {
	TypeID string
	X, Y   int
}

type Remove struct{ X, Y int }

type Repair struct{ X, Y int }

type RepairAll struct{}

type Upgrade struct{ X, Y int }

type BuyBuff struct{ ID string }

type Reset struct{}

func (Click) Name() string     { return "click" }
func (Place) Name() string     { return "place" }
func (Remove) Name() string    { return "remove" }
func (Repair) Name() string    { return "repair" }
func (RepairAll) Name() string { return "repair_all" }
func (Upgrade) Name() string   { return "upgrade" }
func (BuyBuff) Name() string   { return "buy_buff" }
func (Reset) Name() string     { return "reset" }

func (Click) Apply(k *Kingdom, _ time.Time) Result     { return k.Click() }
func (c Place) Apply(k *Kingdom, now time.Time) Result { return k.PlaceBuilding(c.TypeID, c.X, c.Y, now) }
func (c Remove) Apply(k *Kingdom, _ time.Time) Result  { return k.RemoveBuilding(c.X, c.Y) }
func (c Repair) Apply(k *Kingdom, _ time.Time) Result  { return k.RepairBuilding(c.X, c.Y) }
func (RepairAll) Apply(k *Kingdom, _ time.Time) Result { return k.RepairAll() }
func (c Upgrade) Apply(k *Kingdom, _ time.Time) Result { return k.UpgradeBuilding(c.X, c.Y) }
func (c BuyBuff) Apply(k *Kingdom, _ time.Time) Result { return k.BuyBuff(c.ID) }

func (Reset) Apply(k *Kingdom, now time.Time) Result {
	k.Reset(now)
	return accepted()
}

// Click grants floor(multiplier * (1 + gold boost)) gold while the origin
// building stands.
func (k *Kingdom) Click() Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	var origin *Building
	for i := range k.state.Buildings {
		if k.isOrigin(k.state.Buildings[i]) {
			origin = &k.state.Buildings[i]
			break
		}
	}
	if origin == nil {
		return rejected(CodeNotFound)
	}
	if !origin.Alive() {
		return rejected(CodeDestroyed)
	}
	amount := math.Floor(k.state.ClickMultiplier * (1 + k.GoldBoost()))
	k.state.Resources.Gold += amount
	k.emit(Effect{
		Kind:       EffectClick,
		BuildingID: origin.ID,
		X:          origin.X,
		Y:          origin.Y,
		Resource:   catalogs.Gold,
		Amount:     amount,
		Motion:     MotionUp,
	})
	return Result{Accepted: true, Amount: amount}
}

func (k *Kingdom) PlaceBuilding(typeID string, x, y int, now time.Time) Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	if !k.inBounds(x, y) {
		return rejected(CodeOutOfBounds)
	}
	if ox, oy := k.tune.OriginCell(); x == ox && y == oy {
		return rejected(CodeOriginCell)
	}
	if _, taken := k.buildingAt(x, y); taken {
		return rejected(CodeOccupied)
	}
	t, ok := k.cats.Buildings.Placeable(typeID)
	if !ok {
		return rejected(CodeUnknownType)
	}
	if !k.state.Resources.Covers(t.Cost) {
		return rejected(CodeInsufficient)
	}

	k.state.Resources.Sub(t.Cost)
	b := Building{
		ID:             k.ids(),
		TypeID:         t.ID,
		HP:             t.MaxHP,
		MaxHP:          t.MaxHP,
		X:              x,
		Y:              y,
		Level:          1,
		LastProduction: now,
	}
	k.state.Buildings = append(k.state.Buildings, b)
	return Result{Accepted: true, BuildingID: b.ID}
}

// RemoveBuilding demolishes the building at (x, y) without refund. The
// origin building cannot be removed.
func (k *Kingdom) RemoveBuilding(x, y int) Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	i, ok := k.buildingAt(x, y)
	if !ok {
		return rejected(CodeNotFound)
	}
	if k.isOrigin(k.state.Buildings[i]) {
		return rejected(CodeProtected)
	}
	k.state.Buildings = append(k.state.Buildings[:i], k.state.Buildings[i+1:]...)
	return accepted()
}

// RepairCost is the manual price to restore b to full HP:
// ceil(repair_cost * missing / divisor) per resource.
func (k *Kingdom) RepairCost(b Building) catalogs.Resources {
	var cost catalogs.Resources
	t, ok := k.cats.Buildings.Get(b.TypeID)
	if !ok {
		return cost
	}
	m := (b.MaxHP - b.HP) / k.tune.Upgrade.ManualRepairDivisor
	for _, res := range catalogs.ResourceKinds {
		cost.Set(res, math.Ceil(t.RepairCost.Get(res)*m))
	}
	return cost
}

// RepairBuilding fully restores a damaged building. Destroyed buildings
// stay destroyed.
func (k *Kingdom) RepairBuilding(x, y int) Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	i, ok := k.buildingAt(x, y)
	if !ok {
		return rejected(CodeNotFound)
	}
	b := &k.state.Buildings[i]
	if !b.Alive() {
		return rejected(CodeDestroyed)
	}
	if b.HP >= b.MaxHP {
		return rejected(CodeNoDamage)
	}
	cost := k.RepairCost(*b)
	if !k.state.Resources.Covers(cost) {
		return rejected(CodeInsufficient)
	}
	k.state.Resources.Sub(cost)
	b.HP = b.MaxHP
	return accepted()
}

// RepairAllCost aggregates RepairCost over every damaged, standing building.
func (k *Kingdom) RepairAllCost() (catalogs.Resources, int) {
	var total catalogs.Resources
	count := 0
	for _, b := range k.state.Buildings {
		if !b.Damaged() {
			continue
		}
		if _, ok := k.cats.Buildings.Get(b.TypeID); !ok {
			continue
		}
		c := k.RepairCost(b)
		for _, res := range catalogs.ResourceKinds {
			total.Add(res, c.Get(res))
		}
		count++
	}
	return total, count
}

func (k *Kingdom) CanRepairAll() bool {
	cost, count := k.RepairAllCost()
	return count > 0 && k.state.Resources.Covers(cost)
}

func (k *Kingdom) RepairAll() Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	cost, count := k.RepairAllCost()
	if count == 0 {
		return rejected(CodeNoDamage)
	}
	if !k.state.Resources.Covers(cost) {
		return rejected(CodeInsufficient)
	}
	k.state.Resources.Sub(cost)
	for i := range k.state.Buildings {
		b := &k.state.Buildings[i]
		if b.Damaged() {
			if _, ok := k.cats.Buildings.Get(b.TypeID); ok {
				b.HP = b.MaxHP
			}
		}
	}
	return Result{Accepted: true, Amount: float64(count)}
}

// UpgradeCost doubles per level: the primary (gold) component uses the
// type's gold cost or a default base, secondary components are halved.
func (k *Kingdom) UpgradeCost(b Building) catalogs.Resources {
	t, ok := k.cats.Buildings.Get(b.TypeID)
	if !ok {
		return catalogs.Resources{}
	}
	mult := math.Pow(2, float64(b.Level))
	primary := t.Cost.Gold
	if primary == 0 {
		primary = k.tune.Upgrade.DefaultPrimaryBase
	}
	sf := k.tune.Upgrade.SecondaryFactor
	return catalogs.Resources{
		Gold:  math.Floor(primary * mult),
		Wood:  math.Floor(t.Cost.Wood * mult * sf),
		Stone: math.Floor(t.Cost.Stone * mult * sf),
	}
}

func (k *Kingdom) upgradeCheck(x, y int) (int, catalogs.Resources, string) {
	i, ok := k.buildingAt(x, y)
	if !ok {
		return -1, catalogs.Resources{}, CodeNotFound
	}
	b := k.state.Buildings[i]
	if b.Level >= k.tune.Upgrade.MaxLevel {
		return i, catalogs.Resources{}, CodeMaxLevel
	}
	if !b.Alive() {
		return i, catalogs.Resources{}, CodeDestroyed
	}
	if _, ok := k.cats.Buildings.Get(b.TypeID); !ok {
		return i, catalogs.Resources{}, CodeUnknownType
	}
	cost := k.UpgradeCost(b)
	if !k.state.Resources.Covers(cost) {
		return i, cost, CodeInsufficient
	}
	return i, cost, ""
}

func (k *Kingdom) CanUpgrade(x, y int) bool {
	_, _, code := k.upgradeCheck(x, y)
	return code == ""
}

// UpgradeBuilding raises the level by one, grows max HP and heals fully.
func (k *Kingdom) UpgradeBuilding(x, y int) Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	i, cost, code := k.upgradeCheck(x, y)
	if code != "" {
		return rejected(code)
	}
	k.state.Resources.Sub(cost)
	b := &k.state.Buildings[i]
	b.Level++
	b.MaxHP += b.MaxHP * k.tune.Upgrade.HPGrowth
	b.HP = b.MaxHP
	return accepted()
}

func (k *Kingdom) CanBuild(typeID string) bool {
	t, ok := k.cats.Buildings.Placeable(typeID)
	return ok && k.state.Resources.Covers(t.Cost)
}

func (k *Kingdom) buffIndex(id string) int {
	for i := range k.state.Buffs {
		if k.state.Buffs[i].ID == id {
			return i
		}
	}
	return -1
}

func (k *Kingdom) CanBuyBuff(id string) bool {
	i := k.buffIndex(id)
	if i < 0 || k.state.Buffs[i].Purchased {
		return false
	}
	def, ok := k.cats.Buffs.Get(id)
	return ok && k.state.Resources.Determination >= def.Cost
}

// BuyBuff spends determination on a one-time permanent buff.
func (k *Kingdom) BuyBuff(id string) Result {
	if k.Finished() {
		return rejected(CodeGameOver)
	}
	i := k.buffIndex(id)
	def, ok := k.cats.Buffs.Get(id)
	if i < 0 || !ok {
		return rejected(CodeNotFound)
	}
	if k.state.Buffs[i].Purchased {
		return rejected(CodeAlreadyOwned)
	}
	if k.state.Resources.Determination < def.Cost {
		return rejected(CodeInsufficient)
	}
	k.state.Resources.Determination -= def.Cost
	k.state.Buffs[i].Purchased = true
	return accepted()
}

// Reset replaces the whole state with a fresh kingdom. The started flag is
// kept so a running engine continues with the new game.
func (k *Kingdom) Reset(now time.Time) {
	started := k.state.Started
	k.state = k.initialState(now)
	k.state.Started = started
	k.effects = nil
}
