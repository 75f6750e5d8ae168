package kingdom

import (
	"math"
	"time"

	"kingdomkeep.app/internal/sim/catalogs"
)

func (k *Kingdom) buffTotal(effect catalogs.EffectType) float64 {
	total := 0.0
	for _, b := range k.state.Buffs {
		if !b.Purchased {
			continue
		}
		def, ok := k.cats.Buffs.Get(b.ID)
		if !ok || def.Effect.Type != effect {
			continue
		}
		total += def.Effect.Value
	}
	return total
}

// DamageReduction combines purchased buffs with standing towers, capped.
func (k *Kingdom) DamageReduction() float64 {
	r := k.buffTotal(catalogs.DamageReduction) +
		float64(k.aliveOfType(k.tune.Raid.TowerTypeID))*k.tune.Raid.TowerReduction
	return math.Min(k.tune.Raid.ReductionCap, r)
}

func (k *Kingdom) StealReduction() float64 {
	return math.Min(k.tune.Raid.ReductionCap, k.buffTotal(catalogs.StealReduction))
}

func (k *Kingdom) GoldBoost() float64       { return k.buffTotal(catalogs.GoldBoost) }
func (k *Kingdom) RepairBoost() float64     { return k.buffTotal(catalogs.RepairBoost) }
func (k *Kingdom) ProductionBoost() float64 { return k.buffTotal(catalogs.ProductionBoost) }

func (k *Kingdom) levelBonus(b Building) float64 {
	return float64(b.Level-1) * k.tune.Economy.LevelBonus
}

// ApplyEconomySecond runs one whole second of production followed by
// automatic repair.
func (k *Kingdom) ApplyEconomySecond(now time.Time) {
	k.applyProduction(now)
	k.applyRepair(1)
}

func (k *Kingdom) applyProduction(now time.Time) {
	goldBoost := k.GoldBoost()
	prodBoost := k.ProductionBoost()

	for i := range k.state.Buildings {
		b := &k.state.Buildings[i]
		if !b.Alive() {
			continue
		}
		t, ok := k.cats.Buildings.Get(b.TypeID)
		if !ok || !t.Produces() {
			continue
		}
		lb := k.levelBonus(*b)
		for _, res := range catalogs.ResourceKinds {
			rate := t.Production.Get(res)
			if rate == 0 {
				continue
			}
			mult := 1 + prodBoost + lb
			if res == catalogs.Gold {
				mult += goldBoost
			}
			amount := rate * mult
			k.state.Resources.Add(res, amount)
			k.emit(Effect{
				Kind:       EffectProduction,
				BuildingID: b.ID,
				X:          b.X,
				Y:          b.Y,
				Resource:   res,
				Amount:     round2(amount),
				Motion:     MotionToResource,
			})
		}
		b.LastProduction = now
	}
}

// repairCapacity is the HP per second all standing repairers provide.
func (k *Kingdom) repairCapacity() float64 {
	base := 0.0
	for _, b := range k.state.Buildings {
		if !b.Alive() {
			continue
		}
		t, ok := k.cats.Buildings.Get(b.TypeID)
		if !ok || t.RepairRate <= 0 {
			continue
		}
		base += t.RepairRate * (1 + k.levelBonus(b))
	}
	return base * (1 + k.RepairBoost())
}

// applyRepair splits repair capacity evenly across damaged buildings.
// Destroyed buildings are never touched. When the repair material runs
// short every share is scaled by the same ratio and the stock drains to 0.
func (k *Kingdom) applyRepair(seconds float64) {
	capacity := k.repairCapacity()
	if capacity <= 0 {
		return
	}

	var damaged []int
	for i, b := range k.state.Buildings {
		if b.Damaged() {
			damaged = append(damaged, i)
		}
	}
	if len(damaged) == 0 {
		return
	}

	share := capacity / float64(len(damaged)) * seconds
	material := k.tune.Economy.RepairMaterial
	cost := share * float64(len(damaged)) * k.tune.Economy.RepairMaterialPerHP
	if cost <= 0 {
		return
	}

	ratio := 1.0
	if have := k.state.Resources.Get(material); have < cost {
		ratio = have / cost
		if ratio <= 0 {
			return
		}
		k.state.Resources.Set(material, 0)
	} else {
		k.state.Resources.Add(material, -cost)
	}

	for _, i := range damaged {
		b := &k.state.Buildings[i]
		before := b.HP
		b.HP = math.Min(b.MaxHP, b.HP+share*ratio)
		k.emit(Effect{
			Kind:       EffectRepair,
			BuildingID: b.ID,
			X:          b.X,
			Y:          b.Y,
			Amount:     round2(b.HP - before),
			Motion:     MotionUp,
		})
	}
}
