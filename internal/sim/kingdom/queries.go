package kingdom

import "kingdomkeep.app/internal/sim/catalogs"

// Affordances bundles every read-only affordability query the UI needs to
// enable or disable its controls.
type Affordances struct {
	Build          map[string]bool         `json:"build"`
	Buffs          map[string]bool         `json:"buffs"`
	Upgrades       map[string]UpgradeQuote `json:"upgrades"`
	Repairs        map[string]RepairQuote  `json:"repairs"`
	RepairAll      bool                    `json:"repair_all"`
	RepairAllCost  catalogs.Resources      `json:"repair_all_cost"`
	RepairAllCount int                     `json:"repair_all_count"`
}

type UpgradeQuote struct {
	Cost     catalogs.Resources `json:"cost"`
	Allowed  bool               `json:"allowed"`
	MaxedOut bool               `json:"maxed_out,omitempty"`
}

type RepairQuote struct {
	Cost    catalogs.Resources `json:"cost"`
	Allowed bool               `json:"allowed"`
}

func (k *Kingdom) Affordances() Affordances {
	a := Affordances{
		Build:    make(map[string]bool, len(k.cats.Buildings.IDs)),
		Buffs:    make(map[string]bool, len(k.state.Buffs)),
		Upgrades: make(map[string]UpgradeQuote, len(k.state.Buildings)),
		Repairs:  make(map[string]RepairQuote),
	}
	for _, id := range k.cats.Buildings.IDs {
		if _, ok := k.cats.Buildings.Placeable(id); ok {
			a.Build[id] = k.CanBuild(id)
		}
	}
	for _, b := range k.state.Buffs {
		a.Buffs[b.ID] = k.CanBuyBuff(b.ID)
	}
	for _, b := range k.state.Buildings {
		a.Upgrades[b.ID] = UpgradeQuote{
			Cost:     k.UpgradeCost(b),
			Allowed:  k.CanUpgrade(b.X, b.Y),
			MaxedOut: b.Level >= k.tune.Upgrade.MaxLevel,
		}
		if b.Damaged() {
			cost := k.RepairCost(b)
			a.Repairs[b.ID] = RepairQuote{Cost: cost, Allowed: k.state.Resources.Covers(cost)}
		}
	}
	a.RepairAllCost, a.RepairAllCount = k.RepairAllCost()
	a.RepairAll = k.CanRepairAll()
	return a
}
