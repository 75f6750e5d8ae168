package kingdom

import (
	"fmt"
	"math"
	"time"

	"kingdomkeep.app/internal/sim/catalogs"
)

type OfflineReport struct {
	Elapsed   time.Duration      `json:"elapsed"`
	Effective time.Duration      `json:"effective"`
	Earned    catalogs.Resources `json:"earned"`
	Applied   bool               `json:"applied"`
}

// ApplyOffline credits production for the time between the last recorded
// update and now. Only standing producers count, at reduced efficiency and
// without level bonuses; the gap is capped. Raids do not advance offline,
// and a finished game earns nothing.
func (k *Kingdom) ApplyOffline(now time.Time) OfflineReport {
	var rep OfflineReport
	if !k.state.Started || k.Finished() {
		return rep
	}
	elapsed := now.Sub(k.state.LastUpdate).Seconds()
	if elapsed < 1 {
		return rep
	}
	effective := math.Min(elapsed, float64(k.tune.OfflineMaxSeconds))
	rep.Elapsed = time.Duration(elapsed * float64(time.Second))
	rep.Effective = time.Duration(effective * float64(time.Second))

	goldBoost := k.GoldBoost()
	prodBoost := k.ProductionBoost()

	var raw catalogs.Resources
	for _, b := range k.state.Buildings {
		if !b.Alive() {
			continue
		}
		t, ok := k.cats.Buildings.Get(b.TypeID)
		if !ok || t.ProductionIntervalMs <= 0 {
			continue
		}
		cycles := effective * (1000 / float64(t.ProductionIntervalMs)) * k.tune.OfflineEfficiency
		for _, res := range catalogs.ResourceKinds {
			rate := t.Production.Get(res)
			if rate == 0 {
				continue
			}
			mult := 1 + prodBoost
			if res == catalogs.Gold {
				mult += goldBoost
			}
			raw.Add(res, rate*mult*cycles)
		}
	}

	earned := raw.Floor()
	for _, res := range catalogs.ResourceKinds {
		k.state.Resources.Add(res, earned.Get(res))
	}
	k.state.GameTime += int64(math.Floor(effective))
	k.state.LastUpdate = now
	rep.Earned = earned
	rep.Applied = true

	if raw.Gold > 0 || raw.Wood > 0 || raw.Stone > 0 {
		mins := int(math.Floor(effective / 60))
		k.logf(now, LogOffline, k.state.Raid.Wave, fmt.Sprintf("Away %d min: +%g gold +%g wood +%g stone",
			mins, earned.Gold, earned.Wood, earned.Stone))
	}
	return rep
}
