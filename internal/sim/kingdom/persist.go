package kingdom

import (
	"fmt"
	"math"
	"time"

	"kingdomkeep.app/internal/persistence/snapshot"
	"kingdomkeep.app/internal/sim/catalogs"
)

// Export captures the whole kingdom as a persisted document.
func (k *Kingdom) Export(now time.Time) snapshot.DocumentV1 {
	s := &k.state
	gt := s.GameTime
	left, dur, rem := s.Raid.RaidTimeLeft, s.Raid.RaidDuration, s.Raid.EnemiesRemaining

	doc := snapshot.DocumentV1{
		Header: snapshot.Header{Version: snapshot.Version, SavedAt: now.UnixMilli()},
		Resources: snapshot.ResourcesV1{
			Gold:          s.Resources.Gold,
			Wood:          s.Resources.Wood,
			Stone:         s.Resources.Stone,
			Determination: s.Resources.Determination,
		},
		Buildings: make([]snapshot.BuildingV1, 0, len(s.Buildings)),
		Buffs:     make([]snapshot.BuffV1, 0, len(s.Buffs)),
		Raid: snapshot.RaidV1{
			IsActive:            s.Raid.Active,
			Wave:                s.Raid.Wave,
			EnemyCount:          s.Raid.EnemyCount,
			TimeToNextRaid:      s.Raid.TimeToNextRaid,
			TotalTimeToNextRaid: s.Raid.TotalTimeToNextRaid,
			RaidTimeLeft:        &left,
			RaidDuration:        &dur,
			EnemiesRemaining:    &rem,
			Savages:             make([]snapshot.SavageV1, 0, len(s.Raid.Savages)),
			Attacks:             s.Raid.Attacks,
			DamageDealt:         s.Raid.DamageDealt,
			GoldStolen:          s.Raid.GoldStolen,
		},
		ClickMultiplier: s.ClickMultiplier,
		GameTime:        &gt,
		GameStarted:     s.Started,
		GameWon:         s.Won,
		GameLost:        s.Lost,
		LastUpdate:      s.LastUpdate.UnixMilli(),
	}
	for _, b := range s.Buildings {
		doc.Buildings = append(doc.Buildings, snapshot.BuildingV1{
			ID:             b.ID,
			TypeID:         b.TypeID,
			HP:             b.HP,
			MaxHP:          b.MaxHP,
			X:              b.X,
			Y:              b.Y,
			LastProduction: b.LastProduction.UnixMilli(),
			Level:          b.Level,
		})
	}
	for _, b := range s.Buffs {
		doc.Buffs = append(doc.Buffs, snapshot.BuffV1{ID: b.ID, Purchased: b.Purchased})
	}
	for _, sv := range s.Raid.Savages {
		doc.Raid.Savages = append(doc.Raid.Savages, snapshot.SavageV1{
			ID:             sv.ID,
			NextAttackTime: unixMillisFloat(sv.NextAttackAt),
			AttackCount:    sv.AttackCount,
		})
	}
	return doc
}

// Import replaces the current state with doc. The document is normalized
// first; the buff list is extended with catalog entries the save predates
// and unknown buffs are kept as-is. Returns the migrations applied.
func (k *Kingdom) Import(doc snapshot.DocumentV1) ([]string, error) {
	applied := snapshot.Normalize(&doc)

	var s State
	s.Resources = catalogs.Resources{
		Gold:          doc.Resources.Gold,
		Wood:          doc.Resources.Wood,
		Stone:         doc.Resources.Stone,
		Determination: doc.Resources.Determination,
	}

	if s.Resources.Negative() {
		return applied, fmt.Errorf("import: negative resources %+v", s.Resources)
	}

	ox, oy := k.tune.OriginCell()
	hasOrigin := false
	seen := make(map[[2]int]bool, len(doc.Buildings))
	for _, b := range doc.Buildings {
		cell := [2]int{b.X, b.Y}
		if !k.inBounds(b.X, b.Y) {
			return applied, fmt.Errorf("import: building %q at (%d,%d) is off the grid", b.ID, b.X, b.Y)
		}
		if seen[cell] {
			return applied, fmt.Errorf("import: two buildings at (%d,%d)", b.X, b.Y)
		}
		seen[cell] = true
		t, ok := k.cats.Buildings.Get(b.TypeID)
		origin := ok && t.Origin
		switch {
		case origin && (b.X != ox || b.Y != oy):
			return applied, fmt.Errorf("import: origin %q at (%d,%d), want (%d,%d)", b.TypeID, b.X, b.Y, ox, oy)
		case !origin && b.X == ox && b.Y == oy:
			return applied, fmt.Errorf("import: %q occupies the origin cell", b.TypeID)
		}
		hasOrigin = hasOrigin || origin
		s.Buildings = append(s.Buildings, Building{
			ID:             b.ID,
			TypeID:         b.TypeID,
			HP:             math.Max(0, math.Min(b.HP, b.MaxHP)),
			MaxHP:          b.MaxHP,
			X:              b.X,
			Y:              b.Y,
			Level:          b.Level,
			LastProduction: time.UnixMilli(b.LastProduction),
		})
	}
	if !hasOrigin {
		return applied, fmt.Errorf("import: no origin building")
	}

	known := make(map[string]bool, len(doc.Buffs))
	for _, b := range doc.Buffs {
		if known[b.ID] {
			continue
		}
		known[b.ID] = true
		s.Buffs = append(s.Buffs, Buff{ID: b.ID, Purchased: b.Purchased})
	}
	extended := false
	for _, id := range k.cats.Buffs.IDs {
		if !known[id] {
			s.Buffs = append(s.Buffs, Buff{ID: id})
			extended = true
		}
	}
	if extended {
		applied = append(applied, "buffs")
	}

	r := doc.Raid
	s.Raid = RaidState{
		Active:              r.IsActive,
		Wave:                r.Wave,
		EnemyCount:          r.EnemyCount,
		TimeToNextRaid:      r.TimeToNextRaid,
		TotalTimeToNextRaid: r.TotalTimeToNextRaid,
		RaidTimeLeft:        *r.RaidTimeLeft,
		RaidDuration:        *r.RaidDuration,
		EnemiesRemaining:    *r.EnemiesRemaining,
		Savages:             make([]Savage, 0, len(r.Savages)),
		Attacks:             r.Attacks,
		DamageDealt:         r.DamageDealt,
		GoldStolen:          r.GoldStolen,
	}
	for _, sv := range r.Savages {
		s.Raid.Savages = append(s.Raid.Savages, Savage{
			ID:           sv.ID,
			NextAttackAt: fromMillisFloat(sv.NextAttackTime),
			AttackCount:  sv.AttackCount,
		})
	}

	s.ClickMultiplier = doc.ClickMultiplier
	s.GameTime = *doc.GameTime
	s.Started = doc.GameStarted
	s.Won = doc.GameWon
	s.Lost = doc.GameLost
	s.LastUpdate = time.UnixMilli(doc.LastUpdate)

	k.state = s
	k.effects, k.logs = nil, nil
	return applied, nil
}

func unixMillisFloat(t time.Time) float64 {
	return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/1e6
}

func fromMillisFloat(ms float64) time.Time {
	whole := math.Floor(ms)
	return time.UnixMilli(int64(whole)).Add(time.Duration((ms - whole) * float64(time.Millisecond)))
}
