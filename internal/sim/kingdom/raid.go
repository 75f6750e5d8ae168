package kingdom

import (
	"fmt"
	"math"
	"time"

	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/tuning"
)

// EnemyCountFor sizes a wave. jitter is a uniform draw in [0,1).
func EnemyCountFor(r tuning.Raid, wave int, jitter float64) int {
	return int(math.Floor(r.EnemyBase * math.Pow(r.Growth+jitter*r.GrowthJitter, float64(wave))))
}

// RaidDurationFor is how long a raid of count savages lasts, in seconds.
func RaidDurationFor(r tuning.Raid, count int) float64 {
	return math.Ceil(float64(count)*r.DurationPerEnemy) + float64(r.DurationPad)
}

// CountdownFor is the calm period that precedes nextWave, in seconds.
func CountdownFor(r tuning.Raid, nextWave int) float64 {
	return math.Floor(r.CountdownBase + math.Log2(float64(nextWave+1))*r.CountdownLogScale)
}

func (k *Kingdom) attackInterval() time.Duration {
	r := k.tune.Raid
	ms := float64(r.AttackIntervalMin) + k.rng.Float64()*float64(r.AttackIntervalMax-r.AttackIntervalMin)
	return time.Duration(ms * float64(time.Millisecond))
}

// StepSecond advances one whole game second: the calm countdown (which may
// start a raid), production, repair and the defeat check.
func (k *Kingdom) StepSecond(now time.Time) {
	if k.Finished() {
		return
	}
	k.state.GameTime++

	if !k.state.Raid.Active {
		k.advanceCountdown(1, now)
		if k.Finished() {
			return
		}
	}

	k.ApplyEconomySecond(now)
	k.checkDefeat(now)
}

func (k *Kingdom) advanceCountdown(seconds float64, now time.Time) {
	k.state.Raid.TimeToNextRaid -= seconds
	if k.state.Raid.TimeToNextRaid <= 0 {
		k.startRaid(now)
	}
}

func (k *Kingdom) startRaid(now time.Time) {
	r := &k.state.Raid
	wave := r.Wave + 1
	if wave > k.tune.MaxWaves {
		k.state.Won = true
		k.logf(now, LogVictory, r.Wave, fmt.Sprintf("Victory! All %d waves repelled.", k.tune.MaxWaves))
		return
	}

	count := EnemyCountFor(k.tune.Raid, wave, k.rng.Float64())
	duration := RaidDurationFor(k.tune.Raid, count)

	savages := make([]Savage, count)
	for i := range savages {
		savages[i] = Savage{ID: i, NextAttackAt: now.Add(k.attackInterval())}
	}

	*r = RaidState{
		Active:              true,
		Wave:                wave,
		EnemyCount:          count,
		TimeToNextRaid:      r.TimeToNextRaid,
		TotalTimeToNextRaid: r.TotalTimeToNextRaid,
		RaidTimeLeft:        duration,
		RaidDuration:        duration,
		EnemiesRemaining:    count,
		Savages:             savages,
		StartedAt:           now,
	}
	k.logf(now, LogRaidStart, wave, fmt.Sprintf("Wave %d! %d savages attack!", wave, count))
}

// AdvanceRaid moves an active raid forward by dt seconds of real time. Every
// savage whose timer is due at now attacks once and is rescheduled. Returns
// whether anything observable changed.
func (k *Kingdom) AdvanceRaid(dt float64, now time.Time) bool {
	if !k.state.Raid.Active || k.Finished() {
		return false
	}
	r := &k.state.Raid
	r.RaidTimeLeft -= dt
	if r.RaidTimeLeft <= 0 {
		k.endRaid(now)
		return true
	}

	for i := range r.Savages {
		s := &r.Savages[i]
		if now.Before(s.NextAttackAt) {
			continue
		}
		k.attack(now)
		s.NextAttackAt = now.Add(k.attackInterval())
		s.AttackCount++
		if s.AttackCount == 1 && k.tune.Raid.RewardBasis == tuning.RewardEngaged && r.EnemiesRemaining > 0 {
			r.EnemiesRemaining--
		}
		if k.state.Lost {
			break
		}
	}
	// The raid clock is always visibly ticking.
	return true
}

func (k *Kingdom) attack(now time.Time) {
	dr := k.DamageReduction()
	sr := k.StealReduction()

	var alive []int
	for i, b := range k.state.Buildings {
		if b.Alive() {
			alive = append(alive, i)
		}
	}
	if len(alive) == 0 {
		k.lose(now)
		return
	}

	r := k.tune.Raid
	target := &k.state.Buildings[alive[k.rng.Intn(len(alive))]]
	damage := (r.DamageMin + k.rng.Float64()*(r.DamageMax-r.DamageMin)) * (1 - dr)
	dealt := math.Min(target.HP, damage)
	target.HP = math.Max(0, target.HP-damage)
	k.state.Raid.Attacks++
	k.state.Raid.DamageDealt += dealt
	k.emit(Effect{
		Kind:       EffectDamage,
		BuildingID: target.ID,
		X:          target.X,
		Y:          target.Y,
		Amount:     round2(dealt),
		Motion:     MotionDown,
		Negative:   true,
	})

	steal := math.Floor(r.StealAmount * (1 - sr))
	if steal > 0 && k.state.Resources.Gold >= steal {
		k.state.Resources.Gold -= steal
		k.state.Raid.GoldStolen += steal
		k.emit(Effect{
			Kind:     EffectTheft,
			Resource: catalogs.Gold,
			Amount:   steal,
			Motion:   MotionDown,
			Negative: true,
		})
	}

	k.checkDefeat(now)
}

func (k *Kingdom) endRaid(now time.Time) {
	r := &k.state.Raid

	defeated := r.EnemyCount - r.EnemiesRemaining
	if defeated < 0 {
		defeated = 0
	}
	award := 0.0
	if temples := k.aliveOfType(k.tune.Raid.TempleTypeID); temples > 0 && defeated > 0 {
		award = float64(defeated * temples)
		k.state.Resources.Determination += award
		k.logf(now, LogReward, r.Wave, fmt.Sprintf("Temples granted %g determination", award))
	}

	summary := &RaidSummary{
		Wave:          r.Wave,
		Enemies:       r.EnemyCount,
		Duration:      r.RaidDuration,
		Attacks:       r.Attacks,
		DamageDealt:   r.DamageDealt,
		GoldStolen:    r.GoldStolen,
		Determination: award,
		StartedAt:     r.StartedAt,
		EndedAt:       now,
	}

	r.Active = false
	r.EnemiesRemaining = 0
	r.RaidTimeLeft = 0
	r.Savages = []Savage{}
	next := CountdownFor(k.tune.Raid, r.Wave+1)
	r.TimeToNextRaid = next
	r.TotalTimeToNextRaid = next

	ev := k.logf(now, LogRaidEnd, r.Wave, fmt.Sprintf("Wave %d repelled!", r.Wave))
	ev.Raid = summary
}

func (k *Kingdom) checkDefeat(now time.Time) {
	if k.state.Lost || !k.allDestroyed() {
		return
	}
	k.lose(now)
}

func (k *Kingdom) lose(now time.Time) {
	if k.state.Lost {
		return
	}
	k.state.Lost = true
	k.logf(now, LogDefeat, k.state.Raid.Wave, "Defeat! Every building lies in ruins.")
}
