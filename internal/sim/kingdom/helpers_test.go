package kingdom

import (
	"fmt"
	"math"
	"testing"
	"time"

	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/tuning"
)

var t0 = time.UnixMilli(1_700_000_000_000)

// fixedRand always returns the same draws, which makes every formula in a
// test computable by hand.
type fixedRand struct {
	f float64
	i int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int {
	if r.i >= n {
		return n - 1
	}
	return r.i
}

func newKingdom(t *testing.T, adjust ...func(*tuning.Tuning)) *Kingdom {
	t.Helper()
	tune := tuning.Defaults()
	for _, fn := range adjust {
		fn(&tune)
	}
	seq := 0
	return New(catalogs.Defaults(), tune, fixedRand{f: 0.5}, t0, WithIDs(func() string {
		seq++
		return fmt.Sprintf("b%d", seq)
	}))
}

// addBuilding places typeID at (x, y) at full HP without paying for it.
func addBuilding(t *testing.T, k *Kingdom, typeID string, x, y int) string {
	t.Helper()
	bt, ok := k.cats.Buildings.Get(typeID)
	if !ok {
		t.Fatalf("unknown type %q", typeID)
	}
	id := fmt.Sprintf("%s@%d,%d", typeID, x, y)
	k.state.Buildings = append(k.state.Buildings, Building{
		ID: id, TypeID: typeID, HP: bt.MaxHP, MaxHP: bt.MaxHP, X: x, Y: y, Level: 1,
	})
	return id
}

func bld(t *testing.T, k *Kingdom, id string) *Building {
	t.Helper()
	for i := range k.state.Buildings {
		if k.state.Buildings[i].ID == id {
			return &k.state.Buildings[i]
		}
	}
	t.Fatalf("building %q not found", id)
	return nil
}

func purchase(t *testing.T, k *Kingdom, ids ...string) {
	t.Helper()
	for _, id := range ids {
		i := k.buffIndex(id)
		if i < 0 {
			t.Fatalf("unknown buff %q", id)
		}
		k.state.Buffs[i].Purchased = true
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func logKinds(logs []LogEvent) []LogKind {
	out := make([]LogKind, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Kind)
	}
	return out
}
