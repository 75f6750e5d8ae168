package catalogs

import "math"

type Resource string

const (
	Gold          Resource = "gold"
	Wood          Resource = "wood"
	Stone         Resource = "stone"
	Determination Resource = "determination"
)

// ResourceKinds is the fixed iteration order used by production and effects.
var ResourceKinds = []Resource{Gold, Wood, Stone, Determination}

// Resources is used both for stockpiles and for partial amounts (costs,
// production rates). A zero field means "none of this kind".
type Resources struct {
	Gold          float64 `json:"gold,omitempty" yaml:"gold"`
	Wood          float64 `json:"wood,omitempty" yaml:"wood"`
	Stone         float64 `json:"stone,omitempty" yaml:"stone"`
	Determination float64 `json:"determination,omitempty" yaml:"determination"`
}

func (r Resources) Get(kind Resource) float64 {
	switch kind {
	case Gold:
		return r.Gold
	case Wood:
		return r.Wood
	case Stone:
		return r.Stone
	case Determination:
		return r.Determination
	}
	return 0
}

func (r *Resources) Add(kind Resource, v float64) {
	switch kind {
	case Gold:
		r.Gold += v
	case Wood:
		r.Wood += v
	case Stone:
		r.Stone += v
	case Determination:
		r.Determination += v
	}
}

func (r *Resources) Set(kind Resource, v float64) {
	switch kind {
	case Gold:
		r.Gold = v
	case Wood:
		r.Wood = v
	case Stone:
		r.Stone = v
	case Determination:
		r.Determination = v
	}
}

// Covers reports whether every component of cost is available in r.
func (r Resources) Covers(cost Resources) bool {
	for _, k := range ResourceKinds {
		if r.Get(k) < cost.Get(k) {
			return false
		}
	}
	return true
}

func (r *Resources) Sub(cost Resources) {
	for _, k := range ResourceKinds {
		r.Add(k, -cost.Get(k))
	}
}

func (r Resources) IsZero() bool {
	return r == Resources{}
}

// Floor rounds every component down. Used for offline earnings.
func (r Resources) Floor() Resources {
	return Resources{
		Gold:          math.Floor(r.Gold),
		Wood:          math.Floor(r.Wood),
		Stone:         math.Floor(r.Stone),
		Determination: math.Floor(r.Determination),
	}
}

func (r Resources) Negative() bool {
	for _, k := range ResourceKinds {
		if r.Get(k) < 0 {
			return true
		}
	}
	return false
}
