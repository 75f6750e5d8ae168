package main

import (
	"sort"

	"kingdomkeep.app/internal/protocol"
	"kingdomkeep.app/internal/sim/kingdom"
)

// planner picks one command per STATE. Priority: repair after a raid,
// buffs, new buildings from the preference list, upgrades, then a click.
type planner struct {
	grid   protocol.Grid
	prefer []string
}

func intp(v int) *int { return &v }

func (p *planner) next(s protocol.StateMsg) (protocol.CmdMsg, bool) {
	st := s.State
	if st.Won || st.Lost {
		return protocol.CmdMsg{}, false
	}
	a := s.Affordances
	cmd := func(name string) protocol.CmdMsg {
		return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: name}
	}

	if !st.Raid.Active && a.RepairAll && a.RepairAllCount > 0 {
		return cmd("repair_all"), true
	}

	buffs := make([]string, 0, len(a.Buffs))
	for id, ok := range a.Buffs {
		if ok {
			buffs = append(buffs, id)
		}
	}
	if len(buffs) > 0 {
		sort.Strings(buffs)
		c := cmd("buy_buff")
		c.BuffID = buffs[0]
		return c, true
	}

	for _, id := range p.prefer {
		if !a.Build[id] {
			continue
		}
		x, y, ok := p.freeCell(st.Buildings)
		if !ok {
			break
		}
		c := cmd("place")
		c.TypeID, c.X, c.Y = id, intp(x), intp(y)
		return c, true
	}

	for _, b := range st.Buildings {
		if q, ok := a.Upgrades[b.ID]; ok && q.Allowed {
			c := cmd("upgrade")
			c.X, c.Y = intp(b.X), intp(b.Y)
			return c, true
		}
	}
	return cmd("click"), true
}

// freeCell scans rows top to bottom for a cell that is neither the origin
// nor occupied.
func (p *planner) freeCell(buildings []kingdom.Building) (int, int, bool) {
	used := make(map[[2]int]bool, len(buildings))
	for _, b := range buildings {
		used[[2]int{b.X, b.Y}] = true
	}
	for y := 0; y < p.grid.Rows; y++ {
		for x := 0; x < p.grid.Cols; x++ {
			if x == p.grid.OriginX && y == p.grid.OriginY {
				continue
			}
			if !used[[2]int{x, y}] {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}
