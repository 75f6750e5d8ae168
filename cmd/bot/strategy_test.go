package main

import (
	"testing"

	"kingdomkeep.app/internal/protocol"
	"kingdomkeep.app/internal/sim/kingdom"
)

func testPlanner() *planner {
	return &planner{
		grid:   protocol.Grid{Rows: 2, Cols: 2, OriginX: 0, OriginY: 0},
		prefer: []string{"farm", "sawmill"},
	}
}

func castleOnly() kingdom.State {
	return kingdom.State{Buildings: []kingdom.Building{{ID: "origin", TypeID: "castle", X: 0, Y: 0, HP: 100, MaxHP: 100}}}
}

func TestPlanner_ClicksWhenNothingAffordable(t *testing.T) {
	c, ok := testPlanner().next(protocol.StateMsg{State: castleOnly()})
	if !ok || c.Cmd != "click" || c.Type != protocol.TypeCmd {
		t.Fatalf("cmd=%+v ok=%v", c, ok)
	}
}

func TestPlanner_PlacesPreferredOnFreeCell(t *testing.T) {
	st := castleOnly()
	st.Buildings = append(st.Buildings, kingdom.Building{ID: "f1", TypeID: "farm", X: 1, Y: 0, HP: 30, MaxHP: 30})
	s := protocol.StateMsg{State: st, Affordances: kingdom.Affordances{Build: map[string]bool{"farm": false, "sawmill": true}}}

	c, ok := testPlanner().next(s)
	if !ok || c.Cmd != "place" || c.TypeID != "sawmill" {
		t.Fatalf("cmd=%+v", c)
	}
	if *c.X != 0 || *c.Y != 1 {
		t.Fatalf("cell=(%d,%d) want (0,1)", *c.X, *c.Y)
	}
}

func TestPlanner_FullGridFallsThroughToUpgrade(t *testing.T) {
	st := castleOnly()
	st.Buildings = append(st.Buildings,
		kingdom.Building{ID: "a", X: 1, Y: 0},
		kingdom.Building{ID: "b", X: 0, Y: 1},
		kingdom.Building{ID: "c", X: 1, Y: 1},
	)
	s := protocol.StateMsg{State: st, Affordances: kingdom.Affordances{
		Build:    map[string]bool{"farm": true},
		Upgrades: map[string]kingdom.UpgradeQuote{"b": {Allowed: true}},
	}}
	c, _ := testPlanner().next(s)
	if c.Cmd != "upgrade" || *c.X != 0 || *c.Y != 1 {
		t.Fatalf("cmd=%+v", c)
	}
}

func TestPlanner_Priorities(t *testing.T) {
	s := protocol.StateMsg{State: castleOnly(), Affordances: kingdom.Affordances{
		Build:          map[string]bool{"farm": true},
		Buffs:          map[string]bool{"merchant1": true, "guard1": true, "hero": false},
		RepairAll:      true,
		RepairAllCount: 1,
	}}
	c, _ := testPlanner().next(s)
	if c.Cmd != "repair_all" {
		t.Fatalf("repair first: %+v", c)
	}

	s.State.Raid.Active = true
	c, _ = testPlanner().next(s)
	if c.Cmd != "buy_buff" || c.BuffID != "guard1" {
		t.Fatalf("buff next: %+v", c)
	}

	s.State.Lost = true
	if _, ok := testPlanner().next(s); ok {
		t.Fatalf("no command after the game ends")
	}
}
