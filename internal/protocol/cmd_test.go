package protocol

import (
	"encoding/json"
	"testing"

	"kingdomkeep.app/internal/sim/kingdom"
)

func TestDecodeCmd_MapsCommands(t *testing.T) {
	cases := []struct {
		raw  string
		want kingdom.Command
	}{
		{`{"type":"CMD","cmd":"click"}`, kingdom.Click{}},
		{`{"type":"CMD","protocol_version":"1.0","id":"c1","cmd":"place","type_id":"farm","x":0,"y":0}`, kingdom.Place{TypeID: "farm", X: 0, Y: 0}},
		{`{"type":"CMD","cmd":"remove","x":1,"y":3}`, kingdom.Remove{X: 1, Y: 3}},
		{`{"type":"CMD","cmd":"repair","x":4,"y":8}`, kingdom.Repair{X: 4, Y: 8}},
		{`{"type":"CMD","cmd":"repair_all"}`, kingdom.RepairAll{}},
		{`{"type":"CMD","cmd":"upgrade","x":2,"y":1}`, kingdom.Upgrade{X: 2, Y: 1}},
		{`{"type":"CMD","cmd":"buy_buff","buff_id":"hero"}`, kingdom.BuyBuff{ID: "hero"}},
		{`{"type":"CMD","cmd":"reset"}`, kingdom.Reset{}},
	}
	for _, c := range cases {
		_, cmd, err := DecodeCmd([]byte(c.raw))
		if err != nil {
			t.Fatalf("%s: %v", c.raw, err)
		}
		if cmd != c.want {
			t.Fatalf("%s: got %#v want %#v", c.raw, cmd, c.want)
		}
	}
}

func TestDecodeCmd_KeepsID(t *testing.T) {
	m, _, err := DecodeCmd([]byte(`{"type":"CMD","id":"abc","cmd":"click"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID != "abc" || m.Cmd != "click" {
		t.Fatalf("msg: %+v", m)
	}
}

func TestDecodeCmd_Rejects(t *testing.T) {
	bad := []string{
		`not json`,
		`{"type":"CMD"}`,
		`{"type":"ACK","cmd":"click"}`,
		`{"type":"CMD","cmd":"fly"}`,
		`{"type":"CMD","cmd":"place","x":1,"y":1}`,
		`{"type":"CMD","cmd":"place","type_id":"farm","x":1}`,
		`{"type":"CMD","cmd":"upgrade","x":1.5,"y":1}`,
		`{"type":"CMD","cmd":"buy_buff"}`,
		`{"type":"CMD","protocol_version":"0.9","cmd":"click"}`,
	}
	for _, raw := range bad {
		if _, _, err := DecodeCmd([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(`{"type":"CMD","protocol_version":"1.0","cmd":"click"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Type != TypeCmd || b.ProtocolVersion != Version {
		t.Fatalf("base: %+v", b)
	}
}

func TestNewAck(t *testing.T) {
	a := NewAck("c7", "click", kingdom.Result{Accepted: true, Amount: 2})
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != TypeAck || got["id"] != "c7" || got["accepted"] != true || got["amount"] != 2.0 {
		t.Fatalf("ack: %s", raw)
	}
	if _, ok := got["code"]; ok {
		t.Fatalf("accepted ack should omit code: %s", raw)
	}

	e := NewError("c8", ErrRateLimit, "slow down")
	if e.Type != TypeError || !IsKnownCode(e.Code) {
		t.Fatalf("error msg: %+v", e)
	}
}
