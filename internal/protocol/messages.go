package protocol

import (
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/kingdom"
)

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string                  `json:"type"`
	ProtocolVersion string                  `json:"protocol_version"`
	SessionID       string                  `json:"session_id"`
	Grid            Grid                    `json:"grid"`
	Catalogs        CatalogDigests          `json:"catalogs"`
	Buildings       []catalogs.BuildingType `json:"buildings"`
	Buffs           []catalogs.BuffDef      `json:"buffs"`
	MaxWaves        int                     `json:"max_waves"`
	RecentLogs      []kingdom.LogEvent      `json:"recent_logs"`
}

type Grid struct {
	Rows    int `json:"rows"`
	Cols    int `json:"cols"`
	OriginX int `json:"origin_x"`
	OriginY int `json:"origin_y"`
}

type CatalogDigests struct {
	Buildings string `json:"buildings"`
	Buffs     string `json:"buffs"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Seq             uint64              `json:"seq"`
	State           kingdom.State       `json:"state"`
	Affordances     kingdom.Affordances `json:"affordances"`
	DamageReduction float64             `json:"damage_reduction"`
	StealReduction  float64             `json:"steal_reduction"`
}

// EFFECT (server -> client)
type EffectMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Effects         []kingdom.Effect `json:"effects"`
}

// LOG (server -> client)
type LogMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Event           kingdom.LogEvent `json:"event"`
}

// ACK (server -> client) answers one CMD.
type AckMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id,omitempty"`
	Cmd             string  `json:"cmd,omitempty"`
	Accepted        bool    `json:"accepted"`
	Code            string  `json:"code,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	BuildingID      string  `json:"building_id,omitempty"`
}

// ERROR (server -> client) reports a message the server could not act on.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewAck(id, cmd string, r kingdom.Result) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		ID:              id,
		Cmd:             cmd,
		Accepted:        r.Accepted,
		Code:            r.Code,
		Amount:          r.Amount,
		BuildingID:      r.BuildingID,
	}
}

func NewError(id, code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ID: id, Code: code, Message: message}
}
