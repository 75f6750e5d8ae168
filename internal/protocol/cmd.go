package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"kingdomkeep.app/internal/sim/kingdom"
)

//go:embed schemas/cmd.schema.json
var schemaFS embed.FS

const cmdSchemaURL = "kingdomkeep://protocol/cmd.schema.json"

var (
	cmdSchemaOnce sync.Once
	cmdSchema     *jsonschema.Schema
	cmdSchemaErr  error
)

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id,omitempty"`
	Cmd             string `json:"cmd"`
	TypeID          string `json:"type_id,omitempty"`
	BuffID          string `json:"buff_id,omitempty"`
	X               *int   `json:"x,omitempty"`
	Y               *int   `json:"y,omitempty"`
}

func loadCmdSchema() (*jsonschema.Schema, error) {
	cmdSchemaOnce.Do(func() {
		raw, err := schemaFS.ReadFile("schemas/cmd.schema.json")
		if err != nil {
			cmdSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(cmdSchemaURL, bytes.NewReader(raw)); err != nil {
			cmdSchemaErr = err
			return
		}
		cmdSchema, cmdSchemaErr = c.Compile(cmdSchemaURL)
	})
	return cmdSchema, cmdSchemaErr
}

// DecodeCmd validates a raw CMD message and maps it onto a kingdom command.
func DecodeCmd(raw []byte) (CmdMsg, kingdom.Command, error) {
	s, err := loadCmdSchema()
	if err != nil {
		return CmdMsg{}, nil, fmt.Errorf("cmd schema: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return CmdMsg{}, nil, fmt.Errorf("decode cmd: %w", err)
	}
	// Best effort, so rejections can still echo the id.
	var m CmdMsg
	decodeErr := json.Unmarshal(raw, &m)
	if err := s.Validate(v); err != nil {
		return m, nil, fmt.Errorf("invalid cmd: %w", err)
	}
	if decodeErr != nil {
		return m, nil, fmt.Errorf("decode cmd: %w", decodeErr)
	}
	if m.ProtocolVersion != "" && m.ProtocolVersion != Version {
		return m, nil, fmt.Errorf("unsupported protocol_version %q", m.ProtocolVersion)
	}

	var x, y int
	if m.X != nil {
		x = *m.X
	}
	if m.Y != nil {
		y = *m.Y
	}
	switch m.Cmd {
	case "click":
		return m, kingdom.Click{}, nil
	case "place":
		return m, kingdom.Place{TypeID: m.TypeID, X: x, Y: y}, nil
	case "remove":
		return m, kingdom.Remove{X: x, Y: y}, nil
	case "repair":
		return m, kingdom.Repair{X: x, Y: y}, nil
	case "repair_all":
		return m, kingdom.RepairAll{}, nil
	case "upgrade":
		return m, kingdom.Upgrade{X: x, Y: y}, nil
	case "buy_buff":
		return m, kingdom.BuyBuff{ID: m.BuffID}, nil
	case "reset":
		return m, kingdom.Reset{}, nil
	}
	return m, nil, fmt.Errorf("unknown cmd %q", m.Cmd)
}
