package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kingdomkeep.app/internal/protocol"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/engine"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

type fakeEngine struct {
	mu   sync.Mutex
	cmds []kingdom.Command
	err  error
}

func (f *fakeEngine) Submit(_ context.Context, cmd kingdom.Command) (kingdom.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kingdom.Result{}, f.err
	}
	f.cmds = append(f.cmds, cmd)
	if _, ok := cmd.(kingdom.Click); ok {
		return kingdom.Result{Accepted: true, Amount: 1}, nil
	}
	return kingdom.Result{Code: kingdom.CodeInsufficient}, nil
}

func (f *fakeEngine) RecentLogs() []kingdom.LogEvent {
	return []kingdom.LogEvent{{Kind: kingdom.LogOffline, Text: "Kingdom founded"}}
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return m
}

// readType skips broadcasts until a message of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		m := readMsg(t, conn)
		if m["type"] == typ {
			return m
		}
	}
	t.Fatalf("no %s message", typ)
	return nil
}

func newTestHub(cfg Config) (*Hub, *fakeEngine) {
	h := NewHub(cfg, catalogs.Defaults(), tuning.Defaults(), nil)
	fe := &fakeEngine{}
	h.Bind(fe)
	return h, fe
}

func TestHub_WelcomeThenLatestState(t *testing.T) {
	h, _ := newTestHub(Config{})
	h.OnState(engine.View{State: kingdom.State{GameTime: 1}})
	h.OnState(engine.View{State: kingdom.State{GameTime: 2}})

	conn := dial(t, h)
	w := readMsg(t, conn)
	if w["type"] != protocol.TypeWelcome || w["session_id"] == "" {
		t.Fatalf("welcome: %v", w)
	}
	grid := w["grid"].(map[string]any)
	if grid["rows"] != 9.0 || grid["cols"] != 5.0 || grid["origin_x"] != 2.0 || grid["origin_y"] != 4.0 {
		t.Fatalf("grid: %v", grid)
	}
	if logs := w["recent_logs"].([]any); len(logs) != 1 {
		t.Fatalf("recent logs: %v", logs)
	}
	if len(w["buildings"].([]any)) == 0 {
		t.Fatalf("welcome without buildings")
	}

	s := readMsg(t, conn)
	if s["type"] != protocol.TypeState || s["seq"] != 2.0 {
		t.Fatalf("state: %v", s)
	}

	h.OnLog(kingdom.LogEvent{Kind: kingdom.LogOffline, Text: "hello"})
	l := readType(t, conn, protocol.TypeLog)
	if l["event"].(map[string]any)["text"] != "hello" {
		t.Fatalf("log: %v", l)
	}
	if st := h.Stats(); st.Connections != 1 || st.StatesPushed != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestHub_CommandAck(t *testing.T) {
	h, fe := newTestHub(Config{})
	conn := dial(t, h)
	readType(t, conn, protocol.TypeWelcome)

	if err := conn.WriteJSON(map[string]any{"type": "CMD", "id": "c1", "cmd": "click"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readType(t, conn, protocol.TypeAck)
	if ack["id"] != "c1" || ack["accepted"] != true || ack["amount"] != 1.0 {
		t.Fatalf("ack: %v", ack)
	}

	_ = conn.WriteJSON(map[string]any{"type": "CMD", "id": "c2", "cmd": "buy_buff", "buff_id": "hero"})
	ack = readType(t, conn, protocol.TypeAck)
	if ack["accepted"] != false || ack["code"] != kingdom.CodeInsufficient {
		t.Fatalf("rejected ack: %v", ack)
	}

	fe.mu.Lock()
	n := len(fe.cmds)
	fe.mu.Unlock()
	if n != 2 {
		t.Fatalf("submitted=%d", n)
	}
}

func TestHub_BadRequests(t *testing.T) {
	h, fe := newTestHub(Config{})
	conn := dial(t, h)
	readType(t, conn, protocol.TypeWelcome)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`))
	e := readType(t, conn, protocol.TypeError)
	if e["code"] != protocol.ErrProtoBadRequest {
		t.Fatalf("error: %v", e)
	}
	_ = conn.WriteJSON(map[string]any{"type": "CMD", "id": "p", "cmd": "place", "x": 1})
	e = readType(t, conn, protocol.TypeError)
	if e["code"] != protocol.ErrBadRequest || e["id"] != "p" {
		t.Fatalf("error: %v", e)
	}
	fe.mu.Lock()
	defer fe.mu.Unlock()
	if len(fe.cmds) != 0 {
		t.Fatalf("bad commands reached the engine")
	}
}

func TestHub_RateLimit(t *testing.T) {
	h, _ := newTestHub(Config{RateLimit: 0.001, Burst: 2})
	conn := dial(t, h)
	readType(t, conn, protocol.TypeWelcome)

	for i := 0; i < 3; i++ {
		_ = conn.WriteJSON(map[string]any{"type": "CMD", "cmd": "click"})
	}
	readType(t, conn, protocol.TypeAck)
	readType(t, conn, protocol.TypeAck)
	e := readType(t, conn, protocol.TypeError)
	if e["code"] != protocol.ErrRateLimit {
		t.Fatalf("error: %v", e)
	}
	if h.Stats().RateLimited != 1 {
		t.Fatalf("stats: %+v", h.Stats())
	}
}

func TestHub_StoppedEngine(t *testing.T) {
	h, fe := newTestHub(Config{})
	fe.err = engine.ErrStopped
	conn := dial(t, h)
	readType(t, conn, protocol.TypeWelcome)

	_ = conn.WriteJSON(map[string]any{"type": "CMD", "cmd": "click"})
	e := readType(t, conn, protocol.TypeError)
	if e["code"] != protocol.ErrStopped {
		t.Fatalf("error: %v", e)
	}
}
