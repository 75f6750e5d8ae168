package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"kingdomkeep.app/internal/protocol"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/engine"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

// Engine is the part of the simulation engine the hub drives.
type Engine interface {
	Submit(ctx context.Context, cmd kingdom.Command) (kingdom.Result, error)
	RecentLogs() []kingdom.LogEvent
}

type Config struct {
	// Commands per second and burst allowed per connection.
	RateLimit rate.Limit
	Burst     int
	// Buffered non-state messages per connection; extra effects and logs are dropped.
	QueueSize     int
	SubmitTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{RateLimit: 20, Burst: 40, QueueSize: 64, SubmitTimeout: 5 * time.Second}
}

type Stats struct {
	Connections  int    `json:"connections"`
	Accepted     uint64 `json:"accepted_total"`
	Dropped      uint64 `json:"dropped_total"`
	RateLimited  uint64 `json:"rate_limited_total"`
	BadRequests  uint64 `json:"bad_request_total"`
	StatesPushed uint64 `json:"states_pushed_total"`
}

// Hub fans engine updates out to websocket clients and feeds their
// commands back into the engine. It implements engine.Listener.
type Hub struct {
	cfg  Config
	cats *catalogs.Catalogs
	tune tuning.Tuning
	log  *log.Logger

	upgrader websocket.Upgrader

	eng atomic.Pointer[engineRef]

	mu        sync.Mutex
	clients   map[string]*client
	seq       uint64
	lastState []byte
	closed    bool

	accepted     atomic.Uint64
	dropped      atomic.Uint64
	rateLimited  atomic.Uint64
	badRequests  atomic.Uint64
	statesPushed atomic.Uint64
}

type engineRef struct{ Engine }

type client struct {
	id   string
	conn *websocket.Conn
	out  chan []byte

	// Latest-wins STATE slot.
	stateMu sync.Mutex
	state   []byte
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(cfg Config, cats *catalogs.Catalogs, tune tuning.Tuning, logger *log.Logger) *Hub {
	def := DefaultConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Hub{
		cfg:     cfg,
		cats:    cats,
		tune:    tune,
		log:     logger,
		clients: map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Bind sets the engine commands are submitted to. The hub is usually
// created before the engine so it can be passed as its listener.
func (h *Hub) Bind(e Engine) { h.eng.Store(&engineRef{e}) }

func (h *Hub) engine() Engine {
	if r := h.eng.Load(); r != nil {
		return r.Engine
	}
	return nil
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	return Stats{
		Connections:  n,
		Accepted:     h.accepted.Load(),
		Dropped:      h.dropped.Load(),
		RateLimited:  h.rateLimited.Load(),
		BadRequests:  h.badRequests.Load(),
		StatesPushed: h.statesPushed.Load(),
	}
}

// OnState implements engine.Listener.
func (h *Hub) OnState(v engine.View) {
	h.mu.Lock()
	h.seq++
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Seq:             h.seq,
		State:           v.State,
		Affordances:     v.Affordances,
		DamageReduction: v.DamageReduction,
		StealReduction:  v.StealReduction,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.mu.Unlock()
		h.log.Printf("marshal state: %v", err)
		return
	}
	h.lastState = b
	clients := h.snapshotClients()
	h.mu.Unlock()

	for _, c := range clients {
		c.setState(b)
	}
	h.statesPushed.Add(1)
}

// OnEffect implements engine.Listener.
func (h *Hub) OnEffect(effects []kingdom.Effect) {
	h.broadcast(protocol.EffectMsg{Type: protocol.TypeEffect, ProtocolVersion: protocol.Version, Effects: effects})
}

// OnLog implements engine.Listener.
func (h *Hub) OnLog(ev kingdom.LogEvent) {
	h.broadcast(protocol.LogMsg{Type: protocol.TypeLog, ProtocolVersion: protocol.Version, Event: ev})
}

func (h *Hub) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("marshal: %v", err)
		return
	}
	h.mu.Lock()
	clients := h.snapshotClients()
	h.mu.Unlock()
	for _, c := range clients {
		select {
		case c.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// snapshotClients must be called with h.mu held.
func (h *Hub) snapshotClients() []*client {
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Close disconnects every client. Hijacked connections are not closed by
// http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.snapshotClients()
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		c.cancel()
		_ = c.conn.Close()
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, ok := h.join(conn)
		if !ok {
			return
		}
		defer h.leave(c)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.writeLoop(c)
		}()

		h.readLoop(c)
		c.cancel()
		wg.Wait()
	}
}

func (h *Hub) join(conn *websocket.Conn) (*client, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		out:    make(chan []byte, h.cfg.QueueSize),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	var logs []kingdom.LogEvent
	if e := h.engine(); e != nil {
		logs = e.RecentLogs()
	}
	if logs == nil {
		logs = []kingdom.LogEvent{}
	}
	ox, oy := h.tune.OriginCell()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.id,
		Grid:            protocol.Grid{Rows: h.tune.GridRows, Cols: h.tune.GridCols, OriginX: ox, OriginY: oy},
		Catalogs:        protocol.CatalogDigests{Buildings: h.cats.Buildings.Digest, Buffs: h.cats.Buffs.Digest},
		Buildings:       make([]catalogs.BuildingType, 0, len(h.cats.Buildings.IDs)),
		Buffs:           make([]catalogs.BuffDef, 0, len(h.cats.Buffs.IDs)),
		MaxWaves:        h.tune.MaxWaves,
		RecentLogs:      logs,
	}
	for _, id := range h.cats.Buildings.IDs {
		welcome.Buildings = append(welcome.Buildings, h.cats.Buildings.Defs[id])
	}
	for _, id := range h.cats.Buffs.IDs {
		welcome.Buffs = append(welcome.Buffs, h.cats.Buffs.Defs[id])
	}

	// Register and send under the lock so the client cannot miss a
	// state published between the welcome and registration.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		cancel()
		return nil, false
	}
	if err := writeJSON(conn, welcome); err != nil {
		cancel()
		return nil, false
	}
	if h.lastState != nil {
		c.state = h.lastState
		c.wake <- struct{}{}
	}
	h.clients[c.id] = c
	return c, true
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.cancel()
}

func (c *client) setState(b []byte) {
	c.stateMu.Lock()
	c.state = b
	c.stateMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) takeState() []byte {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	b := c.state
	c.state = nil
	return b
}

func (h *Hub) writeLoop(c *client) {
	write := func(b []byte) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			c.cancel()
			_ = c.conn.Close()
			return false
		}
		return true
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
			if b := c.takeState(); b != nil && !write(b) {
				return
			}
		case b := <-c.out:
			if !write(b) {
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	limiter := rate.NewLimiter(h.cfg.RateLimit, h.cfg.Burst)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeCmd {
			h.badRequests.Add(1)
			h.reply(c, protocol.NewError("", protocol.ErrProtoBadRequest, "expected CMD"))
			continue
		}
		m, cmd, err := protocol.DecodeCmd(msg)
		if err != nil {
			h.badRequests.Add(1)
			h.reply(c, protocol.NewError(m.ID, protocol.ErrBadRequest, err.Error()))
			continue
		}
		if !limiter.Allow() {
			h.rateLimited.Add(1)
			h.reply(c, protocol.NewError(m.ID, protocol.ErrRateLimit, "too many commands"))
			continue
		}
		e := h.engine()
		if e == nil {
			h.reply(c, protocol.NewError(m.ID, protocol.ErrBusy, "engine not ready"))
			continue
		}
		ctx, cancel := context.WithTimeout(c.ctx, h.cfg.SubmitTimeout)
		res, err := e.Submit(ctx, cmd)
		cancel()
		switch {
		case err == nil:
			if res.Accepted {
				h.accepted.Add(1)
			}
			h.reply(c, protocol.NewAck(m.ID, m.Cmd, res))
		case errors.Is(err, engine.ErrStopped):
			h.reply(c, protocol.NewError(m.ID, protocol.ErrStopped, "kingdom stopped"))
		case errors.Is(err, context.DeadlineExceeded):
			h.reply(c, protocol.NewError(m.ID, protocol.ErrBusy, "engine busy"))
		case errors.Is(err, context.Canceled):
			return
		default:
			h.log.Printf("submit %s: %v", m.Cmd, err)
			h.reply(c, protocol.NewError(m.ID, protocol.ErrInternal, "internal error"))
		}
	}
}

// reply queues a direct answer. Unlike broadcasts it waits for room.
func (h *Hub) reply(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("marshal reply: %v", err)
		return
	}
	select {
	case c.out <- b:
	case <-c.ctx.Done():
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
