package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"kingdomkeep.app/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		every  = flag.Duration("every", 250*time.Millisecond, "minimum delay between commands")
		prefer = flag.String("build", "farm,sawmill,quarry,workshop,tower,market", "build order (comma separated type ids)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	p := &planner{}
	for _, id := range strings.Split(*prefer, ",") {
		if id = strings.TrimSpace(id); id != "" {
			p.prefer = append(p.prefer, id)
		}
	}

	var (
		seq     int
		last    time.Time
		pending bool
	)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			p.grid = w.Grid
			logger.Printf("WELCOME session=%s grid=%dx%d max_waves=%d", w.SessionID, w.Grid.Cols, w.Grid.Rows, w.MaxWaves)

		case protocol.TypeState:
			if pending || time.Since(last) < *every {
				continue
			}
			var s protocol.StateMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			if s.State.Won || s.State.Lost {
				logger.Printf("game over (won=%t) at wave %d", s.State.Won, s.State.Raid.Wave)
				return
			}
			c, ok := p.next(s)
			if !ok {
				continue
			}
			seq++
			c.ID = fmt.Sprintf("bot_%d", seq)
			if err := conn.WriteJSON(c); err != nil {
				return
			}
			last, pending = time.Now(), true

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			pending = false
			if a.Cmd != "click" {
				logger.Printf("%s accepted=%t code=%s", a.Cmd, a.Accepted, a.Code)
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			pending = false
			logger.Printf("ERROR %s: %s", e.Code, e.Message)

		case protocol.TypeLog:
			var l protocol.LogMsg
			if err := json.Unmarshal(msg, &l); err == nil {
				logger.Printf("log: %s", l.Event.Text)
			}
		}
	}
}
