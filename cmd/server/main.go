package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"kingdomkeep.app/internal/persistence/indexdb"
	persistlog "kingdomkeep.app/internal/persistence/log"
	"kingdomkeep.app/internal/persistence/savestore"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/engine"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
	"kingdomkeep.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		seed       = flag.Int64("seed", 0, "raid rng seed (0 = time based)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		storeKind  = flag.String("store", "file", "save store: file or sql (sql reads DB_DIALECT, DB_SQLITE_PATH, DB_POSTGRES_DSN)")
		journal    = flag.Bool("journal", true, "write the event journal under <data>/journal")
		disableDB  = flag.Bool("disable_db", false, "disable the raid ledger index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(ctx, *storeKind, *dataDir)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	// Optional: raid ledger (does not affect the simulation).
	var ledger *indexdb.SQLiteIndex
	if !*disableDB {
		ledger, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "ledger.sqlite"))
		if err != nil {
			logger.Fatalf("open ledger: %v", err)
		}
		defer ledger.Close()
		if err := ledger.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("ledger: upsert catalogs: %v", err)
		}
	}

	var jr *persistlog.Journal
	if *journal {
		jr = persistlog.NewJournal(*dataDir)
		defer jr.Close()
	}

	rs := *seed
	if rs == 0 {
		rs = time.Now().UnixNano()
	}
	k := kingdom.New(cats, tune, kingdom.NewRand(rs), time.Now())

	rep := engine.Restore(ctx, k, store, time.Now(), log.New(os.Stdout, "[restore] ", log.LstdFlags|log.Lmicroseconds))
	if rep.Applied {
		logger.Printf("welcome back: away %s", rep.Elapsed.Round(time.Second))
	}

	hub := ws.NewHub(ws.DefaultConfig(), cats, tune, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	opts := engine.Options{
		Store:    store,
		Logger:   log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
		Listener: hub,
	}
	// Typed nils must not reach the interfaces.
	if jr != nil {
		opts.Journal = jr
	}
	if ledger != nil {
		opts.Ledger = ledger
	}
	eng := engine.New(engine.ConfigFromTuning(tune), k, opts)
	hub.Bind(eng)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, eng, hub, ledger)
	})

	enableAdminHTTP := envBool("KK_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("KK_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			var resp struct {
				State       kingdom.State       `json:"state"`
				Affordances kingdom.Affordances `json:"affordances"`
				Stats       engine.Stats        `json:"stats"`
			}
			if err := eng.Query(ctx2, func(k *kingdom.Kingdom) {
				resp.State = k.Snapshot()
				resp.Affordances = k.Affordances()
			}); err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			resp.Stats = eng.Stats()
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			var saveErr error
			err := eng.Query(ctx2, func(*kingdom.Kingdom) { saveErr = eng.Save(ctx2) })
			if err == nil {
				err = saveErr
			}
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		})
		mux.HandleFunc("/admin/v1/raids", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if ledger == nil {
				http.Error(rw, "ledger disabled", http.StatusNotFound)
				return
			}
			limit := 50
			if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
				limit = v
			}
			rows, err := ledger.RecentRaids(r.Context(), limit)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"raids": rows})
		})
	} else {
		logger.Printf("admin endpoints disabled (KK_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", hub.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		hub.Close()
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	// The engine writes its final save on the way out.
	<-runDone
}

func openStore(ctx context.Context, kind, dataDir string) (savestore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "file":
		return savestore.NewFileStore(dataDir), nil
	case "sql":
		return savestore.OpenSQLFromEnv(ctx, filepath.Join(dataDir, "kingdom.sqlite"))
	default:
		return nil, fmt.Errorf("unknown store %q (want file or sql)", kind)
	}
}

func writeMetrics(rw http.ResponseWriter, eng *engine.Engine, hub *ws.Hub, ledger *indexdb.SQLiteIndex) {
	s := eng.Stats()
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP kingdom_engine_samples_total Sampler passes.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_engine_samples_total counter\n")
	fmt.Fprintf(rw, "kingdom_engine_samples_total %d\n", s.Samples)

	fmt.Fprintf(rw, "# HELP kingdom_engine_seconds_total Simulated economy seconds.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_engine_seconds_total counter\n")
	fmt.Fprintf(rw, "kingdom_engine_seconds_total{result=%q} %d\n", "processed", s.SecondsProcessed)
	fmt.Fprintf(rw, "kingdom_engine_seconds_total{result=%q} %d\n", "dropped", s.SecondsDropped)

	fmt.Fprintf(rw, "# HELP kingdom_engine_commands_total Commands applied.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_engine_commands_total counter\n")
	fmt.Fprintf(rw, "kingdom_engine_commands_total %d\n", s.Commands)

	fmt.Fprintf(rw, "# HELP kingdom_engine_saves_total Save attempts.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_engine_saves_total counter\n")
	fmt.Fprintf(rw, "kingdom_engine_saves_total{result=%q} %d\n", "ok", s.Saves)
	fmt.Fprintf(rw, "kingdom_engine_saves_total{result=%q} %d\n", "error", s.SaveErrors)

	h := hub.Stats()
	fmt.Fprintf(rw, "# HELP kingdom_ws_connections Current websocket clients.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_ws_connections gauge\n")
	fmt.Fprintf(rw, "kingdom_ws_connections %d\n", h.Connections)

	fmt.Fprintf(rw, "# HELP kingdom_ws_messages_total Websocket message counters.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_ws_messages_total counter\n")
	fmt.Fprintf(rw, "kingdom_ws_messages_total{kind=%q} %d\n", "accepted", h.Accepted)
	fmt.Fprintf(rw, "kingdom_ws_messages_total{kind=%q} %d\n", "dropped", h.Dropped)
	fmt.Fprintf(rw, "kingdom_ws_messages_total{kind=%q} %d\n", "rate_limited", h.RateLimited)
	fmt.Fprintf(rw, "kingdom_ws_messages_total{kind=%q} %d\n", "bad_request", h.BadRequests)
	fmt.Fprintf(rw, "kingdom_ws_messages_total{kind=%q} %d\n", "state", h.StatesPushed)

	if ledger == nil {
		return
	}
	l := ledger.Stats()
	fmt.Fprintf(rw, "# HELP kingdom_ledger_queue_depth Raid ledger queue depth.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_ledger_queue_depth gauge\n")
	fmt.Fprintf(rw, "kingdom_ledger_queue_depth %d\n", l.QueueDepth)
	fmt.Fprintf(rw, "# HELP kingdom_ledger_raids_total Raid ledger writes.\n")
	fmt.Fprintf(rw, "# TYPE kingdom_ledger_raids_total counter\n")
	fmt.Fprintf(rw, "kingdom_ledger_raids_total{result=%q} %d\n", "written", l.WrittenRaidTotal)
	fmt.Fprintf(rw, "kingdom_ledger_raids_total{result=%q} %d\n", "dropped", l.DropRaidTotal)
	fmt.Fprintf(rw, "kingdom_ledger_raids_total{result=%q} %d\n", "error", l.WriteErrTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
