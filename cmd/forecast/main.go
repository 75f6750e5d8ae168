package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"kingdomkeep.app/internal/persistence/snapshot"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/engine"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

// forecast fast-forwards a kingdom headlessly through the real tick driver
// and prints every log event it produces.
func main() {
	var (
		savePath   = flag.String("save", "", "save to start from (.json or zstd; empty = new kingdom)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 1, "raid rng seed")
		duration   = flag.Duration("for", 30*time.Minute, "simulated time to run")
		step       = flag.Duration("step", 100*time.Millisecond, "sampler step")
		clicks     = flag.Int("clicks", 0, "castle clicks per simulated second")
		outPath    = flag.String("out", "", "write the resulting save here (optional)")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fail("load catalogs", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = *configDir + "/tuning.yaml"
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		fail("load tuning", err)
	}

	var doc *snapshot.DocumentV1
	if p := strings.TrimSpace(*savePath); p != "" {
		d, applied, err := readDocument(p)
		if err != nil {
			fail("read save", err)
		}
		if len(applied) > 0 {
			fmt.Printf("migrated: %s\n", strings.Join(applied, ", "))
		}
		doc = &d
	}

	res, err := run(runConfig{
		Cats:     cats,
		Tune:     tune,
		Seed:     *seed,
		Doc:      doc,
		Duration: *duration,
		Step:     *step,
		Clicks:   *clicks,
	}, os.Stdout)
	if err != nil {
		fail("forecast", err)
	}

	st := res.State
	fmt.Printf("after %s: wave=%d gold=%.1f wood=%.1f stone=%.1f buildings=%d won=%t lost=%t seconds=%d dropped=%d\n",
		*duration, st.Raid.Wave, st.Resources.Gold, st.Resources.Wood, st.Resources.Stone,
		len(st.Buildings), st.Won, st.Lost, res.Stats.SecondsProcessed, res.Stats.SecondsDropped)

	if *outPath != "" {
		if err := snapshot.WriteFile(*outPath, res.Doc); err != nil {
			fail("write save", err)
		}
		fmt.Printf("wrote %s\n", *outPath)
	}
}

type runConfig struct {
	Cats     *catalogs.Catalogs
	Tune     tuning.Tuning
	Seed     int64
	Doc      *snapshot.DocumentV1
	Duration time.Duration
	Step     time.Duration
	Clicks   int
}

type result struct {
	State kingdom.State
	Doc   snapshot.DocumentV1
	Stats engine.Stats
	Logs  int
}

// stepClock is advanced by the forecast loop only.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// printer implements engine.Journal.
type printer struct {
	w     io.Writer
	start time.Time
	n     int
}

func (p *printer) WriteEvent(ev kingdom.LogEvent) error {
	p.n++
	_, err := fmt.Fprintf(p.w, "[%8s] %-10s %s\n", ev.At.Sub(p.start).Round(time.Second), ev.Kind, ev.Text)
	return err
}

func run(cfg runConfig, out io.Writer) (result, error) {
	if cfg.Step <= 0 {
		cfg.Step = 100 * time.Millisecond
	}
	start := time.UnixMilli(1_700_000_000_000)
	if cfg.Doc != nil && cfg.Doc.LastUpdate > 0 {
		start = time.UnixMilli(cfg.Doc.LastUpdate)
	}
	clock := &stepClock{now: start}

	k := kingdom.New(cfg.Cats, cfg.Tune, kingdom.NewRand(cfg.Seed), start)
	if cfg.Doc != nil {
		if _, err := k.Import(*cfg.Doc); err != nil {
			return result{}, err
		}
	}
	k.Start(start)

	pr := &printer{w: out, start: start}
	ecfg := engine.ConfigFromTuning(cfg.Tune)
	e := engine.New(ecfg, k, engine.Options{
		Clock:   clock,
		Logger:  log.New(io.Discard, "", 0),
		Journal: pr,
	})

	var sinceClick time.Duration
	clickEvery := time.Duration(0)
	if cfg.Clicks > 0 {
		clickEvery = time.Second / time.Duration(cfg.Clicks)
	}
	for elapsed := time.Duration(0); elapsed < cfg.Duration && !k.Finished(); elapsed += cfg.Step {
		now := clock.Advance(cfg.Step)
		if clickEvery > 0 {
			sinceClick += cfg.Step
			for sinceClick >= clickEvery {
				sinceClick -= clickEvery
				e.Apply(kingdom.Click{})
			}
		}
		e.Sample(now)
	}

	return result{
		State: k.Snapshot(),
		Doc:   k.Export(clock.Now()),
		Stats: e.Stats(),
		Logs:  pr.n,
	}, nil
}

func readDocument(path string) (snapshot.DocumentV1, []string, error) {
	if strings.HasSuffix(path, ".json") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return snapshot.DocumentV1{}, nil, err
		}
		return snapshot.Unmarshal(raw)
	}
	return snapshot.ReadFile(path)
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}
