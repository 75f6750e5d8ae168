package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"kingdomkeep.app/internal/persistence/savestore"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

var (
	ErrStopped   = errors.New("engine stopped")
	ErrQueueFull = errors.New("command queue full")
)

type Config struct {
	SampleInterval    time.Duration
	SaveInterval      time.Duration
	MaxCatchUpSeconds int
	LogCapacity       int
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		SampleInterval:    t.SampleInterval(),
		SaveInterval:      t.SaveInterval(),
		MaxCatchUpSeconds: int(t.MaxCatchUpSeconds),
		LogCapacity:       t.LogCapacity,
	}
}

// Listener observes the kingdom. Calls come from a dispatcher goroutine,
// never from the simulation loop, so a listener may Submit commands.
type Listener interface {
	OnState(v View)
	OnEffect(effects []kingdom.Effect)
	OnLog(ev kingdom.LogEvent)
}

type Journal interface {
	WriteEvent(ev kingdom.LogEvent) error
}

type Ledger interface {
	RecordRaid(s kingdom.RaidSummary)
}

type Options struct {
	Clock    Clock
	Store    savestore.Store
	Logger   *log.Logger
	Listener Listener
	Journal  Journal
	Ledger   Ledger
}

type Stats struct {
	Samples          uint64
	SecondsProcessed uint64
	SecondsDropped   uint64
	Commands         uint64
	Saves            uint64
	SaveErrors       uint64
}

type commandReq struct {
	cmd  kingdom.Command
	resp chan kingdom.Result
}

type queryReq struct {
	fn   func(*kingdom.Kingdom)
	done chan struct{}
}

// Update is what the dispatcher hands to the listener: the latest state
// plus every effect and log event produced since the previous delivery.
// View is the kingdom state plus the derived values a client renders
// alongside it.
type View struct {
	State           kingdom.State
	Affordances     kingdom.Affordances
	DamageReduction float64
	StealReduction  float64
}

type Update struct {
	State   View
	Effects []kingdom.Effect
	Logs    []kingdom.LogEvent
}

const maxPendingEffects = 512

type Engine struct {
	cfg      Config
	k        *kingdom.Kingdom
	clock    Clock
	store    savestore.Store
	logger   *log.Logger
	listener Listener
	journal  Journal
	ledger   Ledger

	inbox   chan commandReq
	queries chan queryReq
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	running  atomic.Bool

	// Loop-owned.
	lastSample time.Time
	acc        time.Duration

	logMu  sync.Mutex
	recent []kingdom.LogEvent

	pendMu    sync.Mutex
	pending   Update
	hasState  bool
	updates   chan struct{}
	dispatchW sync.WaitGroup

	samples          atomic.Uint64
	secondsProcessed atomic.Uint64
	secondsDropped   atomic.Uint64
	commands         atomic.Uint64
	saves            atomic.Uint64
	saveErrors       atomic.Uint64
}

func New(cfg Config, k *kingdom.Kingdom, opts Options) *Engine {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 100 * time.Millisecond
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 5 * time.Second
	}
	if cfg.MaxCatchUpSeconds <= 0 {
		cfg.MaxCatchUpSeconds = 10
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = 20
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		cfg:        cfg,
		k:          k,
		clock:      opts.Clock,
		store:      opts.Store,
		logger:     opts.Logger,
		listener:   opts.Listener,
		journal:    opts.Journal,
		ledger:     opts.Ledger,
		inbox:      make(chan commandReq, 256),
		queries:    make(chan queryReq, 16),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		updates:    make(chan struct{}, 1),
		lastSample: opts.Clock.Now(),
	}
}

// Run starts the kingdom and drives it until ctx is canceled or Stop is
// called. Sampling, saving and command application all happen on the
// calling goroutine. A final save is attempted on the way out.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer close(e.done)

	now := e.clock.Now()
	e.k.Start(now)
	e.lastSample = now
	e.acc = 0
	e.publish()

	dctx, cancel := context.WithCancel(context.Background())
	e.dispatchW.Add(1)
	go e.dispatchLoop(dctx)
	defer func() {
		cancel()
		e.dispatchW.Wait()
	}()

	sampler := time.NewTicker(e.cfg.SampleInterval)
	defer sampler.Stop()
	saver := time.NewTicker(e.cfg.SaveInterval)
	defer saver.Stop()

	for {
		select {
		case <-ctx.Done():
			e.finalSave()
			return ctx.Err()
		case <-e.stop:
			e.finalSave()
			return nil
		case <-sampler.C:
			e.Sample(e.clock.Now())
		case <-saver.C:
			e.Save(ctx)
		case req := <-e.inbox:
			res := e.Apply(req.cmd)
			if req.resp != nil {
				req.resp <- res
			}
		case q := <-e.queries:
			q.fn(e.k)
			close(q.done)
		}
	}
}

func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stop) }) }

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Sample is one pass of the tick driver. The raid sees the raw fractional
// delta; the economy advances in whole seconds drawn from an accumulator,
// at most MaxCatchUpSeconds per call. Seconds beyond the cap are dropped.
// Must be called from the goroutine that owns the engine.
func (e *Engine) Sample(now time.Time) bool {
	dt := now.Sub(e.lastSample)
	if dt < 0 {
		dt = 0
	}
	e.lastSample = now
	e.samples.Add(1)

	changed := false
	if !e.k.Finished() {
		if e.k.AdvanceRaid(dt.Seconds(), now) {
			changed = true
		}

		e.acc += dt
		whole := int(e.acc / time.Second)
		e.acc -= time.Duration(whole) * time.Second
		n := whole
		if n > e.cfg.MaxCatchUpSeconds {
			e.secondsDropped.Add(uint64(n - e.cfg.MaxCatchUpSeconds))
			n = e.cfg.MaxCatchUpSeconds
		}
		for i := 0; i < n && !e.k.Finished(); i++ {
			e.k.StepSecond(now)
			e.secondsProcessed.Add(1)
			changed = true
		}
	}
	e.k.Touch(now)

	if changed {
		e.publish()
	}
	return changed
}

// Apply runs cmd against the kingdom immediately. Like Sample it must only
// be called from the owning goroutine; other goroutines use Submit.
func (e *Engine) Apply(cmd kingdom.Command) kingdom.Result {
	now := e.clock.Now()
	res := cmd.Apply(e.k, now)
	e.commands.Add(1)

	if _, ok := cmd.(kingdom.Reset); ok {
		e.acc = 0
		e.logger.Printf("kingdom reset")
		if e.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := e.store.Delete(ctx); err != nil {
				e.logger.Printf("delete save: %v", err)
			}
			cancel()
		}
	}
	if res.Accepted {
		e.publish()
	}
	return res
}

// Submit queues cmd for the loop and waits for its result.
func (e *Engine) Submit(ctx context.Context, cmd kingdom.Command) (kingdom.Result, error) {
	if e.stopped() {
		return kingdom.Result{}, ErrStopped
	}
	resp := make(chan kingdom.Result, 1)
	select {
	case e.inbox <- commandReq{cmd: cmd, resp: resp}:
	case <-ctx.Done():
		return kingdom.Result{}, ctx.Err()
	case <-e.done:
		return kingdom.Result{}, ErrStopped
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return kingdom.Result{}, ctx.Err()
	case <-e.done:
		return kingdom.Result{}, ErrStopped
	}
}

// Enqueue queues cmd without waiting for it to be applied.
func (e *Engine) Enqueue(cmd kingdom.Command) error {
	if e.stopped() {
		return ErrStopped
	}
	select {
	case e.inbox <- commandReq{cmd: cmd}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Query runs fn on the loop goroutine. fn must not retain k.
func (e *Engine) Query(ctx context.Context, fn func(k *kingdom.Kingdom)) error {
	if e.stopped() {
		return ErrStopped
	}
	q := queryReq{fn: fn, done: make(chan struct{})}
	select {
	case e.queries <- q:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Save persists the current kingdom. Failures are logged and counted.
// Outside the loop goroutine, call it through Query.
func (e *Engine) Save(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	doc := e.k.Export(e.clock.Now())
	if err := e.store.Save(ctx, doc); err != nil {
		e.saveErrors.Add(1)
		e.logger.Printf("save: %v", err)
		return err
	}
	e.saves.Add(1)
	return nil
}

func (e *Engine) finalSave() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.Save(ctx)
}

func (e *Engine) RecentLogs() []kingdom.LogEvent {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	return append([]kingdom.LogEvent(nil), e.recent...)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Samples:          e.samples.Load(),
		SecondsProcessed: e.secondsProcessed.Load(),
		SecondsDropped:   e.secondsDropped.Load(),
		Commands:         e.commands.Load(),
		Saves:            e.saves.Load(),
		SaveErrors:       e.saveErrors.Load(),
	}
}

// publish drains the kingdom's event buffers, records log events and
// hands the latest state to the dispatcher.
func (e *Engine) publish() {
	effects, logs := e.k.DrainEvents()
	for _, ev := range logs {
		e.record(ev)
	}
	if e.listener == nil {
		return
	}
	state := View{
		State:           e.k.Snapshot(),
		Affordances:     e.k.Affordances(),
		DamageReduction: e.k.DamageReduction(),
		StealReduction:  e.k.StealReduction(),
	}

	e.pendMu.Lock()
	e.pending.State = state
	e.hasState = true
	e.pending.Effects = append(e.pending.Effects, effects...)
	if over := len(e.pending.Effects) - maxPendingEffects; over > 0 {
		e.pending.Effects = append([]kingdom.Effect(nil), e.pending.Effects[over:]...)
	}
	e.pending.Logs = append(e.pending.Logs, logs...)
	e.pendMu.Unlock()

	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) record(ev kingdom.LogEvent) {
	e.logMu.Lock()
	e.recent = append(e.recent, ev)
	if over := len(e.recent) - e.cfg.LogCapacity; over > 0 {
		e.recent = append([]kingdom.LogEvent(nil), e.recent[over:]...)
	}
	e.logMu.Unlock()

	e.logger.Printf("%s: %s", ev.Kind, ev.Text)
	if e.journal != nil {
		if err := e.journal.WriteEvent(ev); err != nil {
			e.logger.Printf("journal: %v", err)
		}
	}
	if e.ledger != nil && ev.Raid != nil {
		e.ledger.RecordRaid(*ev.Raid)
	}
}

func (e *Engine) dispatchLoop(ctx context.Context) {
	defer e.dispatchW.Done()
	for {
		select {
		case <-e.updates:
			e.flush()
		case <-ctx.Done():
			e.flush()
			return
		}
	}
}

// flush delivers the pending update, if any, to the listener.
func (e *Engine) flush() {
	e.pendMu.Lock()
	u, ok := e.pending, e.hasState
	e.pending = Update{}
	e.hasState = false
	e.pendMu.Unlock()
	if !ok || e.listener == nil {
		return
	}

	e.listener.OnState(u.State)
	if len(u.Effects) > 0 {
		e.listener.OnEffect(u.Effects)
	}
	for _, ev := range u.Logs {
		e.listener.OnLog(ev)
	}
}
