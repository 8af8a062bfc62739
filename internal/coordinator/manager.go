package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/shardmgr/internal/shardtypes"
	"github.com/dreamware/shardmgr/internal/storage"
)

// ErrStopped is returned by command methods once the manager has shut down
// and no longer accepts events.
var ErrStopped = errors.New("shard manager stopped")

// Clock supplies the manager's notion of now. Injected so tests can drive
// liveness decisions without sleeping through real thresholds.
type Clock func() time.Time

// Config carries the manager's tunables. Zero fields are replaced by the
// defaults documented per field.
type Config struct {
	// TotalShards is the fixed shard count N. Shard ids are [1, N].
	TotalShards int

	// RebalanceDebounce is the commit-coalescing window: the first
	// rebalance trigger arms a timer, further triggers within the window
	// coalesce into the same round. Default 300ms.
	RebalanceDebounce time.Duration

	// RebalanceInterval, when non-zero, drives a periodic ticker inside the
	// control loop; each tick schedules a debounced rebalance, as a
	// drift-correction nudge.
	// Default 0 (disabled): events alone trigger rebalancing.
	RebalanceInterval time.Duration

	// MaxMovesPerRound bounds how many shards one rebalance round vacates.
	// Default 256.
	MaxMovesPerRound int

	// LivenessThreshold is how long a runner may stay silent before the
	// prober starts pinging it. Default 15s.
	LivenessThreshold time.Duration

	// ProbeInterval is how often the prober wakes up. Default 5s.
	ProbeInterval time.Duration

	// PingTimeout is the deadline for a single health ping. Default 2s.
	PingTimeout time.Duration

	// ProbeConcurrency caps parallel pings within a probe pass. Default 16.
	ProbeConcurrency int

	// MaxStrikes is how many consecutive failed pings evict a runner.
	// Default 3.
	MaxStrikes int

	// PersistRetryBackoff is the starting delay between persistence
	// retries; it doubles per attempt up to a cap. Default 100ms.
	PersistRetryBackoff time.Duration

	// PersistBacklogBound is how many unpersisted commits may accumulate
	// before rebalancing pauses. Default 1.
	PersistBacklogBound int

	// NotificationBuffer is the per-runner notification channel capacity.
	// Default 16.
	NotificationBuffer int

	// Clock overrides the time source. Default time.Now.
	Clock Clock
}

func (c Config) withDefaults() Config {
	if c.RebalanceDebounce <= 0 {
		c.RebalanceDebounce = 300 * time.Millisecond
	}
	if c.MaxMovesPerRound <= 0 {
		c.MaxMovesPerRound = 256
	}
	if c.LivenessThreshold <= 0 {
		c.LivenessThreshold = 15 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = 16
	}
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = 3
	}
	if c.PersistRetryBackoff <= 0 {
		c.PersistRetryBackoff = 100 * time.Millisecond
	}
	if c.PersistBacklogBound <= 0 {
		c.PersistBacklogBound = 1
	}
	if c.NotificationBuffer <= 0 {
		c.NotificationBuffer = 16
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type eventKind int

const (
	evRegister eventKind = iota
	evUnregister
	evHeartbeat
	evHealthTick
	evStrike
	evPersisted
	evPersistFailed
	evTick
)

type event struct {
	kind    eventKind
	addr    shardtypes.RunnerAddress
	version int64 // runner software version, evRegister only

	persistVers uint64 // evPersisted only

	// reply, when non-nil, receives the command's outcome. Runner-facing
	// commands block on it; internally injected events leave it nil.
	reply chan error
}

// Manager is the shard manager: it serializes register / unregister /
// heartbeat / health / persistence events through a single consumer
// goroutine that holds exclusive mutation authority over the state store,
// runs debounced rebalance rounds through the pure engine, and fans
// committed deltas out to the persister and then the notifier.
type Manager struct {
	cfg       Config
	store     *Store
	engine    *Engine
	notifier  *Notifier
	persister *Persister
	prober    *Prober
	contract  storage.Contract
	log       logrus.FieldLogger

	events chan event
	quit   chan struct{}

	// Loop-owned, touched only from Run's goroutine.
	persistedVers     uint64
	debounce          *time.Timer
	rebalanceDeferred bool
	proberCtx         context.Context
}

// NewManager wires a Manager from its collaborators. Run must be called
// before any command method.
func NewManager(cfg Config, contract storage.Contract, pinger Pinger, log logrus.FieldLogger) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:      cfg,
		store:    NewStore(cfg.TotalShards),
		engine:   NewEngine(cfg.MaxMovesPerRound),
		notifier: NewNotifier(cfg.NotificationBuffer, log),
		contract: contract,
		log:      log,
		events:   make(chan event, 1024),
		quit:     make(chan struct{}),
	}
	m.persister = NewPersister(contract, cfg.PersistRetryBackoff, m.onPersistResult, log)
	m.prober = NewProber(
		pinger,
		cfg.ProbeInterval, cfg.PingTimeout, cfg.ProbeConcurrency,
		func() { _ = m.inject(event{kind: evHealthTick}) },
		func(addr shardtypes.RunnerAddress) { _ = m.inject(event{kind: evHeartbeat, addr: addr}) },
		func(addr shardtypes.RunnerAddress) { _ = m.inject(event{kind: evStrike, addr: addr}) },
		log,
	)
	return m
}

// Register enqueues a registration for the runner at addr running the given
// software version. Idempotent on (address, version).
func (m *Manager) Register(addr shardtypes.RunnerAddress, version int64) error {
	return m.command(event{kind: evRegister, addr: addr, version: version})
}

// Unregister enqueues removal of the runner at addr. The runner's shards
// are unassigned in the same commit that removes its record.
func (m *Manager) Unregister(addr shardtypes.RunnerAddress) error {
	return m.command(event{kind: evUnregister, addr: addr})
}

// Heartbeat refreshes addr's last-heartbeat timestamp. Rejected with a
// KindClientMisuse error if addr is not registered.
func (m *Manager) Heartbeat(addr shardtypes.RunnerAddress) error {
	return m.command(event{kind: evHeartbeat, addr: addr})
}

// GetAssignments returns a snapshot of the full shard -> owner map.
func (m *Manager) GetAssignments() shardtypes.AssignmentMap {
	return m.store.AllAssignments()
}

// Runners returns a snapshot of the registered runner set.
func (m *Manager) Runners() []shardtypes.RunnerRecord {
	return m.store.AllRunners()
}

// Notifications returns addr's notification channel, or false if addr has
// no open channel (not registered, or already disconnected).
func (m *Manager) Notifications(addr shardtypes.RunnerAddress) (<-chan shardtypes.Delta, bool) {
	return m.notifier.Channel(addr)
}

// CommitVersion exposes the store's commit counter, mainly for tests and
// the transport's status endpoint.
func (m *Manager) CommitVersion() uint64 {
	return m.store.CommitVersion()
}

// command enqueues ev and blocks until the loop has applied it.
func (m *Manager) command(ev event) error {
	ev.reply = make(chan error, 1)
	if err := m.inject(ev); err != nil {
		return err
	}
	select {
	case err := <-ev.reply:
		return err
	case <-m.quit:
		return ErrStopped
	}
}

// inject enqueues ev without waiting for it to be applied.
func (m *Manager) inject(ev event) error {
	select {
	case <-m.quit:
		return ErrStopped
	default:
	}
	select {
	case m.events <- ev:
		return nil
	case <-m.quit:
		return ErrStopped
	}
}

// onPersistResult is the persister's callback, invoked once per write
// attempt from the persister goroutine.
func (m *Manager) onPersistResult(version uint64, err error) {
	if err != nil {
		_ = m.inject(event{kind: evPersistFailed})
		return
	}
	_ = m.inject(event{kind: evPersisted, persistVers: version})
}

// Run recovers persisted state, starts the persister and prober, and then
// drains the event intake until ctx is canceled or an invariant violation
// stops the loop. On shutdown it cancels the prober first, stops accepting
// events, drains the intake, persists any pending commit, and closes all
// notification channels. Run blocks; callers start it on its own goroutine
// and use the command methods from others.
func (m *Manager) Run(ctx context.Context) error {
	st, ok, err := m.contract.LoadState()
	if err != nil {
		return Persistence("LoadState", err)
	}
	if ok {
		m.store.LoadSnapshot(st.Runners, st.Assignments, st.Version)
		m.persistedVers = st.Version
		m.log.WithFields(logrus.Fields{
			"version": st.Version,
			"runners": len(st.Runners),
		}).Info("recovered persisted state")
		// Recovered runners are unverified until their first heartbeat;
		// their stale timestamps put them straight onto the probe list.
		m.updateGauges()
	}

	m.persister.Start()

	proberCtx, cancelProber := context.WithCancel(context.Background())
	m.proberCtx = proberCtx
	go m.prober.Run(proberCtx)

	var tickC <-chan time.Time
	if m.cfg.RebalanceInterval > 0 {
		ticker := time.NewTicker(m.cfg.RebalanceInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var fatal error
loop:
	for {
		var debounceC <-chan time.Time
		if m.debounce != nil {
			debounceC = m.debounce.C
		}
		select {
		case <-ctx.Done():
			break loop
		case ev := <-m.events:
			if err := m.handle(ev); err != nil {
				fatal = err
				break loop
			}
		case <-debounceC:
			m.debounce = nil
			if err := m.rebalanceRound(); err != nil {
				fatal = err
				break loop
			}
		case <-tickC:
			m.scheduleRebalance()
		}
	}

	cancelProber()
	close(m.quit)

drain:
	for {
		select {
		case ev := <-m.events:
			if fatal == nil {
				if err := m.handle(ev); err != nil {
					fatal = err
				}
			} else if ev.reply != nil {
				ev.reply <- ErrStopped
			}
		default:
			break drain
		}
	}

	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
	if fatal == nil && m.store.CommitVersion() > m.persistedVers {
		m.persister.Enqueue(m.snapshotState())
	}
	m.persister.Stop()
	m.notifier.Close()
	if fatal != nil {
		m.log.WithError(fatal).Error("shard manager stopped on invariant violation")
	} else {
		m.log.Info("shard manager stopped")
	}
	return fatal
}

// handle applies one event. A non-nil return is fatal and stops the loop.
func (m *Manager) handle(ev event) error {
	var replyErr error
	switch ev.kind {
	case evRegister:
		now := m.cfg.Clock().UnixNano()
		m.store.AddRunner(shardtypes.RunnerRecord{
			Address:       ev.addr,
			Version:       ev.version,
			RegisteredAt:  now,
			LastHeartbeat: now,
		})
		m.notifier.Register(ev.addr, m.store.AssignmentsForRunner(ev.addr))
		RegistrationsTotal.Inc()
		m.log.WithFields(logrus.Fields{
			"runner":  ev.addr.String(),
			"version": ev.version,
		}).Info("runner registered")
		m.updateGauges()
		m.persister.Enqueue(m.snapshotState())
		m.scheduleRebalance()

	case evUnregister:
		replyErr = m.removeRunner(ev.addr, "request")

	case evHeartbeat:
		if !m.store.TouchHeartbeat(ev.addr, m.cfg.Clock().UnixNano()) {
			replyErr = ClientMisuse("Heartbeat", "unknown runner %s", ev.addr)
		}

	case evHealthTick:
		m.probeStale()

	case evStrike:
		n := m.store.RecordStrike(ev.addr)
		if n < 0 {
			break // already removed
		}
		HealthStrikesTotal.Inc()
		m.log.WithFields(logrus.Fields{
			"runner":  ev.addr.String(),
			"strikes": n,
		}).Debug("health strike")
		if n >= m.cfg.MaxStrikes {
			m.log.WithFields(logrus.Fields{
				"runner":  ev.addr.String(),
				"strikes": n,
			}).Warn("evicting runner after max strikes")
			_ = m.removeRunner(ev.addr, "evicted")
		}

	case evPersisted:
		if ev.persistVers <= m.persistedVers {
			return Invariant("Persisted", "version %d not after watermark %d", ev.persistVers, m.persistedVers)
		}
		m.persistedVers = ev.persistVers
		if m.rebalanceDeferred {
			m.rebalanceDeferred = false
			m.scheduleRebalance()
		}

	case evPersistFailed:
		// The persister already logged and is backing off; the growing
		// backlog keeps rebalancing paused until a write lands.

	case evTick:
		m.scheduleRebalance()
	}

	if ev.reply != nil {
		ev.reply <- replyErr
	}
	return nil
}

// removeRunner removes addr's record and unassigns its shards in the same
// commit, then closes its notification channel. reason labels the
// unregistration metric: "request" or "evicted".
func (m *Manager) removeRunner(addr shardtypes.RunnerAddress, reason string) error {
	if !m.store.HasRunner(addr) {
		return ClientMisuse("Unregister", "unknown runner %s", addr)
	}
	m.notifier.Unregister(addr)
	deltas := m.store.RemoveRunner(addr)
	UnregistrationsTotal.WithLabelValues(reason).Inc()
	m.log.WithFields(logrus.Fields{
		"runner": addr.String(),
		"reason": reason,
		"shards": len(deltas),
	}).Info("runner removed")
	m.updateGauges()
	m.commitFanout(deltas)
	m.scheduleRebalance()
	return nil
}

// probeStale hands every runner whose heartbeat has lapsed past the
// liveness threshold to the prober for an async ping pass.
func (m *Manager) probeStale() {
	cutoff := m.cfg.Clock().Add(-m.cfg.LivenessThreshold).UnixNano()
	var stale []shardtypes.RunnerAddress
	for _, r := range m.store.AllRunners() {
		if r.LastHeartbeat < cutoff {
			stale = append(stale, r.Address)
		}
	}
	if len(stale) == 0 {
		return
	}
	go m.prober.Probe(m.proberCtx, stale)
}

// scheduleRebalance arms the debounce timer; triggers while the timer is
// already armed coalesce into the pending round.
func (m *Manager) scheduleRebalance() {
	if m.debounce != nil {
		return
	}
	m.debounce = time.NewTimer(m.cfg.RebalanceDebounce)
}

// rebalanceRound runs the engine twice, vacate then assign, commits the
// combined batch, and fans the delta out to the persister and notifier in
// that order. An invariant violation from the commit is returned and stops
// the loop.
func (m *Manager) rebalanceRound() error {
	if m.store.CommitVersion()-m.persistedVers > uint64(m.cfg.PersistBacklogBound) {
		m.rebalanceDeferred = true
		m.log.Debug("rebalance paused: unpersisted backlog over bound")
		return nil
	}

	snap := m.store.Snapshot()
	vacates := m.engine.Rebalance(snap)
	for _, mv := range vacates {
		snap.Assignments[mv.Shard] = shardtypes.RunnerAddress{}
	}
	assigns := m.engine.AssignUnassigned(snap)

	moves := make([]shardtypes.Move, 0, len(vacates)+len(assigns))
	moves = append(moves, vacates...)
	moves = append(moves, assigns...)
	if len(moves) == 0 {
		return nil
	}

	deltas, err := m.store.ApplyAssignments(moves)
	if err != nil {
		return err
	}
	RebalanceRoundsTotal.Inc()
	ShardMovesTotal.WithLabelValues("vacate").Add(float64(len(vacates)))
	ShardMovesTotal.WithLabelValues("assign").Add(float64(len(assigns)))
	m.log.WithFields(logrus.Fields{
		"vacated":  len(vacates),
		"assigned": len(assigns),
		"version":  m.store.CommitVersion(),
	}).Info("rebalance round committed")
	m.updateGauges()
	if len(deltas) > 0 {
		m.commitFanout(deltas)
	}
	return nil
}

// commitFanout hands the committed state to the persister, then the deltas
// to the notifier. The persister's unbuffered intake blocks while a write
// is in flight, which is what keeps persisted snapshots a prefix of the
// commit sequence; notification after persistence keeps per-runner streams
// in commit order.
func (m *Manager) commitFanout(deltas []shardtypes.Delta) {
	m.persister.Enqueue(m.snapshotState())
	m.notifier.Notify(deltas)
}

func (m *Manager) snapshotState() storage.State {
	return storage.State{
		Runners:     m.store.AllRunners(),
		Assignments: m.store.AllAssignments(),
		Version:     m.store.CommitVersion(),
	}
}

func (m *Manager) updateGauges() {
	snap := m.store.Snapshot()
	RunnersGauge.Set(float64(len(snap.Runners)))
	unassigned := 0
	for _, owner := range snap.Assignments {
		if owner.IsZero() {
			unassigned++
		}
	}
	UnassignedShardsGauge.Set(float64(unassigned))
	CommitVersionGauge.Set(float64(m.store.CommitVersion()))
}
