package coordinator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/shardmgr/internal/storage"
)

// maxPersistBackoff caps the exponential retry backoff.
const maxPersistBackoff = 30 * time.Second

// Persister mirrors committed state into the storage contract. Writes are
// sequential: Enqueue hands the snapshot to a single worker over an
// unbuffered channel, so a write in flight blocks the next commit and the
// persisted snapshot sequence stays a prefix of the in-memory commit
// sequence. A failed write is retried with exponential backoff until it
// lands; each attempt's outcome is reported through onResult so the control
// loop can track its durable-version watermark and pause rebalancing while
// the backlog grows.
type Persister struct {
	contract storage.Contract
	backoff  time.Duration
	log      logrus.FieldLogger
	onResult func(version uint64, err error)

	ch   chan storage.State
	stop chan struct{}
	done chan struct{}
}

// NewPersister creates a Persister writing through contract. backoff is the
// starting retry delay after a failed write; onResult is invoked from the
// worker goroutine once per attempt, with err nil on success.
func NewPersister(contract storage.Contract, backoff time.Duration, onResult func(version uint64, err error), log logrus.FieldLogger) *Persister {
	return &Persister{
		contract: contract,
		backoff:  backoff,
		log:      log,
		onResult: onResult,
		ch:       make(chan storage.State),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the write worker.
func (p *Persister) Start() {
	go p.run()
}

// Enqueue hands st to the worker, blocking while a previous write is still
// in flight. Returns false if the persister has been stopped.
func (p *Persister) Enqueue(st storage.State) bool {
	select {
	case p.ch <- st:
		return true
	case <-p.stop:
		return false
	}
}

// Stop tells the worker to exit and waits for it. A write attempt already
// in progress completes; a write that has failed is not retried after
// Stop.
func (p *Persister) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Persister) run() {
	defer close(p.done)
	for {
		select {
		case st := <-p.ch:
			p.write(st)
		case <-p.stop:
			// One last drain so a snapshot enqueued just before Stop
			// still gets one write attempt.
			select {
			case st := <-p.ch:
				p.write(st)
			default:
			}
			return
		}
	}
}

// write persists st, retrying with exponential backoff until it succeeds or
// the persister is stopped.
func (p *Persister) write(st storage.State) {
	delay := p.backoff
	for {
		err := p.contract.SaveState(st)
		if err == nil {
			p.onResult(st.Version, nil)
			PersistedVersionGauge.Set(float64(st.Version))
			return
		}

		PersistFailuresTotal.Inc()
		p.log.WithError(err).WithField("version", st.Version).Warn("persister: save failed, retrying")
		p.onResult(st.Version, Persistence("SaveState", err))

		select {
		case <-time.After(delay):
		case <-p.stop:
			return
		}
		delay *= 2
		if delay > maxPersistBackoff {
			delay = maxPersistBackoff
		}
	}
}
