package coordinator

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// Notifier maintains one bounded notification channel per registered
// runner and fans out commit deltas to the affected runners. A full
// channel blocks the sender, back-pressuring the control loop: the
// notifier never drops a delta for a connected runner.
type Notifier struct {
	mu       sync.Mutex
	channels map[string]chan shardtypes.Delta
	buffer   int
	log      logrus.FieldLogger
}

// NewNotifier creates a Notifier whose per-runner channels have the given
// buffer capacity.
func NewNotifier(buffer int, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		channels: make(map[string]chan shardtypes.Delta),
		buffer:   buffer,
		log:      log,
	}
}

// Register opens addr's notification channel, or recreates it if addr was
// previously disconnected. current is the runner's full present assignment,
// delivered as the initial message so that a re-registering runner can
// rebuild its owned set without a separate snapshot call.
func (n *Notifier) Register(addr shardtypes.RunnerAddress, current []shardtypes.ShardID) <-chan shardtypes.Delta {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := addr.String()
	if old, ok := n.channels[key]; ok {
		close(old)
	}
	ch := make(chan shardtypes.Delta, n.buffer)
	n.channels[key] = ch
	if len(current) > 0 {
		ch <- shardtypes.Delta{Runner: addr, Added: current}
	}
	return ch
}

// Channel returns addr's open notification channel, if any. Used by the
// transport layer to serve the Notifications stream.
func (n *Notifier) Channel(addr shardtypes.RunnerAddress) (<-chan shardtypes.Delta, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.channels[addr.String()]
	return ch, ok
}

// Unregister closes addr's channel. Pending messages are dropped with it;
// a re-registering runner gets the full current assignment instead.
func (n *Notifier) Unregister(addr shardtypes.RunnerAddress) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := addr.String()
	if ch, ok := n.channels[key]; ok {
		close(ch)
		delete(n.channels, key)
	}
}

// Notify pushes each non-empty delta to its runner's channel, in the order
// given. If a delta's runner is not currently connected the delta is
// dropped; there is nothing to back-pressure. Call order here is commit
// order, which is what preserves per-runner notification ordering.
func (n *Notifier) Notify(deltas []shardtypes.Delta) {
	for _, d := range deltas {
		if d.IsEmpty() {
			continue
		}
		n.mu.Lock()
		ch, ok := n.channels[d.Runner.String()]
		n.mu.Unlock()
		if !ok {
			n.log.WithField("runner", d.Runner.String()).Debug("notifier: runner not connected, dropping delta")
			continue
		}
		ch <- d
	}
}

// Close closes every open channel, used during manager shutdown.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key, ch := range n.channels {
		close(ch)
		delete(n.channels, key)
	}
}
