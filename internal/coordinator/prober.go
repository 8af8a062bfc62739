package coordinator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// Pinger is the health-ping contract: a single liveness probe against one
// runner, honoring the caller-provided deadline on ctx.
type Pinger interface {
	Ping(ctx context.Context, addr shardtypes.RunnerAddress) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context, addr shardtypes.RunnerAddress) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context, addr shardtypes.RunnerAddress) error {
	return f(ctx, addr)
}

// Prober drives the health-check cycle. Run emits a tick at a fixed
// interval; the control loop answers each tick with the set of runners
// whose heartbeats have gone stale, and Probe pings those in parallel up to
// its concurrency cap. A ping is never retried within a tick: one failure
// is one strike, and strike accounting lives with the control loop, which
// evicts a runner once its consecutive strikes reach the configured
// maximum.
type Prober struct {
	pinger      Pinger
	interval    time.Duration
	timeout     time.Duration
	concurrency int
	log         logrus.FieldLogger

	onTick    func()
	onSuccess func(addr shardtypes.RunnerAddress)
	onFailure func(addr shardtypes.RunnerAddress)
}

// NewProber creates a Prober. onTick is invoked once per interval from the
// prober's own goroutine; onSuccess and onFailure are invoked from probe
// goroutines, once per pinged runner.
func NewProber(
	pinger Pinger,
	interval, timeout time.Duration,
	concurrency int,
	onTick func(),
	onSuccess, onFailure func(addr shardtypes.RunnerAddress),
	log logrus.FieldLogger,
) *Prober {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Prober{
		pinger:      pinger,
		interval:    interval,
		timeout:     timeout,
		concurrency: concurrency,
		log:         log,
		onTick:      onTick,
		onSuccess:   onSuccess,
		onFailure:   onFailure,
	}
}

// Run emits ticks until ctx is canceled. It blocks, so callers start it on
// its own goroutine.
func (p *Prober) Run(ctx context.Context) {
	tk := time.NewTicker(p.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			p.onTick()
		}
	}
}

// Probe pings each address in parallel, bounded by the concurrency cap.
// In-flight pings are abandoned when ctx is canceled. Probe returns once
// every ping has resolved.
func (p *Prober) Probe(ctx context.Context, addrs []shardtypes.RunnerAddress) {
	g := errgroup.Group{}
	g.SetLimit(p.concurrency)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			if err := p.pinger.Ping(pctx, addr); err != nil {
				p.log.WithError(err).WithField("runner", addr.String()).Debug("prober: ping failed")
				p.onFailure(addr)
				return nil
			}
			p.onSuccess(addr)
			return nil
		})
	}
	_ = g.Wait()
}
