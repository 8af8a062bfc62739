package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// Pinger implements the coordinator's health-ping contract by issuing a GET
// against the runner's /healthz endpoint. The deadline comes from the
// caller's context.
type Pinger struct {
	client *http.Client
}

// NewPinger creates a Pinger with a dedicated client. Per-ping deadlines
// come from the context, so the client itself carries no timeout.
func NewPinger() *Pinger {
	return &Pinger{client: &http.Client{}}
}

// Ping implements coordinator.Pinger.
func (p *Pinger) Ping(ctx context.Context, addr shardtypes.RunnerAddress) error {
	url := fmt.Sprintf("http://%s:%d/healthz", addr.Host, addr.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %s: status %d", addr, resp.StatusCode)
	}
	return nil
}
