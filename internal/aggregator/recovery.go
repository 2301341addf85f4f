package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopbridge/internal/provider"
	"shopbridge/pkg/logging"
)

// reconnectBackoff is the fixed pause before re-establishing a provider
// connection after an upstream session expires.
const reconnectBackoff = 500 * time.Millisecond

// maxAttempts bounds recovery to one retry: the original call plus exactly
// one reconnect-and-retry round trip.
const maxAttempts = 2

// CallTool invokes a tool through its owning provider with bounded session
// recovery. When the upstream reports its session terminated, the provider's
// cached catalog is invalidated, the connection re-established, and the call
// retried once. A retry failing the same way surfaces the error unchanged.
func (a *Aggregator) CallTool(ctx context.Context, name string, args map[string]interface{}, credential string) (json.RawMessage, error) {
	p, ok := a.FindOwner(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := p.CallTool(ctx, name, args, credential)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !provider.IsSessionTerminated(err) || attempt > 0 {
			return nil, err
		}

		logging.Info("Aggregator", "Upstream session expired for provider %s, reconnecting", p.Name())
		if rerr := a.reconnect(ctx, p); rerr != nil {
			logging.Warn("Aggregator", "Reconnect to provider %s failed: %v", p.Name(), rerr)
			return nil, err
		}
	}
	return nil, lastErr
}

// reconnect invalidates the provider's batch, waits the fixed backoff and
// re-lists its tools to establish a fresh upstream session.
func (a *Aggregator) reconnect(ctx context.Context, p provider.Provider) error {
	a.Invalidate(p.Name())

	select {
	case <-time.After(reconnectBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	tools, err := p.ListTools(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.replaceBatchLocked(p, tools)
	a.mu.Unlock()
	return nil
}
