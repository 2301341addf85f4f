package aggregator

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"shopbridge/internal/provider"
	"shopbridge/pkg/logging"
)

// Aggregator merges provider tool catalogs into one namespace keyed by tool
// name and tracks which provider owns each name. It is the unit the recovery
// controller invalidates when an upstream session goes away.
type Aggregator struct {
	mu        sync.RWMutex
	providers []provider.Provider
	owners    map[string]provider.Provider
	tools     map[string]mcp.Tool
	byOwner   map[string][]string
}

// New creates an aggregator over a fixed set of providers. Registration
// order matters for name conflicts: a later provider's tool displaces an
// earlier one's entry of the same name.
func New(providers ...provider.Provider) *Aggregator {
	return &Aggregator{
		providers: providers,
		owners:    make(map[string]provider.Provider),
		tools:     make(map[string]mcp.Tool),
		byOwner:   make(map[string][]string),
	}
}

// RefreshAll lists every provider's tools concurrently and rebuilds the
// aggregate catalog. A single provider failing is logged and skipped; the
// others still refresh. Each successful provider's batch replaces its prior
// batch in one step.
func (a *Aggregator) RefreshAll(ctx context.Context) []mcp.Tool {
	type batch struct {
		p     provider.Provider
		tools []mcp.Tool
	}

	results := make([]*batch, len(a.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range a.providers {
		g.Go(func() error {
			tools, err := p.ListTools(gctx)
			if err != nil {
				logging.Warn("Aggregator", "Tool listing failed for provider %s: %v", p.Name(), err)
				return nil
			}
			results[i] = &batch{p: p, tools: tools}
			return nil
		})
	}
	g.Wait()

	a.mu.Lock()
	for _, b := range results {
		if b == nil {
			continue
		}
		a.replaceBatchLocked(b.p, b.tools)
	}
	a.mu.Unlock()

	return a.Tools()
}

// replaceBatchLocked swaps one provider's tool batch. Old entries of the
// provider go away entirely before the new ones land, so the catalog never
// holds a mix of the provider's old and new tools.
func (a *Aggregator) replaceBatchLocked(p provider.Provider, tools []mcp.Tool) {
	a.removeOwnerLocked(p.Name())

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if prev, ok := a.owners[t.Name]; ok && prev.Name() != p.Name() {
			logging.Warn("Aggregator", "Tool name conflict for %s: %s overrides %s", t.Name, p.Name(), prev.Name())
			a.dropNameLocked(prev.Name(), t.Name)
		}
		a.owners[t.Name] = p
		a.tools[t.Name] = t
		names = append(names, t.Name)
	}
	a.byOwner[p.Name()] = names

	logging.Debug("Aggregator", "Registered %d tools for provider %s", len(names), p.Name())
}

// removeOwnerLocked deletes every catalog entry the named provider owns.
func (a *Aggregator) removeOwnerLocked(providerName string) {
	for _, name := range a.byOwner[providerName] {
		// Another provider may have taken the name over since.
		if owner, ok := a.owners[name]; ok && owner.Name() == providerName {
			delete(a.owners, name)
			delete(a.tools, name)
		}
	}
	delete(a.byOwner, providerName)
}

// dropNameLocked removes one name from a provider's ownership list.
func (a *Aggregator) dropNameLocked(providerName, toolName string) {
	names := a.byOwner[providerName]
	for i, n := range names {
		if n == toolName {
			a.byOwner[providerName] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

// Invalidate drops the named provider's entries from the catalog. Other
// providers' tools are untouched.
func (a *Aggregator) Invalidate(providerName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeOwnerLocked(providerName)
	logging.Info("Aggregator", "Invalidated tool catalog for provider %s", providerName)
}

// FindOwner resolves a tool name to the provider that owns it.
func (a *Aggregator) FindOwner(name string) (provider.Provider, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.owners[name]
	return p, ok
}

// Tools returns the current aggregate catalog, sorted by tool name.
func (a *Aggregator) Tools() []mcp.Tool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]mcp.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Empty reports whether the catalog holds no tools yet.
func (a *Aggregator) Empty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tools) == 0
}
