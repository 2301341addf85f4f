package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/provider"
)

// fakeProvider is a scriptable Provider for aggregator tests.
type fakeProvider struct {
	mu        sync.Mutex
	name      string
	tools     []mcp.Tool
	listErr   error
	listCalls int

	callResults []callOutcome
	callCount   int
	lastArgs    map[string]interface{}
	lastCred    string
}

type callOutcome struct {
	result json.RawMessage
	err    error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeProvider) CallTool(ctx context.Context, name string, args map[string]interface{}, credential string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastArgs = args
	f.lastCred = credential

	outcome := f.callResults[f.callCount]
	if f.callCount < len(f.callResults)-1 {
		f.callCount++
	}
	return outcome.result, outcome.err
}

func tool(name string) mcp.Tool {
	return mcp.Tool{Name: name, Description: "test tool " + name}
}

func TestAggregator_RefreshAllMergesCatalogs(t *testing.T) {
	a := New(
		&fakeProvider{name: "storefront", tools: []mcp.Tool{tool("search"), tool("get_cart")}},
		&fakeProvider{name: "customer", tools: []mcp.Tool{tool("get_orders")}},
	)

	tools := a.RefreshAll(context.Background())
	require.Len(t, tools, 3)

	owner, ok := a.FindOwner("get_orders")
	require.True(t, ok)
	assert.Equal(t, "customer", owner.Name())
}

func TestAggregator_PartialFailureTolerated(t *testing.T) {
	healthy := &fakeProvider{name: "storefront", tools: []mcp.Tool{tool("search")}}
	broken := &fakeProvider{name: "customer", listErr: errors.New("connection refused")}

	a := New(healthy, broken)
	tools := a.RefreshAll(context.Background())

	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name)

	_, ok := a.FindOwner("get_orders")
	assert.False(t, ok)
}

func TestAggregator_LaterRegistrationWinsConflicts(t *testing.T) {
	first := &fakeProvider{name: "storefront", tools: []mcp.Tool{tool("search"), tool("shared")}}
	second := &fakeProvider{name: "customer", tools: []mcp.Tool{tool("shared")}}

	a := New(first, second)
	tools := a.RefreshAll(context.Background())
	require.Len(t, tools, 2)

	owner, ok := a.FindOwner("shared")
	require.True(t, ok)
	assert.Equal(t, "customer", owner.Name())

	// The loser keeps its unconflicted tools.
	owner, ok = a.FindOwner("search")
	require.True(t, ok)
	assert.Equal(t, "storefront", owner.Name())
}

func TestAggregator_InvalidateRemovesOnlyThatProvider(t *testing.T) {
	a := New(
		&fakeProvider{name: "storefront", tools: []mcp.Tool{tool("search")}},
		&fakeProvider{name: "customer", tools: []mcp.Tool{tool("get_orders")}},
	)
	a.RefreshAll(context.Background())

	a.Invalidate("customer")

	_, ok := a.FindOwner("get_orders")
	assert.False(t, ok)
	_, ok = a.FindOwner("search")
	assert.True(t, ok)
	assert.Len(t, a.Tools(), 1)
}

func TestAggregator_BatchReplacementDropsStaleTools(t *testing.T) {
	p := &fakeProvider{name: "storefront", tools: []mcp.Tool{tool("old_tool")}}
	a := New(p)
	a.RefreshAll(context.Background())

	p.mu.Lock()
	p.tools = []mcp.Tool{tool("new_tool")}
	p.mu.Unlock()
	a.RefreshAll(context.Background())

	_, ok := a.FindOwner("old_tool")
	assert.False(t, ok)
	_, ok = a.FindOwner("new_tool")
	assert.True(t, ok)
}

func TestCallTool_RecoversOnceFromTerminatedSession(t *testing.T) {
	p := &fakeProvider{
		name:  "customer",
		tools: []mcp.Tool{tool("get_orders")},
		callResults: []callOutcome{
			{err: &provider.RPCError{Code: -32000, Message: "session terminated"}},
			{result: json.RawMessage(`{"orders":[]}`)},
		},
	}
	a := New(p)
	a.RefreshAll(context.Background())

	result, err := a.CallTool(context.Background(), "get_orders", nil, "Bearer tok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"orders":[]}`, string(result))

	// Initial refresh plus the reconnect relist.
	p.mu.Lock()
	assert.Equal(t, 2, p.listCalls)
	p.mu.Unlock()
}

func TestCallTool_RetryFailingAgainSurfacesError(t *testing.T) {
	terminated := &provider.RPCError{Code: -32000, Message: "session terminated"}
	p := &fakeProvider{
		name:        "customer",
		tools:       []mcp.Tool{tool("get_orders")},
		callResults: []callOutcome{{err: terminated}, {err: terminated}},
	}
	a := New(p)
	a.RefreshAll(context.Background())

	_, err := a.CallTool(context.Background(), "get_orders", nil, "")
	var rpcErr *provider.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "session terminated", rpcErr.Message)

	// Exactly one reconnect: two list calls total, no third.
	p.mu.Lock()
	assert.Equal(t, 2, p.listCalls)
	p.mu.Unlock()
}

func TestCallTool_OtherErrorsNotRetried(t *testing.T) {
	p := &fakeProvider{
		name:        "customer",
		tools:       []mcp.Tool{tool("get_orders")},
		callResults: []callOutcome{{err: errors.New("connection refused")}},
	}
	a := New(p)
	a.RefreshAll(context.Background())

	_, err := a.CallTool(context.Background(), "get_orders", nil, "")
	require.Error(t, err)

	p.mu.Lock()
	assert.Equal(t, 1, p.listCalls)
	p.mu.Unlock()
}

func TestCallTool_UnknownTool(t *testing.T) {
	a := New()

	_, err := a.CallTool(context.Background(), "missing", nil, "")
	assert.Error(t, err)
}
