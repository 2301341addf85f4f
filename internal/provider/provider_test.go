package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProviderServer serves the JSON-RPC envelope the providers speak.
func fakeProviderServer(t *testing.T, handler func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string                 `json:"jsonrpc"`
			ID      interface{}            `json:"id"`
			Method  string                 `json:"method"`
			Params  map[string]interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params, r)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]interface{}{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

type rpcErrorReply struct {
	Code    int
	Message string
}

func TestStorefront_ListTools(t *testing.T) {
	ts := fakeProviderServer(t, func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply) {
		assert.Equal(t, "tools/list", method)
		return map[string]interface{}{
			"tools": []map[string]interface{}{
				{"name": "search_shop_catalog", "description": "Search the catalog"},
				{"name": "get_cart", "description": "Fetch a cart"},
			},
		}, nil
	})
	defer ts.Close()

	s := NewStorefront(ts.URL)
	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "search_shop_catalog", tools[0].Name)
}

func TestStorefront_SynthesizesSearchContext(t *testing.T) {
	var gotArgs map[string]interface{}
	ts := fakeProviderServer(t, func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply) {
		gotArgs, _ = params["arguments"].(map[string]interface{})
		return map[string]interface{}{"content": []interface{}{}}, nil
	})
	defer ts.Close()

	s := NewStorefront(ts.URL)
	_, err := s.CallTool(context.Background(), "search_shop_catalog", map[string]interface{}{"query": "red shoes"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Shopper is searching for: red shoes", gotArgs["context"])

	// An explicit context is left alone.
	_, err = s.CallTool(context.Background(), "search_shop_catalog", map[string]interface{}{
		"query":   "red shoes",
		"context": "gift hunt",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "gift hunt", gotArgs["context"])
}

func TestStorefront_OtherToolsUntouched(t *testing.T) {
	var gotArgs map[string]interface{}
	ts := fakeProviderServer(t, func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply) {
		gotArgs, _ = params["arguments"].(map[string]interface{})
		return map[string]interface{}{}, nil
	})
	defer ts.Close()

	s := NewStorefront(ts.URL)
	_, err := s.CallTool(context.Background(), "get_cart", map[string]interface{}{"cart_id": "c1"}, "")
	require.NoError(t, err)
	assert.NotContains(t, gotArgs, "context")
}

type staticAuthorizer struct {
	authURL string
}

func (s *staticAuthorizer) BeginAuthorization(sessionKey, shopKey string) (string, string, error) {
	return s.authURL, "state-1", nil
}

func TestCustomer_NoCredentialReturnsAuthRequired(t *testing.T) {
	c := NewCustomer("http://unused.invalid", &staticAuthorizer{authURL: "https://shop/authorize"}, "demo.myshopify.com")

	_, err := c.CallTool(context.Background(), "get_orders", nil, "")
	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "https://shop/authorize", authErr.AuthURL)

	var payload struct {
		Error struct {
			Type    string `json:"type"`
			AuthURL string `json:"auth_url"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(authErr.Result(), &payload))
	assert.Equal(t, "auth_required", payload.Error.Type)
	assert.Equal(t, "https://shop/authorize", payload.Error.AuthURL)
}

func TestCustomer_UpstreamRejectionReturnsAuthRequired(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer expired", r.Header.Get("Authorization"))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewCustomer(ts.URL, &staticAuthorizer{authURL: "https://shop/authorize"}, "demo.myshopify.com")

	_, err := c.CallTool(context.Background(), "get_orders", nil, "Bearer expired")
	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
}

func TestCustomer_ReclassifiesLoginPrompt(t *testing.T) {
	ts := fakeProviderServer(t, func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply) {
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "Please log in to view your orders."},
			},
		}, nil
	})
	defer ts.Close()

	c := NewCustomer(ts.URL, &staticAuthorizer{authURL: "https://shop/authorize"}, "demo.myshopify.com")

	_, err := c.CallTool(context.Background(), "get_orders", nil, "Bearer stale")
	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
}

func TestRPCClient_ClassifiesErrors(t *testing.T) {
	t.Run("rpc error", func(t *testing.T) {
		ts := fakeProviderServer(t, func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply) {
			return nil, &rpcErrorReply{Code: -32000, Message: "session terminated"}
		})
		defer ts.Close()

		_, err := newRPCClient(ts.URL).call(context.Background(), "tools/call", nil, "")
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, -32000, rpcErr.Code)
	})

	t.Run("http error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer ts.Close()

		_, err := newRPCClient(ts.URL).call(context.Background(), "tools/call", nil, "")
		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, http.StatusBadGateway, upErr.Status)
	})

	t.Run("unauthorized", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no", http.StatusForbidden)
		}))
		defer ts.Close()

		_, err := newRPCClient(ts.URL).call(context.Background(), "tools/call", nil, "")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestRPCClient_ConcurrentCalls(t *testing.T) {
	ts := fakeProviderServer(t, func(method string, params map[string]interface{}, r *http.Request) (interface{}, *rpcErrorReply) {
		return map[string]interface{}{"content": []interface{}{}}, nil
	})
	defer ts.Close()

	s := NewStorefront(ts.URL)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CallTool(context.Background(), "get_cart", map[string]interface{}{"cart_id": "c1"}, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestIsSessionTerminated(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rpc session terminated", &RPCError{Code: -32000, Message: "Session terminated"}, true},
		{"rpc session expired", &RPCError{Code: -32000, Message: "your session expired"}, true},
		{"upstream session not found", &UpstreamError{Status: 400, Body: "session not found"}, true},
		{"plain invalid session", errors.New("invalid session id"), true},
		{"session closed", &RPCError{Code: -32000, Message: "session closed by server"}, true},
		{"unrelated rpc error", &RPCError{Code: -32602, Message: "invalid params"}, false},
		{"unrelated error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSessionTerminated(tt.err))
		})
	}
}

func TestAdmin_StaticCatalog(t *testing.T) {
	a := NewAdmin("demo.myshopify.com", nil)

	tools, err := a.ListTools(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, tools)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "get_shop_details")
	assert.Contains(t, names, "list_recent_orders")
}

type recordingAdminClient struct {
	domain     string
	credential string
	desc       QueryDescriptor
	variables  map[string]interface{}
}

func (r *recordingAdminClient) Execute(ctx context.Context, domain, credential string, desc QueryDescriptor, variables map[string]interface{}) (json.RawMessage, error) {
	r.domain = domain
	r.credential = credential
	r.desc = desc
	r.variables = variables
	return json.RawMessage(`{"data":{}}`), nil
}

func TestAdmin_CallTool(t *testing.T) {
	client := &recordingAdminClient{}
	a := NewAdmin("demo.myshopify.com", client)

	result, err := a.CallTool(context.Background(), "list_recent_orders", map[string]interface{}{"first": 5}, "Bearer admin-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{}}`, string(result))
	assert.Equal(t, "demo.myshopify.com", client.domain)
	assert.Equal(t, "Bearer admin-token", client.credential)
	assert.Equal(t, "RecentOrders", client.desc.Name)
	assert.Equal(t, 5, client.variables["first"])
}

func TestAdmin_RequiresCredential(t *testing.T) {
	a := NewAdmin("demo.myshopify.com", &recordingAdminClient{})

	_, err := a.CallTool(context.Background(), "get_shop_details", nil, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdmin_UnknownTool(t *testing.T) {
	a := NewAdmin("demo.myshopify.com", &recordingAdminClient{})

	_, err := a.CallTool(context.Background(), "no_such_tool", nil, "Bearer tok")
	assert.Error(t, err)
}
