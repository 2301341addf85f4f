package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// catalogSearchTool is the storefront free-text search tool. Its upstream
// schema requires a context field that callers routinely omit.
const catalogSearchTool = "search_shop_catalog"

// Storefront exposes the public storefront catalog tools. Calls require no
// credential.
type Storefront struct {
	name string
	rpc  *rpcClient
}

// NewStorefront creates a storefront provider for the given endpoint URL.
func NewStorefront(endpoint string) *Storefront {
	return &Storefront{
		name: "storefront",
		rpc:  newRPCClient(endpoint),
	}
}

// Name implements Provider.
func (s *Storefront) Name() string { return s.name }

// ListTools implements Provider.
func (s *Storefront) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.rpc.listTools(ctx, "")
}

// CallTool implements Provider.
func (s *Storefront) CallTool(ctx context.Context, name string, args map[string]interface{}, _ string) (json.RawMessage, error) {
	args = normalizeSearchArgs(name, args)
	return s.rpc.callTool(ctx, name, args, "")
}

// normalizeSearchArgs synthesizes the required context argument for the
// catalog search tool from the query when the caller left it out.
func normalizeSearchArgs(name string, args map[string]interface{}) map[string]interface{} {
	if name != catalogSearchTool {
		return args
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if _, ok := args["context"]; ok {
		return args
	}
	if query, ok := args["query"].(string); ok && query != "" {
		args["context"] = fmt.Sprintf("Shopper is searching for: %s", query)
	}
	return args
}
