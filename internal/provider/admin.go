package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// QueryDescriptor names one administrative query and the document that
// implements it. Tool arguments are passed through as query variables.
type QueryDescriptor struct {
	Name  string
	Query string
}

// AdminQueryClient executes one administrative query against a shop. The
// query bodies themselves are opaque to the bridge; implementations own the
// wire format.
type AdminQueryClient interface {
	Execute(ctx context.Context, domain, credential string, desc QueryDescriptor, variables map[string]interface{}) (json.RawMessage, error)
}

// Admin exposes a static catalog of administrative tools, each backed by a
// query descriptor executed through an AdminQueryClient. Unlike the other
// providers there is no upstream catalog to list.
type Admin struct {
	name    string
	domain  string
	client  AdminQueryClient
	tools   []mcp.Tool
	queries map[string]QueryDescriptor
}

// adminToolSpec binds one tool's descriptor to its query.
type adminToolSpec struct {
	tool  mcp.Tool
	query QueryDescriptor
}

func adminCatalog() []adminToolSpec {
	return []adminToolSpec{
		{
			tool: mcp.Tool{
				Name:        "get_shop_details",
				Description: "Fetch the shop's name, primary domain and currency settings.",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			},
			query: QueryDescriptor{
				Name:  "ShopDetails",
				Query: `query ShopDetails { shop { name myshopifyDomain primaryDomain { url } currencyCode } }`,
			},
		},
		{
			tool: mcp.Tool{
				Name:        "list_recent_orders",
				Description: "List the most recent orders with totals and fulfillment status.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"first": map[string]interface{}{
							"type":        "integer",
							"description": "Number of orders to return, newest first.",
						},
					},
				},
			},
			query: QueryDescriptor{
				Name: "RecentOrders",
				Query: `query RecentOrders($first: Int) { orders(first: $first, reverse: true) { nodes { id name createdAt displayFulfillmentStatus totalPriceSet { shopMoney { amount currencyCode } } } } }`,
			},
		},
		{
			tool: mcp.Tool{
				Name:        "search_products_admin",
				Description: "Search products across all publication states, including drafts.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Product search query.",
						},
						"first": map[string]interface{}{
							"type":        "integer",
							"description": "Number of products to return.",
						},
					},
					Required: []string{"query"},
				},
			},
			query: QueryDescriptor{
				Name: "SearchProducts",
				Query: `query SearchProducts($query: String, $first: Int) { products(query: $query, first: $first) { nodes { id title status totalInventory } } }`,
			},
		},
	}
}

// NewAdmin creates the administrative provider for one shop.
func NewAdmin(domain string, client AdminQueryClient) *Admin {
	specs := adminCatalog()
	tools := make([]mcp.Tool, 0, len(specs))
	queries := make(map[string]QueryDescriptor, len(specs))
	for _, s := range specs {
		tools = append(tools, s.tool)
		queries[s.tool.Name] = s.query
	}
	return &Admin{
		name:    "admin",
		domain:  domain,
		client:  client,
		tools:   tools,
		queries: queries,
	}
}

// Name implements Provider.
func (a *Admin) Name() string { return a.name }

// ListTools implements Provider. The catalog is static.
func (a *Admin) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	out := make([]mcp.Tool, len(a.tools))
	copy(out, a.tools)
	return out, nil
}

// CallTool implements Provider. Administrative calls always need a
// credential; there is no interactive flow to fall back to.
func (a *Admin) CallTool(ctx context.Context, name string, args map[string]interface{}, credential string) (json.RawMessage, error) {
	desc, ok := a.queries[name]
	if !ok {
		return nil, fmt.Errorf("unknown admin tool: %s", name)
	}
	if credential == "" {
		return nil, fmt.Errorf("%w: admin call without credential", ErrUnauthenticated)
	}
	return a.client.Execute(ctx, a.domain, credential, desc, args)
}

// GraphQLAdminClient is the default AdminQueryClient: GraphQL over HTTP
// against the shop's admin endpoint.
type GraphQLAdminClient struct {
	apiVersion string
	endpoint   string
	httpClient *http.Client
}

// NewGraphQLAdminClient creates the default admin query client.
func NewGraphQLAdminClient(apiVersion string) *GraphQLAdminClient {
	return &GraphQLAdminClient{
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetEndpointOverride pins the client to a fixed endpoint instead of
// deriving one from the shop domain. Empty clears the override.
func (c *GraphQLAdminClient) SetEndpointOverride(endpoint string) {
	c.endpoint = endpoint
}

// Execute implements AdminQueryClient.
func (c *GraphQLAdminClient) Execute(ctx context.Context, domain, credential string, desc QueryDescriptor, variables map[string]interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     desc.Query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query %s: %w", desc.Name, err)
	}

	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, c.apiVersion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", strings.TrimPrefix(credential, "Bearer "))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
