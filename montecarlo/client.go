// Package montecarlo integrates the Monte Carlo data observability platform
// into sflowg-style flows. It provides a credentials handle that produces a
// ready-to-use GraphQL client, a forwarding executor for GraphQL operations,
// and a flow plugin exposing both the GraphQL API and the REST gateway as
// tasks.
package montecarlo

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/machinebox/graphql"
)

// Client sends GraphQL operations to the Monte Carlo API. The wire work
// (transport, encoding, GraphQL error unwrapping) is delegated to the
// underlying graphql library; Client only binds it to an authenticated
// session.
//
// A Client is safe for concurrent use.
type Client struct {
	gql *graphql.Client
}

func newClient(endpoint string, httpClient *http.Client) *Client {
	gql := graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient))
	gql.Log = func(s string) { slog.Debug(s) }
	return &Client{gql: gql}
}

// Run executes a single GraphQL operation with the given variables and
// returns the decoded data mapping exactly as the API produced it. A nil
// variables map is forwarded as-is; no defaults are fabricated. Errors from
// the transport or the GraphQL response are returned unwrapped.
func (c *Client) Run(ctx context.Context, operation string, variables map[string]any) (map[string]any, error) {
	req := graphql.NewRequest(operation)
	for k, v := range variables {
		req.Var(k, v)
	}

	var data map[string]any
	if err := c.gql.Run(ctx, req, &data); err != nil {
		return nil, err
	}
	return data, nil
}
