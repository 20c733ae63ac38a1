package montecarlo

import "context"

// ExecuteGraphQLOperation executes a GraphQL operation (a query or a
// mutation document) against the Monte Carlo API, authenticating via the
// given credentials handle, and returns the decoded result mapping.
//
// The operation and variables are forwarded to the client verbatim; the
// result comes back exactly as the client produced it. Any failure
// (authentication, transport, malformed operation, rate limiting)
// propagates unchanged from the client. Exactly one request is sent per
// invocation: no retries here. Retry policy, if wanted, belongs to the flow
// step configuration.
//
//	creds, _ := montecarlo.CredentialsFromEnv()
//	result, err := montecarlo.ExecuteGraphQLOperation(ctx, creds,
//		"query getUser { getUser { email firstName lastName } }", nil)
//
// With variables:
//
//	result, err := montecarlo.ExecuteGraphQLOperation(ctx, creds,
//		`query getTables($first: Int) {
//			getTables(first: $first) {
//				edges { node { fullTableId } }
//			}
//		}`,
//		map[string]any{"first": 10})
func ExecuteGraphQLOperation(ctx context.Context, credentials ClientSource, operation string, variables map[string]any) (map[string]any, error) {
	client := credentials.GetClient()
	return client.Run(ctx, operation, variables)
}
