package montecarlo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials(t *testing.T, endpoint string) *Credentials {
	t.Helper()
	creds, err := NewCredentials("test-key-id", "test-key-token")
	require.NoError(t, err)
	creds.APIURL = endpoint
	return creds
}

type capturedRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func TestExecuteGraphQLOperation_ForwardsOperationVerbatim(t *testing.T) {
	calls := 0
	var captured capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		io.WriteString(w, `{"data":{"getUser":{"email":"dana@example.com"}}}`)
	}))
	defer srv.Close()

	creds := testCredentials(t, srv.URL)
	operation := "query getUser { getUser { email } }"

	result, err := ExecuteGraphQLOperation(context.Background(), creds, operation, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, operation, captured.Query)
	assert.Nil(t, captured.Variables, "omitted variables must not be fabricated")
	assert.Equal(t, map[string]any{
		"getUser": map[string]any{"email": "dana@example.com"},
	}, result)
}

func TestExecuteGraphQLOperation_PassesVariablesThrough(t *testing.T) {
	var captured capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		io.WriteString(w, `{"data":{"getTables":{"edges":[]}}}`)
	}))
	defer srv.Close()

	creds := testCredentials(t, srv.URL)

	_, err := ExecuteGraphQLOperation(context.Background(), creds,
		"query getTables($first: Int) { getTables(first: $first) { edges { node { fullTableId } } } }",
		map[string]any{"first": 10})
	require.NoError(t, err)

	// JSON numbers decode as float64; the value itself is untouched.
	assert.Equal(t, map[string]any{"first": float64(10)}, captured.Variables)
}

func TestExecuteGraphQLOperation_ResultReturnedUnmodified(t *testing.T) {
	payload := map[string]any{
		"getUser": map[string]any{
			"email":     "dana@example.com",
			"firstName": "Dana",
			"lastName":  "Scully",
			"account":   map[string]any{"uuid": "abc-123"},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": payload})
	}))
	defer srv.Close()

	creds := testCredentials(t, srv.URL)

	result, err := ExecuteGraphQLOperation(context.Background(), creds,
		"query getUser { getUser { email firstName lastName account { uuid } } }", nil)
	require.NoError(t, err)
	assert.Equal(t, payload, result)
}

func TestExecuteGraphQLOperation_AuthErrorPropagatesWithoutRetry(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"errors":[{"message":"Invalid session credentials"}]}`)
	}))
	defer srv.Close()

	creds := testCredentials(t, srv.URL)

	result, err := ExecuteGraphQLOperation(context.Background(), creds,
		"query getUser { getUser { email } }", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid session credentials")
	assert.Nil(t, result)
	assert.Equal(t, 1, calls, "a failing call must not be retried")
}

func TestExecuteGraphQLOperation_SendsSessionHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key-id", r.Header.Get("x-mcd-id"))
		assert.Equal(t, "test-key-token", r.Header.Get("x-mcd-token"))
		io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	creds := testCredentials(t, srv.URL)

	_, err := ExecuteGraphQLOperation(context.Background(), creds, "query { ping }", nil)
	require.NoError(t, err)
}

func TestExecuteGraphQLOperation_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	creds := testCredentials(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecuteGraphQLOperation(ctx, creds, "query { ping }", nil)
	require.Error(t, err)
}
