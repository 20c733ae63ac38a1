package montecarlo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sflowg/sflowg-montecarlo/runtime/plugin"
)

// Config holds the plugin configuration with declarative tags.
// MaxRetries and RetryWaitMS apply to the REST gateway task only; GraphQL
// operations are never retried by the plugin.
type Config struct {
	APIKeyID    string        `yaml:"api_key_id" validate:"required"`
	APIToken    string        `yaml:"api_token" validate:"required"`
	APIURL      string        `yaml:"api_url" default:"https://api.getmontecarlo.com/graphql" validate:"url_format"`
	GatewayURL  string        `yaml:"gateway_url" default:"https://api.getmontecarlo.com" validate:"url_format"`
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	Debug       bool          `yaml:"debug" default:"false"`
	MaxRetries  int           `yaml:"max_retries" default:"0" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
}

// Plugin exposes Monte Carlo as flow tasks:
//
//	montecarlo.query   — execute a GraphQL operation
//	montecarlo.request — raw authenticated call against the REST gateway
type Plugin struct {
	Config Config // Exported so the host can set it during initialization

	creds *Credentials
	rest  *resty.Client
}

// Initialize implements the plugin.Initializer interface.
// Config is already validated by the framework before this is called.
func (p *Plugin) Initialize(ctx context.Context) error {
	creds, err := NewCredentials(p.Config.APIKeyID, p.Config.APIToken)
	if err != nil {
		return err
	}
	creds.APIURL = p.Config.APIURL
	creds.Timeout = p.Config.Timeout
	p.creds = creds

	p.rest = resty.New().
		SetBaseURL(p.Config.GatewayURL).
		SetTimeout(p.Config.Timeout).
		SetRetryCount(p.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(p.Config.RetryWaitMS) * time.Millisecond).
		SetDebug(p.Config.Debug).
		SetHeader("x-mcd-id", p.Config.APIKeyID).
		SetHeader("x-mcd-token", p.Config.APIToken)

	return nil
}

// Shutdown implements the plugin.Shutdowner interface.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.rest = nil
	p.creds = nil
	return nil
}

// Credentials returns the credentials handle built during Initialize, for
// callers composing the plugin with ExecuteGraphQLOperation directly.
func (p *Plugin) Credentials() *Credentials {
	return p.creds
}

// Query executes a GraphQL operation.
//
// Args:
//
//	operation — GraphQL query or mutation document (required)
//	variables — map of variable name to value (optional)
//
// The task output is the operation's data mapping, unmodified, so flow
// steps address fields as {stepID}.result.{field}. Uses the map-based task
// signature on purpose: the result shape is defined by the platform's
// schema, not by this plugin.
func (p *Plugin) Query(exec *plugin.Execution, args plugin.Input) (plugin.Output, error) {
	operation, ok := args["operation"].(string)
	if !ok || operation == "" {
		return nil, fmt.Errorf("montecarlo.query requires a non-empty operation string")
	}

	var variables map[string]any
	if raw, present := args["variables"]; present {
		variables, ok = raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("montecarlo.query variables must be a map, got %T", raw)
		}
	}

	return ExecuteGraphQLOperation(exec, p.creds, operation, variables)
}

// RequestInput defines the typed input for REST gateway requests.
type RequestInput struct {
	Path        string            `json:"path" validate:"required"`
	Method      string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"query_parameters"`
	Body        map[string]any    `json:"body"`
}

// RequestOutput defines the typed output for REST gateway requests.
type RequestOutput struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code"`
	IsError    bool           `json:"is_error"`
	Body       map[string]any `json:"body"`
}

// Request executes a raw authenticated request against the REST gateway.
// The session headers from the plugin config are applied automatically.
func (p *Plugin) Request(exec *plugin.Execution, input RequestInput) (RequestOutput, error) {
	response := map[string]any{}
	errorResponse := map[string]any{}

	resp, err := p.rest.R().
		SetContext(exec).
		SetHeaders(input.Headers).
		SetQueryParams(input.QueryParams).
		SetBody(input.Body).
		SetResult(&response).
		SetError(&errorResponse).
		Execute(input.Method, input.Path)

	if err != nil {
		return RequestOutput{}, fmt.Errorf("montecarlo gateway request failed: %w", err)
	}

	output := RequestOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
	}

	if resp.IsError() {
		output.Body = errorResponse
	} else {
		output.Body = response
	}

	return output, nil
}
