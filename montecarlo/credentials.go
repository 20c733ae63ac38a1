package montecarlo

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sflowg/sflowg-montecarlo/runtime"
)

// Environment variables recognized by CredentialsFromEnv. Names match the
// ones the platform's own tooling reads.
const (
	EnvAPIKeyID = "MCD_DEFAULT_API_ID"
	EnvAPIToken = "MCD_DEFAULT_API_TOKEN"
	EnvAPIURL   = "MCD_API_URL"
)

// ClientSource is the capability a credentials handle must expose:
// producing a ready-to-use client. Credentials satisfies it; tests and
// callers with their own credential storage can supply their own.
type ClientSource interface {
	GetClient() *Client
}

// Credentials holds the authentication material for the Monte Carlo API.
// The zero value is not usable; build one via NewCredentials,
// LoadCredentials or CredentialsFromEnv, all of which apply defaults and
// validate. Credentials are immutable after construction and may be shared
// across concurrent flow executions.
type Credentials struct {
	APIKeyID   string        `yaml:"api_key_id" validate:"required"`
	APIToken   string        `yaml:"api_token" validate:"required"`
	APIURL     string        `yaml:"api_url" default:"https://api.getmontecarlo.com/graphql" validate:"url_format"`
	CatalogURL string        `yaml:"catalog_url" default:"https://getmontecarlo.com/catalog" validate:"url_format"`
	Timeout    time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
}

// NewCredentials builds credentials from an API key ID and token, applying
// endpoint defaults.
func NewCredentials(apiKeyID, apiToken string) (*Credentials, error) {
	creds := &Credentials{
		APIKeyID: apiKeyID,
		APIToken: apiToken,
	}
	if err := runtime.InitializeConfig(creds, nil); err != nil {
		return nil, fmt.Errorf("invalid montecarlo credentials: %w", err)
	}
	return creds, nil
}

// LoadCredentials reads credentials from a YAML file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading credentials file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling credentials file: %w", err)
	}

	creds := &Credentials{}
	if err := runtime.InitializeConfig(creds, raw); err != nil {
		return nil, fmt.Errorf("invalid montecarlo credentials in %s: %w", path, err)
	}
	return creds, nil
}

// CredentialsFromEnv builds credentials from the MCD_* environment
// variables. A .env file in the working directory is loaded first when
// present; missing .env is not an error.
func CredentialsFromEnv() (*Credentials, error) {
	_ = godotenv.Load()

	creds := &Credentials{
		APIKeyID: os.Getenv(EnvAPIKeyID),
		APIToken: os.Getenv(EnvAPIToken),
		APIURL:   os.Getenv(EnvAPIURL),
	}
	if err := runtime.InitializeConfig(creds, nil); err != nil {
		return nil, fmt.Errorf("invalid montecarlo credentials from environment: %w", err)
	}
	return creds, nil
}

// GetClient returns a client authenticated with these credentials. Each
// call builds a fresh client; clients are independent and safe to use
// concurrently.
func (c *Credentials) GetClient() *Client {
	httpClient := &http.Client{
		Timeout:   c.Timeout,
		Transport: &sessionTransport{apiKeyID: c.APIKeyID, apiToken: c.APIToken},
	}
	return newClient(c.APIURL, httpClient)
}

// sessionTransport injects the platform's session headers into every
// outgoing request.
type sessionTransport struct {
	apiKeyID string
	apiToken string
	base     http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone before mutating; RoundTrippers must not modify the original.
	cloned := req.Clone(req.Context())
	cloned.Header.Set("x-mcd-id", t.apiKeyID)
	cloned.Header.Set("x-mcd-token", t.apiToken)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(cloned)
}
