package runtime

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// ResponseDescriptor captures a response produced by a return step.
// The HTTP handler dispatches it to the matching ResponseHandler.
type ResponseDescriptor struct {
	HandlerName string         // e.g. "http.json"
	Args        map[string]any // e.g. {status: 200, body: {...}}
}

// Execution is the per-invocation state of a flow run. It implements
// context.Context by delegating to an embedded context, so plugins can pass
// it anywhere a context is expected and caller deadlines propagate into
// in-flight network calls.
type Execution struct {
	ID                 string
	Store              *ValueStore
	Flow               *Flow
	Container          *Container
	ResponseDescriptor *ResponseDescriptor

	ctx context.Context
}

func NewExecution(flow *Flow, container *Container, globalProperties map[string]any) *Execution {
	exec := &Execution{
		ID:        uuid.New().String(),
		Store:     NewValueStore(),
		Flow:      flow,
		Container: container,
		ctx:       context.Background(),
	}

	// Global properties first, then flow properties (flow overrides).
	for k, v := range globalProperties {
		exec.AddValue("properties."+k, resolveEnvVar(v))
	}
	for k, v := range flow.Properties {
		exec.AddValue("properties."+k, resolveEnvVar(v))
	}

	return exec
}

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	k, ok := key.(string)
	if !ok {
		return e.ctx.Value(key)
	}
	v, _ := e.Store.Get(k)
	return v
}

// WithContext returns a shallow copy of the Execution with a new embedded
// context. Mirrors the http.Request.WithContext pattern; use it to apply a
// per-step timeout without mutating the parent.
func (e *Execution) WithContext(ctx context.Context) *Execution {
	copied := *e
	copied.ctx = ctx
	return &copied
}

func (e *Execution) AddValue(k string, v any) {
	e.Store.Set(k, v)
}

// Values returns the full flat context map for expression evaluation.
func (e *Execution) Values() map[string]any {
	return e.Store.All()
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax.
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// resolveEnvVar resolves environment variable references in property values.
func resolveEnvVar(value any) any {
	strValue, ok := value.(string)
	if !ok {
		return value
	}

	matches := envVarPattern.FindStringSubmatch(strValue)
	if matches == nil {
		return value
	}

	if envValue, exists := os.LookupEnv(matches[1]); exists {
		return envValue
	}

	if matches[2] != "" {
		return strings.TrimPrefix(matches[2], ":")
	}

	panic(fmt.Sprintf("Required environment variable not set: %s", matches[1]))
}
