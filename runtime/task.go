package runtime

import "context"

// Task is the unit of work executed by a flow step.
type Task interface {
	Execute(exec *Execution, args map[string]any) (map[string]any, error)
}

// Initializer allows plugins to perform startup work.
// Plugins implementing this interface have Initialize called once when the
// container starts, after their config has been validated. Use it to build
// API clients, open connections and verify external services are reachable.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner allows plugins to release resources during graceful shutdown.
// Shutdown is called in reverse registration order.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
