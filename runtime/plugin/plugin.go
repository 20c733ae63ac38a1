// Package plugin exposes the types plugin authors need without importing
// the full runtime package.
//
// A plugin is any struct whose exported methods match one of the task
// signatures:
//
//	func (p *MyPlugin) DoThing(exec *plugin.Execution, args plugin.Input) (plugin.Output, error)
//	func (p *MyPlugin) DoThing(exec *plugin.Execution, input InStruct) (OutStruct, error)
//
// Registered under a plugin name, each method becomes a task named
// "<plugin>.<method>" that flow steps can reference. Typed signatures get
// automatic input decoding and validation.
package plugin

import "github.com/sflowg/sflowg-montecarlo/runtime"

// Input is the map-based task input. Identical to map[string]any.
type Input = map[string]any

// Output is the map-based task output. Identical to map[string]any.
// Output values are stored in execution state and addressable from later
// steps as {stepID}.result.{key}.
type Output = map[string]any

// Execution is the runtime context passed to every task method. It
// implements context.Context, so pass it anywhere a context is expected and
// caller deadlines will propagate into in-flight calls.
type Execution = runtime.Execution

// Initializer is implemented by plugins that need startup work (build API
// clients, open connections). Called once at container startup, after the
// plugin config has been validated. An error aborts startup.
type Initializer = runtime.Initializer

// Shutdowner is implemented by plugins that hold resources. Called during
// graceful shutdown in reverse registration order.
type Shutdowner = runtime.Shutdowner
