package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Container holds registered plugins and the tasks discovered from them.
type Container struct {
	Tasks            map[string]Task
	ResponseHandlers *ResponseHandlerRegistry

	plugins      map[string]any
	initializers []Initializer
	shutdowners  []Shutdowner
}

func NewContainer() *Container {
	return &Container{
		Tasks:            make(map[string]Task),
		ResponseHandlers: NewResponseHandlerRegistry(),
		plugins:          make(map[string]any),
	}
}

func (c *Container) GetTask(name string) Task {
	return c.Tasks[name]
}

func (c *Container) SetTask(name string, task Task) {
	c.Tasks[name] = task
}

// GetPlugin returns a registered plugin instance by name.
func (c *Container) GetPlugin(name string) any {
	return c.plugins[name]
}

// RegisterPlugin stores a plugin instance and discovers its task methods.
//
// Every exported method with one of the two task signatures is registered
// under "<plugin>.<method>" (method name lowercased at the first rune):
//
//	func (p *P) Name(exec *Execution, args map[string]any) (map[string]any, error)
//	func (p *P) Name(exec *Execution, input InStruct) (OutStruct, error)
//
// Typed signatures get automatic map<->struct conversion and input
// validation before the method runs.
func (c *Container) RegisterPlugin(pluginName string, plug any) error {
	if plug == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	c.plugins[pluginName] = plug

	if init, ok := plug.(Initializer); ok {
		c.initializers = append(c.initializers, init)
	}
	if shut, ok := plug.(Shutdowner); ok {
		c.shutdowners = append(c.shutdowners, shut)
	}

	pluginType := reflect.TypeOf(plug)
	pluginValue := reflect.ValueOf(plug)

	for i := 0; i < pluginType.NumMethod(); i++ {
		method := pluginType.Method(i)
		if !method.IsExported() {
			continue
		}

		taskName := fmt.Sprintf("%s.%s", pluginName, toLowerFirst(method.Name))

		switch {
		case isMapTaskSignature(method.Type):
			c.Tasks[taskName] = &mapTaskWrapper{plugin: pluginValue, method: method}
		case isTypedTaskSignature(method.Type):
			c.Tasks[taskName] = &typedTaskWrapper{
				plugin:    pluginValue,
				method:    method,
				inputType: method.Type.In(2),
			}
		}
	}

	return nil
}

// Initialize calls Initialize on every registered plugin that asked for it.
// Fails fast: a broken plugin should stop the app before it serves traffic.
func (c *Container) Initialize(ctx context.Context) error {
	for _, init := range c.initializers {
		if err := init.Initialize(ctx); err != nil {
			return fmt.Errorf("plugin initialization failed: %w", err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on plugins in reverse order of registration.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.shutdowners) - 1; i >= 0; i-- {
		if err := c.shutdowners[i].Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

var (
	executionPtrType = reflect.TypeOf((*Execution)(nil))
	mapType          = reflect.TypeOf(map[string]any(nil))
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
)

// isMapTaskSignature reports whether the method matches
// func(exec *Execution, args map[string]any) (map[string]any, error).
func isMapTaskSignature(t reflect.Type) bool {
	if t.NumIn() != 3 || t.NumOut() != 2 {
		return false
	}
	return t.In(1) == executionPtrType &&
		t.In(2) == mapType &&
		t.Out(0) == mapType &&
		t.Out(1) == errorType
}

// isTypedTaskSignature reports whether the method matches
// func(exec *Execution, input StructIn) (StructOut, error).
func isTypedTaskSignature(t reflect.Type) bool {
	if t.NumIn() != 3 || t.NumOut() != 2 {
		return false
	}
	return t.In(1) == executionPtrType &&
		t.In(2).Kind() == reflect.Struct &&
		t.Out(0).Kind() == reflect.Struct &&
		t.Out(1) == errorType
}

func toLowerFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// mapTaskWrapper adapts a map-based plugin method to the Task interface.
type mapTaskWrapper struct {
	plugin reflect.Value
	method reflect.Method
}

func (w *mapTaskWrapper) Execute(exec *Execution, args map[string]any) (map[string]any, error) {
	results := w.method.Func.Call([]reflect.Value{
		w.plugin,
		reflect.ValueOf(exec),
		reflect.ValueOf(args),
	})

	output, _ := results[0].Interface().(map[string]any)

	var err error
	if !results[1].IsNil() {
		err = results[1].Interface().(error)
	}
	return output, err
}

// typedTaskWrapper adapts a typed plugin method to the Task interface.
// Input maps are decoded into the method's input struct and validated,
// output structs are converted back to maps for the value store.
type typedTaskWrapper struct {
	plugin    reflect.Value
	method    reflect.Method
	inputType reflect.Type
}

func (w *typedTaskWrapper) Execute(exec *Execution, args map[string]any) (map[string]any, error) {
	input := reflect.New(w.inputType)
	if err := mapToStruct(args, input.Interface()); err != nil {
		return nil, fmt.Errorf("invalid input for task %s: %w", w.method.Name, err)
	}

	if err := validateConfig(input.Elem().Interface()); err != nil {
		return nil, fmt.Errorf("input validation failed for task %s: %w", w.method.Name, err)
	}

	results := w.method.Func.Call([]reflect.Value{
		w.plugin,
		reflect.ValueOf(exec),
		input.Elem(),
	})

	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}

	return structToMap(results[0].Interface())
}
