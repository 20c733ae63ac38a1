package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Flow struct {
	ID         string         `yaml:"id"`
	Entrypoint Entrypoint     `yaml:"entrypoint"`
	Steps      []Step         `yaml:"steps"`
	Properties map[string]any `yaml:"properties"`
	Return     Return         `yaml:"return"`
}

type Entrypoint struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

type Step struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type"`
	Condition string         `yaml:"condition,omitempty"`
	Args      map[string]any `yaml:"args"`
	Next      string         `yaml:"next,omitempty"`
	Retry     *RetryConfig   `yaml:"retry,omitempty"`
}

type Return struct {
	Type string         `yaml:"type"`
	Args map[string]any `yaml:"args"`
}

// RetryConfig controls retry behavior for a step. Retries live here, at the
// flow level; tasks themselves never re-issue a failed call.
type RetryConfig struct {
	MaxAttempts int    `yaml:"maxAttempts"`
	Delay       int    `yaml:"delay"`   // base delay in ms
	Backoff     string `yaml:"backoff"` // "none" | "linear" | "exponential"
	When        string `yaml:"when"`    // expression evaluated against execution values
}

// App bundles the container and the flows loaded from a directory.
type App struct {
	Container *Container
	Flows     map[string]Flow
}

func NewApp(flowsDir string) (*App, error) {
	files, err := filepath.Glob(filepath.Join(flowsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}

	app := App{
		Container: NewContainer(),
		Flows:     make(map[string]Flow),
	}

	for _, file := range files {
		flow, err := readFlow(file)
		if err != nil {
			return nil, err
		}
		app.RegisterFlow(flow)
	}

	return &app, nil
}

func (a *App) RegisterTask(name string, task Task) {
	a.Container.SetTask(name, task)
}

func (a *App) RegisterFlow(flow Flow) {
	a.Flows[flow.ID] = flow
}

func readFlow(file string) (Flow, error) {
	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return Flow{}, fmt.Errorf("error reading YAML file: %w", err)
	}

	var flow Flow
	if err := yaml.Unmarshal(yamlFile, &flow); err != nil {
		return Flow{}, fmt.Errorf("error unmarshalling YAML: %w", err)
	}

	// A return section is executed as a final synthetic step.
	if flow.Return.Type != "" {
		flow.Steps = append(flow.Steps, Step{
			ID:   "__return",
			Type: "return",
		})
	}

	return flow, nil
}
