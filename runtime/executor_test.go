package runtime

import (
	"fmt"
	"log/slog"
	"testing"
)

// countingTask records invocations and fails until succeedOn is reached.
type countingTask struct {
	calls     int
	succeedOn int
	lastArgs  map[string]any
}

func (c *countingTask) Execute(exec *Execution, args map[string]any) (map[string]any, error) {
	c.calls++
	c.lastArgs = args
	if c.succeedOn > 0 && c.calls < c.succeedOn {
		return nil, fmt.Errorf("transient failure %d", c.calls)
	}
	return map[string]any{"calls": c.calls}, nil
}

func newTestExecutor() *Executor {
	return NewExecutor(slog.Default())
}

func runFlow(t *testing.T, flow *Flow, container *Container) *Execution {
	t.Helper()
	exec := NewExecution(flow, container, nil)
	if err := newTestExecutor().ExecuteSteps(exec); err != nil {
		t.Fatalf("ExecuteSteps failed: %v", err)
	}
	return exec
}

func TestExecutor_AssignAndTask(t *testing.T) {
	container := NewContainer()
	task := &countingTask{}
	container.SetTask("count", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{ID: "setup", Type: "assign", Args: map[string]any{"limit": `10`}},
			{ID: "work", Type: "count", Args: map[string]any{"limit": "setup.limit"}},
		},
	}

	exec := runFlow(t, flow, container)

	if task.calls != 1 {
		t.Errorf("Expected 1 task call, got %d", task.calls)
	}
	if task.lastArgs["limit"] != 10 {
		t.Errorf("Expected evaluated arg 10, got %v", task.lastArgs["limit"])
	}
	if v, _ := exec.Store.Get("work.result.calls"); v != 1 {
		t.Errorf("Expected stored result, got %v", v)
	}
}

func TestExecutor_ConditionSkipsStep(t *testing.T) {
	container := NewContainer()
	task := &countingTask{}
	container.SetTask("count", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{ID: "skipped", Type: "count", Condition: "1 > 2"},
			{ID: "executed", Type: "count", Condition: "2 > 1"},
		},
	}

	runFlow(t, flow, container)

	if task.calls != 1 {
		t.Errorf("Expected exactly one call, got %d", task.calls)
	}
}

func TestExecutor_SwitchRouting(t *testing.T) {
	container := NewContainer()
	task := &countingTask{}
	container.SetTask("count", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{ID: "route", Type: "switch", Args: map[string]any{
				"high": "value > 100",
				"low":  "value <= 100",
			}},
			{ID: "high", Type: "count"},
			{ID: "low", Type: "count"},
		},
		Properties: map[string]any{},
	}

	exec := NewExecution(flow, container, nil)
	exec.AddValue("value", 5)
	if err := newTestExecutor().ExecuteSteps(exec); err != nil {
		t.Fatalf("ExecuteSteps failed: %v", err)
	}

	// Only the "low" branch runs
	if task.calls != 1 {
		t.Errorf("Expected 1 call, got %d", task.calls)
	}
	if _, ok := exec.Store.Get("low.result.calls"); !ok {
		t.Error("Expected low branch result")
	}
	if _, ok := exec.Store.Get("high.result.calls"); ok {
		t.Error("high branch should have been skipped")
	}
}

func TestExecutor_RetryUntilSuccess(t *testing.T) {
	container := NewContainer()
	task := &countingTask{succeedOn: 3}
	container.SetTask("flaky", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{
				ID:   "attempt",
				Type: "flaky",
				Retry: &RetryConfig{
					MaxAttempts: 5,
					Delay:       1,
					Backoff:     "exponential",
				},
			},
		},
	}

	exec := runFlow(t, flow, container)

	if task.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", task.calls)
	}
	if v, _ := exec.Store.Get("attempt.result.calls"); v != 3 {
		t.Errorf("Expected final result stored, got %v", v)
	}
}

func TestExecutor_RetryExhausted(t *testing.T) {
	container := NewContainer()
	task := &countingTask{succeedOn: 10}
	container.SetTask("flaky", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{
				ID:    "attempt",
				Type:  "flaky",
				Retry: &RetryConfig{MaxAttempts: 3, Delay: 1},
			},
		},
	}

	exec := runFlow(t, flow, container)

	if task.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", task.calls)
	}
	if _, ok := exec.Store.Get("attempt.error"); !ok {
		t.Error("Expected step error to be recorded")
	}
}

// hintedTask always fails, attaching an explicit retry hint to the error.
type hintedTask struct {
	calls     int
	retryable bool
}

func (h *hintedTask) Execute(exec *Execution, args map[string]any) (map[string]any, error) {
	h.calls++
	return nil, NewTaskError(fmt.Errorf("upstream rejected the request")).WithRetryHint(h.retryable, "")
}

func TestExecutor_RetryWhenObservesStepError(t *testing.T) {
	container := NewContainer()
	task := &countingTask{succeedOn: 2}
	container.SetTask("flaky", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{
				ID:   "attempt",
				Type: "flaky",
				Retry: &RetryConfig{
					MaxAttempts: 3,
					Delay:       1,
					When:        "attempt.error != null",
				},
			},
		},
	}

	exec := runFlow(t, flow, container)

	// The failure must be visible to the retry condition before it runs
	if task.calls != 2 {
		t.Errorf("Expected 2 attempts (1 failure + 1 conditional retry), got %d", task.calls)
	}
	if v, _ := exec.Store.Get("attempt.result.calls"); v != 2 {
		t.Errorf("Expected final result stored, got %v", v)
	}
	if v, _ := exec.Store.Get("attempt.error"); v != nil {
		t.Errorf("Expected step error cleared after success, got %v", v)
	}
}

func TestExecutor_RetryWhenFalseStopsRetry(t *testing.T) {
	container := NewContainer()
	task := &countingTask{succeedOn: 10}
	container.SetTask("flaky", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{
				ID:   "attempt",
				Type: "flaky",
				Retry: &RetryConfig{
					MaxAttempts: 5,
					Delay:       1,
					When:        "attempt.error == null",
				},
			},
		},
	}

	runFlow(t, flow, container)

	if task.calls != 1 {
		t.Errorf("Expected 1 attempt when retry condition is false, got %d", task.calls)
	}
}

func TestExecutor_NonRetryableHintStopsRetry(t *testing.T) {
	container := NewContainer()
	task := &hintedTask{retryable: false}
	container.SetTask("rejected", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{
				ID:    "attempt",
				Type:  "rejected",
				Retry: &RetryConfig{MaxAttempts: 5, Delay: 1},
			},
		},
	}

	exec := runFlow(t, flow, container)

	if task.calls != 1 {
		t.Errorf("Expected 1 attempt for a non-retryable error, got %d", task.calls)
	}
	if _, ok := exec.Store.Get("attempt.error"); !ok {
		t.Error("Expected step error to be recorded")
	}
}

func TestExecutor_RetryableHintAllowsRetry(t *testing.T) {
	container := NewContainer()
	task := &hintedTask{retryable: true}
	container.SetTask("transient", task)

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{
				ID:    "attempt",
				Type:  "transient",
				Retry: &RetryConfig{MaxAttempts: 3, Delay: 1},
			},
		},
	}

	runFlow(t, flow, container)

	if task.calls != 3 {
		t.Errorf("Expected 3 attempts for a retryable error, got %d", task.calls)
	}
}

func TestExecutor_NoRetryWithoutPolicy(t *testing.T) {
	container := NewContainer()
	task := &countingTask{succeedOn: 10}
	container.SetTask("flaky", task)

	flow := &Flow{
		ID:    "test_flow",
		Steps: []Step{{ID: "attempt", Type: "flaky"}},
	}

	runFlow(t, flow, container)

	if task.calls != 1 {
		t.Errorf("Expected exactly one attempt without retry policy, got %d", task.calls)
	}
}

func TestExecutor_ReturnProducesResponse(t *testing.T) {
	container := NewContainer()

	flow := &Flow{
		ID: "test_flow",
		Steps: []Step{
			{ID: "setup", Type: "assign", Args: map[string]any{"email": `"dana@example.com"`}},
			{ID: "__return", Type: "return"},
		},
		Return: Return{
			Type: "http.json",
			Args: map[string]any{
				"status": 200,
				"body":   map[string]any{"email": "setup.email"},
			},
		},
	}

	exec := runFlow(t, flow, container)

	if exec.ResponseDescriptor == nil {
		t.Fatal("Expected a response descriptor")
	}
	if exec.ResponseDescriptor.HandlerName != "http.json" {
		t.Errorf("Expected http.json handler, got %s", exec.ResponseDescriptor.HandlerName)
	}
	body := exec.ResponseDescriptor.Args["body"].(map[string]any)
	if body["email"] != "dana@example.com" {
		t.Errorf("Expected evaluated body, got %v", body["email"])
	}
}

func TestExecutor_UnknownTask(t *testing.T) {
	container := NewContainer()

	flow := &Flow{
		ID:    "test_flow",
		Steps: []Step{{ID: "step", Type: "nope.missing"}},
	}

	exec := NewExecution(flow, container, nil)
	if err := newTestExecutor().ExecuteSteps(exec); err == nil {
		t.Error("Expected error for unknown task type")
	}
}
