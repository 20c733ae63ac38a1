package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Executor runs a flow's steps in order. It evaluates conditions, dispatches
// the built-in step types (assign, switch, return), delegates everything
// else to the container's task registry, and applies per-step retry policy.
type Executor struct {
	l *slog.Logger
}

func NewExecutor(l *slog.Logger) *Executor {
	return &Executor{l: l}
}

func (e *Executor) ExecuteSteps(execution *Execution) error {
	nextStep := ""

	for _, s := range execution.Flow.Steps {
		if nextStep != "" {
			if s.ID != nextStep {
				e.l.InfoContext(execution, fmt.Sprintf("Skipping step: %s", s.ID))
				continue
			}
			nextStep = ""
			e.l.InfoContext(execution, fmt.Sprintf("Resuming flow at step: %s", s.ID))
		}

		if s.Condition != "" {
			met, err := e.evaluateCondition(execution, s)
			if err != nil {
				return err
			}
			if !met {
				e.l.InfoContext(execution, fmt.Sprintf("Skipping step: %s", s.ID))
				continue
			}
		}

		next, err := e.executeStep(execution, s)
		if err != nil {
			return fmt.Errorf("error executing step %s: %w", s.ID, err)
		}

		if execution.ResponseDescriptor != nil {
			e.l.InfoContext(execution, fmt.Sprintf("Response produced at step: %s", s.ID))
			break
		}

		if next != "" {
			nextStep = next
		}
	}

	return nil
}

func (e *Executor) executeStep(execution *Execution, step Step) (string, error) {
	switch step.Type {
	case "assign":
		return "", e.handleAssign(execution, step)
	case "switch":
		return e.handleSwitch(execution, step)
	case "return":
		return "", e.handleReturn(execution)
	default:
		return "", e.handleTask(execution, step)
	}
}

func (e *Executor) evaluateCondition(execution *Execution, step Step) (bool, error) {
	result, err := Eval(step.Condition, execution.Values())
	if err != nil {
		e.l.ErrorContext(execution, fmt.Sprintf("Error evaluating condition for step %s", step.ID),
			"condition", step.Condition,
			"error", err)
		return false, fmt.Errorf("error evaluating condition %s: %w", step.Condition, err)
	}

	resultBool, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %s evaluated to %T, expected boolean", step.Condition, result)
	}
	return resultBool, nil
}

func (e *Executor) handleAssign(execution *Execution, step Step) error {
	for k, v := range step.Args {
		evaluated, err := e.evaluateValue(execution, step.ID, k, v)
		if err != nil {
			return err
		}
		// Stored with step ID prefix so it is addressable as {stepID}.{key}
		execution.AddValue(fmt.Sprintf("%s.%s", step.ID, k), evaluated)
	}
	return nil
}

func (e *Executor) handleSwitch(execution *Execution, step Step) (string, error) {
	for _, n := range orderSwitchBranches(execution, step) {
		condition, ok := step.Args[n].(string)
		if !ok {
			return "", fmt.Errorf("switch condition must be a string expression, got %T", step.Args[n])
		}

		result, err := Eval(condition, execution.Values())
		if err != nil {
			return "", fmt.Errorf("error evaluating switch condition %s: %w", condition, err)
		}

		resultBool, ok := result.(bool)
		if !ok {
			return "", fmt.Errorf("condition %s evaluated to %T, expected boolean", condition, result)
		}

		if resultBool {
			e.l.InfoContext(execution, fmt.Sprintf("Resolving switch: %s is true", condition))
			return n, nil
		}
	}
	return "", nil
}

func (e *Executor) handleReturn(execution *Execution) error {
	evaluatedArgs, err := evaluateReturnArgs(execution.Flow.Return.Args, execution.Values())
	if err != nil {
		return fmt.Errorf("failed to evaluate return args: %w", err)
	}
	execution.ResponseDescriptor = &ResponseDescriptor{
		HandlerName: execution.Flow.Return.Type,
		Args:        evaluatedArgs,
	}
	return nil
}

func (e *Executor) handleTask(execution *Execution, step Step) error {
	task, ok := execution.Container.Tasks[step.Type]
	if !ok {
		return fmt.Errorf("task type: %s not found", step.Type)
	}

	args, err := e.evaluateArgs(execution, step)
	if err != nil {
		return fmt.Errorf("failed to evaluate args for task %s: %w", step.Type, err)
	}

	output, err := e.runWithRetry(execution, task, step, args)
	if err != nil {
		e.l.ErrorContext(execution, fmt.Sprintf("Task execution failed: %s", step.ID),
			"task_type", step.Type,
			"error", err.Error())
		execution.AddValue(fmt.Sprintf("%s.error", step.ID), err.Error())
		return nil
	}

	// SetNested so nested results are addressable, e.g. step.result.body.id
	for k, v := range output {
		execution.Store.SetNested(fmt.Sprintf("%s.result.%s", step.ID, k), v)
	}

	e.l.InfoContext(execution, fmt.Sprintf("Executed task: %s", step.Type))
	return nil
}

// runWithRetry executes the task once, then applies the step's retry policy.
// Retry is strictly a flow-level concern: the task sees each attempt as an
// independent invocation.
func (e *Executor) runWithRetry(execution *Execution, task Task, step Step, args map[string]any) (map[string]any, error) {
	output, err := task.Execute(execution, args)
	if err == nil || step.Retry == nil {
		return output, err
	}

	errKey := fmt.Sprintf("%s.error", step.ID)

	for attempt := 1; attempt < step.Retry.MaxAttempts; attempt++ {
		// Record the failure before consulting the policy so retry
		// conditions can observe it.
		execution.AddValue(errKey, err.Error())

		if !errorPermitsRetry(err) {
			e.l.InfoContext(execution, fmt.Sprintf("Step %s failed with a non-retryable error", step.ID))
			break
		}

		if step.Retry.When != "" {
			proceed, evalErr := Eval(step.Retry.When, execution.Values())
			if evalErr != nil {
				return nil, fmt.Errorf("error evaluating retry condition %s: %w", step.Retry.When, evalErr)
			}
			if ok, _ := proceed.(bool); !ok {
				break
			}
		}

		delay := time.Duration(step.Retry.Delay) * time.Millisecond
		switch step.Retry.Backoff {
		case "linear":
			delay = time.Duration(attempt*step.Retry.Delay) * time.Millisecond
		case "exponential":
			delay = time.Duration(step.Retry.Delay<<(attempt-1)) * time.Millisecond
		}

		e.l.InfoContext(execution, fmt.Sprintf("[%d/%d] Retrying step: %s", attempt, step.Retry.MaxAttempts-1, step.ID))

		select {
		case <-execution.Done():
			return nil, execution.Err()
		case <-time.After(delay):
		}

		output, err = task.Execute(execution, args)
		if err == nil {
			execution.AddValue(errKey, nil)
			return output, nil
		}
	}

	return output, err
}

// errorPermitsRetry reports whether an error objects to being retried.
// Plain errors carry no hint and may be retried; a TaskError is consulted
// only when its retry hint was explicitly set.
func errorPermitsRetry(err error) bool {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		if _, hinted := taskErr.Metadata["retryable"]; hinted {
			return taskErr.IsRetryable()
		}
	}
	return true
}

func (e *Executor) evaluateArgs(execution *Execution, step Step) (map[string]any, error) {
	evaluated := make(map[string]any)
	for k, v := range step.Args {
		result, err := e.evaluateValue(execution, step.ID, k, v)
		if err != nil {
			return nil, err
		}
		evaluated[k] = result
	}
	return evaluated, nil
}

// evaluateValue recursively evaluates expressions in nested structures.
// Strings are always evaluated as expressions; use '"literal"' syntax for
// string literals.
func (e *Executor) evaluateValue(execution *Execution, stepID string, path string, value any) (any, error) {
	switch v := value.(type) {
	case string:
		result, err := Eval(v, execution.Values())
		if err != nil {
			e.l.ErrorContext(execution, fmt.Sprintf("Error evaluating expression for step %s, path %s", stepID, path),
				"expression", v,
				"error", err)
			return nil, fmt.Errorf("error evaluating expression '%s': %w", v, err)
		}
		return result, nil
	case map[string]any:
		evaluated := make(map[string]any)
		for key, val := range v {
			evaluatedVal, err := e.evaluateValue(execution, stepID, fmt.Sprintf("%s.%s", path, key), val)
			if err != nil {
				return nil, err
			}
			evaluated[key] = evaluatedVal
		}
		return evaluated, nil
	case []any:
		evaluated := make([]any, len(v))
		for i, val := range v {
			evaluatedVal, err := e.evaluateValue(execution, stepID, fmt.Sprintf("%s[%d]", path, i), val)
			if err != nil {
				return nil, err
			}
			evaluated[i] = evaluatedVal
		}
		return evaluated, nil
	default:
		return value, nil
	}
}

// orderSwitchBranches returns switch branch names ordered by the position of
// their target steps in the flow, so catch-all branches defined last are
// evaluated last.
func orderSwitchBranches(execution *Execution, step Step) []string {
	stepOrder := make(map[string]int, len(execution.Flow.Steps))
	for i, s := range execution.Flow.Steps {
		stepOrder[s.ID] = i
	}

	matched := make([]string, 0, len(step.Args))
	unmatched := make([]string, 0)
	for name := range step.Args {
		if _, ok := stepOrder[name]; ok {
			matched = append(matched, name)
		} else {
			unmatched = append(unmatched, name)
		}
	}

	sort.Strings(unmatched)
	sort.Slice(matched, func(i, j int) bool {
		return stepOrder[matched[i]] < stepOrder[matched[j]]
	})

	return append(matched, unmatched...)
}

// evaluateReturnArgs recursively evaluates expressions in return arguments.
// Unlike task args, strings that fail to evaluate fall back to literals.
func evaluateReturnArgs(args map[string]any, values map[string]any) (map[string]any, error) {
	result := make(map[string]any)
	for key, value := range args {
		evaluated, err := evaluateReturnArg(value, values)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate arg '%s': %w", key, err)
		}
		result[key] = evaluated
	}
	return result, nil
}

func evaluateReturnArg(value any, values map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		evaluated, err := Eval(v, values)
		if err != nil {
			return v, nil
		}
		return evaluated, nil
	case map[string]any:
		result := make(map[string]any)
		for k, val := range v {
			evaluated, err := evaluateReturnArg(val, values)
			if err != nil {
				return nil, err
			}
			result[k] = evaluated
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			evaluated, err := evaluateReturnArg(val, values)
			if err != nil {
				return nil, err
			}
			result[i] = evaluated
		}
		return result, nil
	default:
		return value, nil
	}
}
