package runtime

// TaskError wraps a task execution error with metadata so plugins can hand
// retry hints and categorization to the step loop:
// - retryable / retry_after
// - type: transient, permanent, user_error
// - arbitrary execution metrics
type TaskError struct {
	Err      error
	Metadata map[string]any
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "task completed with metadata"
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *TaskError) Unwrap() error {
	return e.Err
}

func NewTaskError(err error) *TaskError {
	return &TaskError{
		Err:      err,
		Metadata: make(map[string]any),
	}
}

func (e *TaskError) WithMetadata(key string, value any) *TaskError {
	e.Metadata[key] = value
	return e
}

func (e *TaskError) WithRetryHint(retryable bool, retryAfter string) *TaskError {
	e.Metadata["retryable"] = retryable
	if retryAfter != "" {
		e.Metadata["retry_after"] = retryAfter
	}
	return e
}

func (e *TaskError) WithType(errorType string) *TaskError {
	e.Metadata["type"] = errorType
	return e
}

func (e *TaskError) IsRetryable() bool {
	retryable, _ := e.Metadata["retryable"].(bool)
	return retryable
}

func (e *TaskError) GetType() string {
	errorType, _ := e.Metadata["type"].(string)
	return errorType
}
