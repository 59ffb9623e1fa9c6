package fsl

import (
	"context"
	"sync"
)

// Call records a single tool invocation made through a MockRunner.
type Call struct {
	Tool string
	Args []string
}

// MockRunner implements Runner for tests. It records every invocation and
// returns scripted outputs and errors instead of spawning processes.
type MockRunner struct {
	mu sync.Mutex

	// Calls holds the invocations in the order they were made.
	Calls []Call
	// Outputs maps a tool name to the output RunOutput returns for it.
	Outputs map[string]string
	// Errors maps a tool name to the error its invocations return.
	Errors map[string]error
	// OnRun, if set, is called for every invocation before the scripted
	// error is considered. Tests use it to fabricate the files a tool
	// would have written.
	OnRun func(tool string, args []string) error
}

func (r *MockRunner) record(tool string, args []string) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Tool: tool, Args: args})
	onRun := r.OnRun
	err := r.Errors[tool]
	r.mu.Unlock()

	if onRun != nil {
		if hookErr := onRun(tool, args); hookErr != nil {
			return hookErr
		}
	}
	return err
}

func (r *MockRunner) Run(_ context.Context, tool string, args ...string) error {
	return r.record(tool, args)
}

func (r *MockRunner) RunOutput(_ context.Context, tool string, args ...string) (string, error) {
	if err := r.record(tool, args); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Outputs[tool], nil
}

// CallsTo returns the recorded invocations of the named tool.
func (r *MockRunner) CallsTo(tool string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var calls []Call
	for _, c := range r.Calls {
		if c.Tool == tool {
			calls = append(calls, c)
		}
	}
	return calls
}

// Reset clears the recorded invocations.
func (r *MockRunner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}
