package executor

import (
	"context"
	"io"
	"sync"
)

// Call is one invocation recorded by Fake.
type Call struct {
	Program string
	Args    []string
	Stdout  io.Writer
}

// Fake is a scripted Runner for tests. Handler decides the result of each call;
// without a Handler every call succeeds with empty output.
type Fake struct {
	Handler func(call Call) (*Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to Handler.
func (f *Fake) Run(_ context.Context, program string, args []string, opts ...Option) (*Result, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	call := Call{
		Program: program,
		Args:    append([]string(nil), args...),
		Stdout:  options.Stdout,
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.Handler == nil {
		return &Result{}, nil
	}
	return f.Handler(call)
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
