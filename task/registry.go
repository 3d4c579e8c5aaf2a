// Package task holds the unit-of-work model shared by the submitting
// process and the array workers: the callable registry, the serialized
// on-disk task units, the slot partition and the per-task status markers.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Func executes one task. arg is the JSON-encoded argument captured at
// submission time; shared is the JSON-encoded job-wide context, or nil
// when the job has none.
//
// Functions run in a separate process on a compute node and must be
// self-contained: everything they need has to come from arg, shared or
// package-level imports, never from submitter-side state.
type Func func(ctx context.Context, arg, shared json.RawMessage) error

var (
	mu       sync.RWMutex
	registry = make(map[string]Func)
)

// Register binds fn to name. Both the submitting process and the worker
// resolve tasks through this registry, so Register must run before
// worker.MaybeRun, typically from init or at the top of main. It panics
// on an empty name or a duplicate registration.
func Register(name string, fn Func) {
	if name == "" {
		panic("task: Register with empty name")
	}
	if fn == nil {
		panic("task: Register with nil function")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("task: %q registered twice", name))
	}
	registry[name] = fn
}

// Lookup resolves a registered function by name.
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Adapt lifts a typed handler into a Func, decoding the stored argument
// into T. A decode failure surfaces as the task's failure on the worker,
// not as a process crash.
func Adapt[T any](fn func(ctx context.Context, arg T) error) Func {
	return func(ctx context.Context, arg, _ json.RawMessage) error {
		var v T
		if err := json.Unmarshal(arg, &v); err != nil {
			return fmt.Errorf("decode argument: %w", err)
		}
		return fn(ctx, v)
	}
}

// Call names one invocation of a registered function with one argument.
// The argument must survive a JSON round trip.
type Call struct {
	Func string
	Arg  interface{}
}
