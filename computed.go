package livespec

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ComputedFunc implements one named $computed expression. Args arrive fully
// resolved; the context gives access to live state and auth data.
type ComputedFunc func(args map[string]interface{}, ctx *EvalContext) (interface{}, error)

// ComputedRegistry maps $computed names to implementations. An unresolvable
// name is a hard error at resolution time: it means the catalog and the
// runtime disagree, which a developer must fix.
type ComputedRegistry struct {
	mu     sync.RWMutex
	funcs  map[string]ComputedFunc
	celEnv *cel.Env
}

// NewComputedRegistry creates an empty registry.
func NewComputedRegistry() *ComputedRegistry {
	return &ComputedRegistry{funcs: make(map[string]ComputedFunc)}
}

// Register adds a named function. Registering a name twice is an error so
// catalog collisions surface at startup, not mid-render.
func (r *ComputedRegistry) Register(name string, fn ComputedFunc) error {
	if name == "" {
		return fmt.Errorf("computed function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("computed function %q cannot be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("computed function already registered: %s", name)
	}
	r.funcs[name] = fn
	return nil
}

// RegisterCEL compiles a CEL expression and registers it under name. The
// expression sees two variables: args (the resolved $computed args) and
// state (the current state snapshot).
func (r *ComputedRegistry) RegisterCEL(name, expression string) error {
	env, err := r.env()
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile computed %q: %w", name, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("program computed %q: %w", name, err)
	}
	return r.Register(name, func(args map[string]interface{}, ctx *EvalContext) (interface{}, error) {
		if args == nil {
			args = map[string]interface{}{}
		}
		state := map[string]interface{}{}
		if ctx != nil && ctx.State != nil {
			if snap := ctx.State.Snapshot(); snap != nil {
				state = snap
			}
		}
		out, _, err := prg.Eval(map[string]interface{}{"args": args, "state": state})
		if err != nil {
			return nil, fmt.Errorf("eval computed %q: %w", name, err)
		}
		return out.Value(), nil
	})
}

func (r *ComputedRegistry) env() (*cel.Env, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.celEnv != nil {
		return r.celEnv, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("state", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	r.celEnv = env
	return env, nil
}

// Call invokes a registered function with resolved args.
func (r *ComputedRegistry) Call(name string, args map[string]interface{}, ctx *EvalContext) (interface{}, error) {
	r.mu.RLock()
	fn, exists := r.funcs[name]
	r.mu.RUnlock()
	if !exists {
		return nil, ErrComputedNotFound{Name: name}
	}
	return fn(args, ctx)
}

// Has reports whether name is registered.
func (r *ComputedRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.funcs[name]
	return exists
}

// Names returns the registered function names.
func (r *ComputedRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}
