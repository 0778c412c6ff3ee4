// Package tools maps named domain actions to implementations and their
// declared signatures, and exposes them to the live model and to MCP agents.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmbento/omnicall-ai/internal/metrics"
)

// Func implements a tool. Errors become {"error": msg} results.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry pairs declarations with implementations. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	decls   []Declaration
	impls   map[string]Func
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records a tool_call timing per dispatch.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the dispatch logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry checks that every declaration has exactly one implementation
// and every implementation is declared.
func NewRegistry(decls []Declaration, impls map[string]Func, opts ...Option) (*Registry, error) {
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		if seen[d.Name] {
			return nil, fmt.Errorf("%s: %w", d.Name, ErrDuplicateTool)
		}
		seen[d.Name] = true
		if impls[d.Name] == nil {
			return nil, fmt.Errorf("%s declared without implementation: %w", d.Name, ErrToolNotImplemented)
		}
	}
	for name := range impls {
		if !seen[name] {
			return nil, fmt.Errorf("%s implemented without declaration: %w", name, ErrToolNotImplemented)
		}
	}

	r := &Registry{
		decls:  slices.Clone(decls),
		impls:  make(map[string]Func, len(impls)),
		logger: slog.Default(),
	}
	for name, fn := range impls {
		r.impls[name] = fn
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Declarations returns the tool signatures in declaration order.
func (r *Registry) Declarations() []Declaration {
	if r == nil {
		return nil
	}
	return slices.Clone(r.decls)
}

// Names returns the declared tool names in declaration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.decls))
	for i, d := range r.decls {
		names[i] = d.Name
	}
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r != nil && r.impls[name] != nil
}

// Subset returns a registry restricted to names, in the given order.
func (r *Registry) Subset(names []string) (*Registry, error) {
	decls := make([]Declaration, 0, len(names))
	impls := make(map[string]Func, len(names))
	for _, name := range names {
		idx := slices.IndexFunc(r.decls, func(d Declaration) bool { return d.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("%s: %w", name, ErrToolNotImplemented)
		}
		decls = append(decls, r.decls[idx])
		impls[name] = r.impls[name]
	}
	return NewRegistry(decls, impls, WithMetrics(r.metrics), WithLogger(r.logger))
}

// Dispatch invokes a tool and always returns a result map: {"result": v} on
// success, {"error": msg} otherwise. Panics in implementations are recovered.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result map[string]any) {
	var fn Func
	if r != nil {
		fn = r.impls[name]
	}
	if fn == nil {
		r.log().Warn("unknown tool", "tool", name)
		return map[string]any{"error": ErrFunctionNotFound}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log().Error("tool panicked", "tool", name, "panic", p)
			r.metrics.RecordError(metrics.OpToolCall)
			result = map[string]any{"error": "tool panicked"}
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	value, err := fn(ctx, args)
	duration := time.Since(start)
	if err != nil {
		r.metrics.RecordError(metrics.OpToolCall)
		r.log().Warn("tool failed", "tool", name, "duration_ms", duration.Milliseconds(), "error", err)
		return map[string]any{"error": err.Error()}
	}

	r.metrics.RecordTiming(metrics.OpToolCall, duration)
	r.log().Debug("tool completed", "tool", name, "duration_ms", duration.Milliseconds())
	return map[string]any{"result": value}
}

func (r *Registry) log() *slog.Logger {
	if r == nil || r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

// stringArg returns a required non-empty string argument.
func stringArg(args map[string]any, name string) (string, error) {
	s, ok := args[name].(string)
	if !ok || s == "" {
		return "", errMissingArg(name)
	}
	return s, nil
}
