package engine

import (
	"log/slog"
)

// Option configures managers and dispatchers.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	hooks     Hooks
	clock     *Clock
	evaluator *Evaluator
	registry  *Registry
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHooks registers observability hooks.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithClock shares a logical clock for job sequence numbers. A dispatcher
// passes its own clock to every manager it builds.
func WithClock(c *Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithEvaluator replaces the condition evaluator, typically to add custom
// assertions.
func WithEvaluator(e *Evaluator) Option {
	return func(o *options) {
		o.evaluator = e
	}
}

// WithRegistry sets the manager factories a dispatcher builds from.
// Default: NewRegistry().
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	if o.evaluator == nil {
		o.evaluator = NewEvaluator()
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	return o
}
