package pool

import "context"

// Option configures an [Engine].
type Option func(*config)

type config struct {
	ctx          context.Context
	name         string
	panicToError bool
}

func defaultConfig() config {
	return config{
		ctx:  context.Background(),
		name: "pool",
	}
}

// WithContext sets the context passed to every factory. The engine never
// cancels it; tasks already in flight always run to completion.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithName labels the engine in log output.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithPanicToError converts factory panics to [*PanicError] work errors,
// which pass through the engine's [ErrorHandler] like any other. Otherwise,
// the engine fails the run and repeats the panic in the goroutine that
// claimed the task's result.
func WithPanicToError(enabled bool) Option {
	return func(c *config) {
		c.panicToError = enabled
	}
}
