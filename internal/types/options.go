package types

// Options holds the collaborators shared by the cache, the routers and the
// model factory. Zero values select defaults.
type Options struct {
	// Logger is the structured logger to use. A *slog.Logger satisfies it
	// directly; other implementations are bridged by SlogFrom.
	Logger Logger

	// Metrics is the metrics recorder.
	Metrics MetricsRecorder

	// Audit receives fallback and circuit events.
	Audit AuditSink

	// Serializer encodes cache entries for the memory and redis layers.
	Serializer Serializer

	// Clock overrides time.Now.
	Clock Clock

	// CachePath overrides the sqlite path from config.
	CachePath string

	// DisableCache turns the response cache off entirely.
	DisableCache bool

	// DisableRedis disables the redis layer.
	DisableRedis bool

	// DisableResilience disables circuit breakers and bulkheads.
	DisableResilience bool
}

// Option is a functional option for Options.
type Option func(*Options)

// ApplyOptions applies functional options to a zero Options value.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
