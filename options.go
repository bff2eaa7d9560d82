package reactor

// reactorOptions holds configuration gathered from a New call's Option list.
type reactorOptions struct {
	backend        Backend
	logger         Logger
	metricsEnabled bool
	environ        func(string) (string, bool)
}

// Option configures a [Reactor] at construction time.
type Option interface {
	applyReactor(*reactorOptions) error
}

// optionImpl implements Option via a closure, mirroring the functional-option
// shape used throughout this package's configuration surfaces.
type optionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (o *optionImpl) applyReactor(opts *reactorOptions) error {
	return o.applyReactorFunc(opts)
}

// WithBackend selects the [Backend] implementation the reactor dispatches
// through. If omitted, New picks the first backend in preference order
// (poll, then select) that isn't disabled by environment lookup (see
// WithEnviron).
func WithBackend(b Backend) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.backend = b
		return nil
	}}
}

// WithLogger installs a [Logger] the reactor uses for dispatch, timer,
// signal, backend, and buffer diagnostics. If omitted, New uses the
// package's global logger as set by SetStructuredLogger at that moment (a
// NoOpLogger if none has been set).
func WithLogger(l Logger) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithMetrics enables dispatch-tick latency and counter tracking, readable
// via [Reactor.Metrics]. Disabled by default to avoid the per-tick
// bookkeeping cost on latency-sensitive reactors.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithEnviron overrides the lookup function New uses to honor EVENT_NOSELECT
// / EVENT_NOPOLL-style backend-disable variables, matching the original
// library's environment-driven backend exclusion. Defaults to os.LookupEnv;
// tests supply a fake to exercise exclusion without mutating process
// environment.
func WithEnviron(lookup func(string) (string, bool)) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.environ = lookup
		return nil
	}}
}

// resolveOptions applies a list of Option values, skipping nils, and returns
// the resolved configuration.
func resolveOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
