package leave

import (
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE - Wires the components over one store
// =============================================================================

// Engine groups the components that share a store.
type Engine struct {
	Directory *Directory
	Ledger    *Ledger
	Lifecycle *Lifecycle
	Query     *Query
}

// New builds every component over store.
func New(store TxStore, opts ...Option) *Engine {
	return &Engine{
		Directory: NewDirectory(store, opts...),
		Ledger:    NewLedger(store),
		Lifecycle: NewLifecycle(store, opts...),
		Query:     NewQuery(store),
	}
}

type options struct {
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger
}

// Option configures engine components.
type Option func(*options)

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the parent logger. Components log under a named child.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		clock:  RealClock{},
		ids:    UUIDGenerator{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
