package store

import (
	effectmodel "github.com/on-the-ground/saga_ive_go/effects/internal/model"
	"github.com/uber-go/tally/v4"
)

// Options configures a Store.
type Options struct {
	// BufferSize bounds the dispatch and notification queues. Default 16.
	BufferSize int
	// NotifyWorkers is the number of workers delivering events to
	// subscribers. A subscriber is always served by the same worker, so it
	// sees events in dispatch order. Default 1.
	NotifyWorkers int
	// HistorySize keeps the most recent applied events. 0 disables history.
	HistorySize int
	// Metrics receives store.dispatched and store.subscribers. Default
	// tally.NoopScope.
	Metrics tally.Scope
}

type Option func(*Options)

func WithBufferSize(n int) Option {
	return func(o *Options) { o.BufferSize = n }
}

func WithNotifyWorkers(n int) Option {
	return func(o *Options) { o.NotifyWorkers = n }
}

func WithHistory(size int) Option {
	return func(o *Options) { o.HistorySize = size }
}

func WithMetrics(scope tally.Scope) Option {
	return func(o *Options) { o.Metrics = scope }
}

func newOptions(opts []Option) Options {
	o := Options{BufferSize: 16, NotifyWorkers: 1, Metrics: tally.NoopScope}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Metrics == nil {
		o.Metrics = tally.NoopScope
	}
	if o.HistorySize < 0 {
		o.HistorySize = 0
	}
	return o
}

func (o Options) scopeConfig() effectmodel.EffectScopeConfig {
	return effectmodel.NewEffectScopeConfig(o.BufferSize, o.NotifyWorkers)
}
