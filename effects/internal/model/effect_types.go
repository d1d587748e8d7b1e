package effectmodel

import "errors"

// EffectEnum keys an effect handler inside a context.
type EffectEnum string

const (
	EffectLog EffectEnum = "saga_ive_go_effect_enum_log"
)

// ErrNoEffectHandler is returned when no handler is registered for an enum.
var ErrNoEffectHandler = errors.New("no effect handler registered for this effect")

// EffectScopeConfig sizes the worker queues behind a handler.
type EffectScopeConfig struct {
	BufferSize int // default: 1
	NumWorkers int // default: 1
}

func NewEffectScopeConfig(bufferSize int, numWorkers int) EffectScopeConfig {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return EffectScopeConfig{
		BufferSize: bufferSize,
		NumWorkers: numWorkers,
	}
}

// Partitionable payloads are routed to a worker by key so that payloads
// sharing a key are handled in order.
type Partitionable interface {
	PartitionKey() string
}
