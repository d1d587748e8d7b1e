package saga

import (
	"time"

	"github.com/uber-go/tally/v4"
)

const (
	metricStarted   = "saga.started"
	metricCompleted = "saga.completed"
	metricFailed    = "saga.failed"
	metricCancelled = "saga.cancelled"
	metricLatency   = "saga.latency"
	metricEffect    = "effect.performed"
)

type metrics struct {
	scope tally.Scope
}

func newMetrics(scope tally.Scope) metrics {
	if scope == nil {
		scope = tally.NoopScope
	}
	return metrics{scope: scope}
}

func (m metrics) started()   { m.scope.Counter(metricStarted).Inc(1) }
func (m metrics) completed() { m.scope.Counter(metricCompleted).Inc(1) }
func (m metrics) failed()    { m.scope.Counter(metricFailed).Inc(1) }
func (m metrics) cancelled() { m.scope.Counter(metricCancelled).Inc(1) }

func (m metrics) latency(d time.Duration) {
	m.scope.Timer(metricLatency).Record(d)
}

func (m metrics) performed(kind Kind) {
	m.scope.Tagged(map[string]string{"kind": string(kind)}).Counter(metricEffect).Inc(1)
}
