// Package metrics provides the counter/latency recorder interface used by
// monitors and chain adapters.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
