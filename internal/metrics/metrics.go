package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ActivationsTotal counts activation decisions by outcome. The outcome
// label is "success" or the stable rejection reason code.
var ActivationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypilot_activations_total",
		Help: "Total number of license activation decisions by outcome.",
	},
	[]string{"outcome"},
)

// TelemetryWriteFailures counts dropped telemetry writes. These never
// fail an activation, so the counter is the only place they surface.
var TelemetryWriteFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keypilot_telemetry_write_failures_total",
		Help: "Total number of telemetry records that could not be persisted.",
	},
	[]string{"kind"},
)
