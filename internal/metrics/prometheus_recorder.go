package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	passDuration   prom.Histogram
	passOutcomes   *prom.CounterVec
	planSize       prom.Histogram
	commandResults *prom.CounterVec
	decodeFailures prom.Counter
	reconnects     prom.Counter
	mirrorEntities *prom.GaugeVec
	generation     prom.Gauge
}

// NewPrometheusRecorder constructs and registers the hywoma metric set on
// reg. Registering twice on the same registry panics, so the daemon builds
// exactly one recorder per process.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		passDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "hywoma",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes",
			Buckets:   prom.DefBuckets,
		}),
		passOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hywoma",
			Name:      "passes_total",
			Help:      "Reconciliation passes by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		planSize: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "hywoma",
			Name:      "plan_size_commands",
			Help:      "Commands per non-empty plan",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		commandResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hywoma",
			Name:      "commands_total",
			Help:      "Dispatched commands by verb and outcome",
		}, []string{"verb", "outcome"}),
		decodeFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: "hywoma",
			Name:      "event_decode_failures_total",
			Help:      "Malformed event lines skipped by the decoder",
		}),
		reconnects: prom.NewCounter(prom.CounterOpts{
			Namespace: "hywoma",
			Name:      "event_stream_reconnects_total",
			Help:      "Event socket reconnects followed by a full resync",
		}),
		mirrorEntities: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "hywoma",
			Name:      "mirror_entities",
			Help:      "Entities currently tracked by the state mirror",
		}, []string{"kind"}),
		generation: prom.NewGauge(prom.GaugeOpts{
			Namespace: "hywoma",
			Name:      "policy_generation",
			Help:      "Active policy generation number",
		}),
	}
	reg.MustRegister(pr.passDuration, pr.passOutcomes, pr.planSize, pr.commandResults,
		pr.decodeFailures, pr.reconnects, pr.mirrorEntities, pr.generation)
	return pr
}

func (p *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	if p == nil || p.passDuration == nil {
		return
	}
	p.passDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPassOutcome(trigger, outcome string) {
	if p == nil || p.passOutcomes == nil {
		return
	}
	p.passOutcomes.WithLabelValues(trigger, outcome).Inc()
}

func (p *PrometheusRecorder) ObservePlanSize(commands int) {
	if p == nil || p.planSize == nil {
		return
	}
	p.planSize.Observe(float64(commands))
}

func (p *PrometheusRecorder) IncCommandResult(verb, outcome string) {
	if p == nil || p.commandResults == nil {
		return
	}
	p.commandResults.WithLabelValues(verb, outcome).Inc()
}

func (p *PrometheusRecorder) IncDecodeFailure() {
	if p == nil || p.decodeFailures == nil {
		return
	}
	p.decodeFailures.Inc()
}

func (p *PrometheusRecorder) IncReconnect() {
	if p == nil || p.reconnects == nil {
		return
	}
	p.reconnects.Inc()
}

func (p *PrometheusRecorder) SetMirrorEntities(monitors, workspaces, windows int) {
	if p == nil || p.mirrorEntities == nil {
		return
	}
	p.mirrorEntities.WithLabelValues("monitors").Set(float64(monitors))
	p.mirrorEntities.WithLabelValues("workspaces").Set(float64(workspaces))
	p.mirrorEntities.WithLabelValues("windows").Set(float64(windows))
}

func (p *PrometheusRecorder) SetPolicyGeneration(generation uint64) {
	if p == nil || p.generation == nil {
		return
	}
	p.generation.Set(float64(generation))
}
