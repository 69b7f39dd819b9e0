// Package metrics exposes the engine's operational signals (loss, delay,
// redundancy, group lifecycle) as Prometheus metrics and HDR-histogram
// distributions, in the style of the teacher's client/prometheus_exporter.go
// and internal/metrics/hdr.go. All methods are safe to call on a nil
// *Recorder (see Noop), so call sites never need to branch on whether
// metrics are enabled.
package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects shorthair engine metrics. A nil *Recorder is valid and
// makes every method a no-op; use Noop() to obtain one explicitly.
type Recorder struct {
	packetsSent     prometheus.Counter
	packetsRecv     prometheus.Counter
	packetsDropped  *prometheus.CounterVec
	recoveryEmitted prometheus.Counter
	groupsClosed    prometheus.Counter
	groupsRecovered prometheus.Counter

	lossEstimate       prometheus.Gauge
	delayEstimateMs    prometheus.Gauge
	swapIntervalMs     prometheus.Gauge
	recoveryCountGauge prometheus.Gauge

	delayHist hdrhistogram.Histogram
}

// Noop returns a *Recorder whose methods do nothing; used when the caller
// hasn't opted into a Prometheus registry.
func Noop() *Recorder { return nil }

// New registers the engine's metrics against reg (commonly
// prometheus.DefaultRegisterer, following the teacher's
// NewAdvancedPrometheusExporterWithRegistry pattern).
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		packetsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "shorthair_packets_sent_total",
			Help: "Total symbols (original + recovery) sent.",
		}),
		packetsRecv: factory.NewCounter(prometheus.CounterOpts{
			Name: "shorthair_packets_received_total",
			Help: "Total symbols successfully authenticated and processed.",
		}),
		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shorthair_packets_dropped_total",
			Help: "Total inbound packets dropped, labeled by reason.",
		}, []string{"reason"}),
		recoveryEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "shorthair_recovery_symbols_emitted_total",
			Help: "Total recovery symbols transmitted.",
		}),
		groupsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "shorthair_groups_closed_total",
			Help: "Total code groups closed: sender-side swaps plus receiver-side groups finalized.",
		}),
		groupsRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "shorthair_groups_recovered_total",
			Help: "Total code groups that required erasure decoding.",
		}),
		lossEstimate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shorthair_loss_estimate",
			Help: "Current smoothed loss estimate used for redundancy planning.",
		}),
		delayEstimateMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shorthair_delay_estimate_ms",
			Help: "Current smoothed one-way delay estimate, in milliseconds.",
		}),
		swapIntervalMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shorthair_swap_interval_ms",
			Help: "Current code-group swap interval, in milliseconds.",
		}),
		recoveryCountGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shorthair_recovery_count",
			Help: "Recovery symbol count planned for the current group.",
		}),
		delayHist: *hdrhistogram.New(1, 10_000_000, 3),
	}
}

func (r *Recorder) PacketSent()    { if r != nil { r.packetsSent.Inc() } }
func (r *Recorder) PacketReceived() { if r != nil { r.packetsRecv.Inc() } }
func (r *Recorder) PacketDropped(reason string) {
	if r != nil {
		r.packetsDropped.WithLabelValues(reason).Inc()
	}
}
func (r *Recorder) RecoveryEmitted()  { if r != nil { r.recoveryEmitted.Inc() } }
func (r *Recorder) GroupClosed()      { if r != nil { r.groupsClosed.Inc() } }
func (r *Recorder) GroupRecovered()   { if r != nil { r.groupsRecovered.Inc() } }

func (r *Recorder) SetLossEstimate(p float64) {
	if r != nil {
		r.lossEstimate.Set(p)
	}
}

func (r *Recorder) SetDelayEstimate(d time.Duration) {
	if r != nil {
		ms := float64(d) / float64(time.Millisecond)
		r.delayEstimateMs.Set(ms)
		r.delayHist.RecordValue(d.Microseconds())
	}
}

func (r *Recorder) SetSwapInterval(d time.Duration) {
	if r != nil {
		r.swapIntervalMs.Set(float64(d) / float64(time.Millisecond))
	}
}

func (r *Recorder) SetRecoveryCount(n int) {
	if r != nil {
		r.recoveryCountGauge.Set(float64(n))
	}
}

// DelayPercentile returns the p-th percentile (0-100) of recorded delay
// samples in microseconds, or 0 if metrics are disabled or no samples
// have been recorded yet.
func (r *Recorder) DelayPercentile(p float64) int64 {
	if r == nil || r.delayHist.TotalCount() == 0 {
		return 0
	}
	return r.delayHist.ValueAtQuantile(p)
}
