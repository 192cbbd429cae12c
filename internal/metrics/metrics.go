// Package metrics exposes Prometheus counters/gauges for the ingest
// pipeline plus a cheap local-counter mirror for human-readable periodic
// logging. Shape (StartHTTP mux, local atomic mirrors, Snapshot, readiness
// hook) ported 1:1 from the teacher's internal/metrics/metrics.go; the
// series themselves are renamed/re-scoped to the packet-ingest domain
// (framer/decoder/worker-pool/pair/reassembly/channel-separation stages
// instead of CAN serial/socketcan/hub counters).
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-ampio-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series.
var (
	PacketsFramed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packets_framed_total",
		Help: "Total packet slices produced by the framer.",
	})
	PacketsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packets_decoded_total",
		Help: "Total packets successfully decoded, by type.",
	}, []string{"type"})
	PacketsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packets_malformed_total",
		Help: "Total packets rejected by the framer (unsupported type, malformed structure).",
	})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decode_errors_total",
		Help: "Total decode failures, by type and error kind.",
	}, []string{"type", "kind"})
	PairsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_matched_total",
		Help: "Total info/waveform pairs emitted together.",
	})
	PairsRtcMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_rtc_mismatch_total",
		Help: "Total info/waveform pairs dropped due to rtc mismatch.",
	})
	ReassemblyCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reassembly_completed_total",
		Help: "Total split-waveform reassemblies completed.",
	})
	ReassemblyTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reassembly_timeout_total",
		Help: "Total split-waveform reassembly buckets evicted for going stale.",
	})
	ChannelSeparationDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_separation_dropped_total",
		Help: "Total records dropped by channel separation (size not divisible by active channel count).",
	})
	FramerBufferBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "framer_buffer_bytes",
		Help: "Current rolling buffer size per device.",
	}, []string{"device_id"})
	WorkerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Current job queue depth per worker pool.",
	}, []string{"type"})
	EmitQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emit_queue_depth",
		Help: "Current number of records buffered in the emit queue.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	EmitSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emit_subscribers",
		Help: "Current number of registered emit-queue subscribers.",
	})
	EmitFanoutDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emit_fanout_drops_total",
		Help: "Total batches dropped for a slow subscriber under PolicyDrop.",
	})
	EmitFanoutKicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emit_fanout_kicks_total",
		Help: "Total subscribers disconnected for falling behind under PolicyKick.",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for periodic human-readable logging without
// scraping Prometheus in-process.
var (
	localFramed      uint64
	localDecoded     uint64
	localMalformed   uint64
	localDecodeErr   uint64
	localPairsOK     uint64
	localPairsBad    uint64
	localReassembled uint64
	localReassmTO    uint64
	localChanDropped uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Framed              uint64
	Decoded             uint64
	Malformed           uint64
	DecodeErrors        uint64
	PairsMatched        uint64
	PairsRtcMismatch    uint64
	ReassemblyCompleted uint64
	ReassemblyTimeouts  uint64
	ChannelDropped      uint64
}

func Snap() Snapshot {
	return Snapshot{
		Framed:              atomic.LoadUint64(&localFramed),
		Decoded:             atomic.LoadUint64(&localDecoded),
		Malformed:           atomic.LoadUint64(&localMalformed),
		DecodeErrors:        atomic.LoadUint64(&localDecodeErr),
		PairsMatched:        atomic.LoadUint64(&localPairsOK),
		PairsRtcMismatch:    atomic.LoadUint64(&localPairsBad),
		ReassemblyCompleted: atomic.LoadUint64(&localReassembled),
		ReassemblyTimeouts:  atomic.LoadUint64(&localReassmTO),
		ChannelDropped:      atomic.LoadUint64(&localChanDropped),
	}
}

func IncPacketsFramed() {
	PacketsFramed.Inc()
	atomic.AddUint64(&localFramed, 1)
}

func IncDecoded(typeName string) {
	PacketsDecoded.WithLabelValues(typeName).Inc()
	atomic.AddUint64(&localDecoded, 1)
}

func IncMalformed() {
	PacketsMalformed.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncDecodeError(typeName, kind string) {
	DecodeErrors.WithLabelValues(typeName, kind).Inc()
	atomic.AddUint64(&localDecodeErr, 1)
}

func IncPairMatched() {
	PairsMatched.Inc()
	atomic.AddUint64(&localPairsOK, 1)
}

func IncPairRtcMismatch() {
	PairsRtcMismatch.Inc()
	atomic.AddUint64(&localPairsBad, 1)
}

func IncReassemblyCompleted() {
	ReassemblyCompleted.Inc()
	atomic.AddUint64(&localReassembled, 1)
}

func IncReassemblyTimeout() {
	ReassemblyTimeouts.Inc()
	atomic.AddUint64(&localReassmTO, 1)
}

func IncChannelSeparationDropped() {
	ChannelSeparationDropped.Inc()
	atomic.AddUint64(&localChanDropped, 1)
}

func SetFramerBufferBytes(deviceID string, n int) {
	FramerBufferBytes.WithLabelValues(deviceID).Set(float64(n))
}

func SetWorkerQueueDepth(typeName string, n int) {
	WorkerQueueDepth.WithLabelValues(typeName).Set(float64(n))
}

func SetEmitQueueDepth(n int) {
	EmitQueueDepth.Set(float64(n))
}

func SetEmitSubscribers(n int) {
	EmitSubscribers.Set(float64(n))
}

func IncEmitFanoutDrop() {
	EmitFanoutDrops.Inc()
}

func IncEmitFanoutKick() {
	EmitFanoutKicks.Inc()
}

// InitBuildInfo sets the build info gauge (called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
