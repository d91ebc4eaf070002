package monitor

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/protocol"
)

const namespace = "volstream"

// Decode latency buckets in seconds.
var latencyBuckets = []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5}

// Metrics holds the frame counters for one process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	frames            prometheus.Counter
	bytes             prometheus.Counter
	decodeErrors      *prometheus.CounterVec
	warnings          *prometheus.CounterVec
	activeConnections prometheus.Gauge
	decodeLatency     prometheus.Histogram

	// mirrored for LogPeriodic without scraping the registry
	totalBytes  atomic.Int64
	totalFrames atomic.Int64
	start       time.Time
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		start:    time.Now(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Volume frames decoded successfully",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Voxel payload bytes received",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames that failed to decode, by reason",
		}, []string{"reason"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "header_warnings_total",
			Help:      "Header fields dropped while decoding, by field",
		}, []string{"field"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open producer connections",
		}),
		decodeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent reading and decoding one frame, including waits for the producer",
			Buckets:   latencyBuckets,
		}),
	}
	registry.MustRegister(m.frames, m.bytes, m.decodeErrors, m.warnings, m.activeConnections, m.decodeLatency)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFrame records one decoded frame of payload size n.
func (m *Metrics) ObserveFrame(n int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.bytes.Add(float64(n))
	m.decodeLatency.Observe(elapsed.Seconds())
	m.totalFrames.Add(1)
	m.totalBytes.Add(int64(n))
}

// ObserveError counts a decode failure under a reason derived from err.
func (m *Metrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	m.decodeErrors.WithLabelValues(Reason(err)).Inc()
}

func (m *Metrics) ObserveWarning(fe *protocol.FieldError) {
	if m == nil || fe == nil {
		return
	}
	m.warnings.WithLabelValues(fe.Field).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.activeConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.activeConnections.Dec()
	}
}

// Reason maps an error to a low-cardinality label.
func Reason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrChannelClosed):
		return "closed"
	case errors.Is(err, protocol.ErrMalformedLength):
		return "malformed_length"
	case errors.Is(err, protocol.ErrFrameTooLarge):
		return "too_large"
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, protocol.ErrMissingField):
		return "missing_field"
	case errors.Is(err, protocol.ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "io"
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("[Metrics] serving: addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// LogPeriodic logs runtime metrics at the specified interval until ctx is done.
func (m *Metrics) LogPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		elapsed := time.Since(m.start).Seconds()
		var throughput float64
		if elapsed > 0 {
			throughput = float64(m.totalBytes.Load()) / elapsed / 1024 / 1024
		}

		logger.Sugar.Infof("[Metrics] Goroutines=%d | HeapAlloc=%dMB | HeapSys=%dMB | Throughput=%.2fMB/s | Frames=%d",
			runtime.NumGoroutine(),
			ms.HeapAlloc/1024/1024,
			ms.HeapSys/1024/1024,
			throughput,
			m.totalFrames.Load(),
		)
	}
}
