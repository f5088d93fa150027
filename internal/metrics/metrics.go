package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posture"

// Metrics 服务指标；所有方法对 nil 接收者安全
type Metrics struct {
	registry *prometheus.Registry

	framesProcessed  *prometheus.CounterVec
	frameDuration    prometheus.Histogram
	framesRejected   prometheus.Counter
	alertsDispatched prometheus.Counter
	stageFailures    *prometheus.CounterVec
	broadcastDrops   *prometheus.CounterVec
	viewers          prometheus.Gauge
	notifications    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New 创建并注册指标（独立 registry）
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames classified, by posture status.",
		}, []string{"status"}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_processing_seconds",
			Help:      "End-to-end frame processing latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		framesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Frames rejected because the session is missing or inactive.",
		}),
		alertsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Slouch alerts enqueued for delivery.",
		}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline side-effect failures, by stage.",
		}, []string{"stage"}),
		broadcastDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_drops_total",
			Help:      "Viewer connections dropped, by reason.",
		}, []string{"reason"}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers_connected",
			Help:      "Currently connected live viewers.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification jobs handled, by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.framesProcessed,
		m.frameDuration,
		m.framesRejected,
		m.alertsDispatched,
		m.stageFailures,
		m.broadcastDrops,
		m.viewers,
		m.notifications,
		m.httpRequests,
		m.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameProcessed(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(status).Inc()
	m.frameDuration.Observe(d.Seconds())
}

func (m *Metrics) FrameRejected() {
	if m == nil {
		return
	}
	m.framesRejected.Inc()
}

func (m *Metrics) AlertDispatched() {
	if m == nil {
		return
	}
	m.alertsDispatched.Inc()
}

func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) NotificationHandled(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// ViewerConnected / ViewerDisconnected / BroadcastDropped 实现 broadcast.Observer
func (m *Metrics) ViewerConnected() {
	if m == nil {
		return
	}
	m.viewers.Inc()
}

func (m *Metrics) ViewerDisconnected() {
	if m == nil {
		return
	}
	m.viewers.Dec()
}

func (m *Metrics) BroadcastDropped(reason string) {
	if m == nil {
		return
	}
	m.broadcastDrops.WithLabelValues(reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler 记录请求数和耗时；route 为路由模板
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
