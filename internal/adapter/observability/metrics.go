package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM proxy requests by model and outcome",
		},
		[]string{"model", "outcome"},
	)
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM proxy request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	TasksPoppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_popped_total",
			Help: "Total number of tasks popped from the pending queue",
		},
	)
	TasksProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_processing",
			Help: "Number of tasks currently processing",
		},
	)
	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of tasks completed by terminal act",
		},
		[]string{"act"},
	)
	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_failed_total",
			Help: "Total number of tasks failed by error kind",
		},
		[]string{"kind"},
	)
	TasksDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_dead_lettered_total",
			Help: "Total number of unparseable payloads dead-lettered",
		},
	)
	TasksScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_scheduled_total",
			Help: "Total number of tasks deferred for reanalysis",
		},
	)

	PrefetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefetch_failures_total",
			Help: "Total number of prefetch sub-reads that errored or timed out",
		},
		[]string{"kind"},
	)

	TradesPlacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_placed_total",
			Help: "Total number of bracket placements by mode",
		},
		[]string{"mode"}, // live | dry_run
	)
	TradesClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_closed_total",
			Help: "Total number of trades closed by status",
		},
		[]string{"status"},
	)
	TradePnL = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trade_pnl_dollars",
			Help:    "Distribution of realized PnL per closed trade",
			Buckets: []float64{-500, -250, -100, -50, -20, 0, 20, 50, 100, 250, 500},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(TasksPoppedTotal)
	prometheus.MustRegister(TasksProcessing)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TasksDeadLetteredTotal)
	prometheus.MustRegister(TasksScheduledTotal)
	prometheus.MustRegister(PrefetchFailuresTotal)
	prometheus.MustRegister(TradesPlacedTotal)
	prometheus.MustRegister(TradesClosedTotal)
	prometheus.MustRegister(TradePnL)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func StartTask() {
	TasksPoppedTotal.Inc()
	TasksProcessing.Inc()
}

func CompleteTask(act string) {
	TasksProcessing.Dec()
	TasksCompletedTotal.WithLabelValues(act).Inc()
}

func FailTask(kind string) {
	TasksProcessing.Dec()
	TasksFailedTotal.WithLabelValues(kind).Inc()
}

// ObserveTradeClose records a closed trade's terminal status and PnL.
func ObserveTradeClose(status string, pnl float64) {
	TradesClosedTotal.WithLabelValues(status).Inc()
	TradePnL.Observe(pnl)
}
