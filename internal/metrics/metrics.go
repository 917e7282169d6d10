package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/clubdesk-web/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	contactSubmissions     *prometheus.CounterVec

	catalogInfo            *prometheus.GaugeVec
	catalogLoadedTimestamp prometheus.Gauge

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// catalog watcher metrics
	watcherPollsTotal  prometheus.Counter
	watcherSwapsTotal  prometheus.Counter
	watcherErrorsTotal *prometheus.CounterVec
	watcherStale       prometheus.Gauge
}

// New builds a private registry with the go and process collectors plus the site metrics.
// Labels are limited to method, chi route pattern, status and small fixed sets (outcome, stage)
// so crawlers and scanners cannot grow the series count.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &ServerMetrics{reg: reg}

	// http
	m.inflight = f.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Current number of in-flight HTTP requests",
	})
	m.reqTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route, and status",
	}, []string{"method", "route", "status"})
	m.errorsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total 5xx HTTP server errors by method and route (SLI)",
	}, []string{"method", "route"})
	m.reqDur = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Request latency by method and route",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})
	m.respBytes = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Response size by method and route",
		Buckets: prometheus.ExponentialBuckets(256, 4, 7),
	}, []string{"method", "route"})
	m.httpPanicTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "http_panic_total",
		Help: "Total number of recovered handler panics",
	})

	// contact form and its limiter
	m.ratelimitDeniedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_rate_limited_total",
		Help: "Total requests rejected by rate limiter",
	})
	m.ratelimitCapacityTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_rate_limited_capacity_total",
		Help: "Total number of clients evicted because the rate limiter was full",
	})
	m.contactSubmissions = f.NewCounterVec(prometheus.CounterOpts{
		Name: "contact_submissions_total",
		Help: "Contact form submissions by outcome",
	}, []string{"outcome"})

	// message catalogs
	m.catalogInfo = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "messages_catalog_info",
		Help: "Active message catalog (labels carry identity, value is always 1)",
	}, []string{"source", "version", "sha256"})
	m.catalogLoadedTimestamp = f.NewGauge(prometheus.GaugeOpts{
		Name: "messages_catalog_loaded_timestamp_seconds",
		Help: "Unix timestamp of when the active message catalog was loaded",
	})
	m.watcherPollsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "messages_watcher_polls_total",
		Help: "Total number of catalog watcher poll cycles",
	})
	m.watcherSwapsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "messages_watcher_swaps_total",
		Help: "Total number of successful catalog swaps",
	})
	m.watcherErrorsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_watcher_errors_total",
		Help: "Total catalog watcher errors by stage",
	}, []string{"stage"})
	m.watcherStale = f.NewGauge(prometheus.GaugeOpts{
		Name: "messages_watcher_stale",
		Help: "Whether the catalog watcher is stale (1) or healthy (0)",
	})

	// process
	m.buildInfo = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1)",
	}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"})
	m.profilingActive = f.NewGauge(prometheus.GaugeOpts{
		Name: "profiling_active",
		Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
	})

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          reg,
	})
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// SetBuildInfo publishes vi as the constant build_info series, once at startup
func (m *ServerMetrics) SetBuildInfo(vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.AppName,
		"component":   vi.Component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// RegisterRateLimitTracked exposes the number of clients the limiter currently tracks.
// fn is called on every scrape.
func (m *ServerMetrics) RegisterRateLimitTracked(fn func() int) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ratelimit_tracked_clients",
		Help: "Number of client keys currently held by the contact rate limiter",
	}, func() float64 { return float64(fn()) }))
}

// IncContactSubmission implements contact.Metrics
func (m *ServerMetrics) IncContactSubmission(outcome string) {
	m.contactSubmissions.WithLabelValues(outcome).Inc()
}

// SetCatalog records the catalog that is now being served
func (m *ServerMetrics) SetCatalog(source, version, sha256 string, loadedAt time.Time) {
	m.catalogInfo.Reset() // clear previous label values
	m.catalogInfo.WithLabelValues(source, version, sha256).Set(1)
	m.catalogLoadedTimestamp.Set(float64(loadedAt.Unix()))
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	m.profilingActive.Set(boolGauge(active))
}

// IncCatalogPolls implements i18n.WatcherMetrics
func (m *ServerMetrics) IncCatalogPolls() {
	m.watcherPollsTotal.Inc()
}

func (m *ServerMetrics) IncCatalogSwaps() {
	m.watcherSwapsTotal.Inc()
}

func (m *ServerMetrics) IncCatalogError(stage string) {
	m.watcherErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *ServerMetrics) SetCatalogStale(stale bool) {
	m.watcherStale.Set(boolGauge(stale))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
