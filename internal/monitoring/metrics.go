package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 上游供应商指标
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderRetriesTotal    prometheus.Counter

	// 邮箱与轮询指标
	MailboxesCreated prometheus.Counter
	SessionsActive   prometheus.Gauge
	PollTicksTotal   prometheus.Counter
	PollErrorsTotal  prometheus.Counter
	InboxUpdates     prometheus.Counter

	// 配额指标
	QuotaDenialsTotal prometheus.Counter
	UsageIncrements   prometheus.Counter

	// WebSocket 指标
	WebsocketClients prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tmportal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tmportal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ProviderRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tmportal_provider_requests_total",
				Help: "Total number of upstream provider requests",
			},
			[]string{"operation", "outcome"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tmportal_provider_request_duration_seconds",
				Help:    "Upstream provider request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ProviderRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_provider_retries_total",
				Help: "Total number of upstream provider request retries",
			},
		),

		MailboxesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_mailboxes_created_total",
				Help: "Total number of mailboxes created",
			},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tmportal_sessions_active",
				Help: "Number of active mailbox sessions",
			},
		),

		PollTicksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_poll_ticks_total",
				Help: "Total number of inbox poll ticks",
			},
		),

		PollErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_poll_errors_total",
				Help: "Total number of failed inbox poll refreshes",
			},
		),

		InboxUpdates: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_inbox_updates_total",
				Help: "Total number of inbox content changes observed",
			},
		),

		QuotaDenialsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_quota_denials_total",
				Help: "Total number of mailbox creations denied by quota",
			},
		),

		UsageIncrements: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_usage_increments_total",
				Help: "Total number of daily usage counter increments",
			},
		),

		WebsocketClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tmportal_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tmportal_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tmportal_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tmportal_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProviderRequest 记录上游请求结果
func (m *Metrics) RecordProviderRequest(operation, outcome string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProviderRetry 记录上游请求重试
func (m *Metrics) RecordProviderRetry() {
	m.ProviderRetriesTotal.Inc()
}

// RecordMailboxCreated 记录邮箱创建
func (m *Metrics) RecordMailboxCreated() {
	m.MailboxesCreated.Inc()
}

// RecordPollTick 记录一次轮询
func (m *Metrics) RecordPollTick() {
	m.PollTicksTotal.Inc()
}

// RecordPollError 记录一次轮询失败
func (m *Metrics) RecordPollError() {
	m.PollErrorsTotal.Inc()
}

// RecordInboxUpdate 记录收件箱内容变化
func (m *Metrics) RecordInboxUpdate() {
	m.InboxUpdates.Inc()
}

// RecordQuotaDenial 记录配额拒绝
func (m *Metrics) RecordQuotaDenial() {
	m.QuotaDenialsTotal.Inc()
}

// RecordUsageIncrement 记录用量计数
func (m *Metrics) RecordUsageIncrement() {
	m.UsageIncrements.Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// UpdateSessionsActive 更新活跃会话数
func (m *Metrics) UpdateSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// UpdateWebsocketClients 更新 WebSocket 连接数
func (m *Metrics) UpdateWebsocketClients(count int) {
	m.WebsocketClients.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
