package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	casesCreated      prometheus.Counter
	assignmentsTotal  *prometheus.CounterVec // label: outcome（created/successful/failed/reassigned/cancelled）
	transitionsTotal  *prometheus.CounterVec // label: from,to
	conflictsTotal    prometheus.Counter
	messagesPosted    *prometheus.CounterVec // label: type
	matchingDuration  prometheus.Histogram
	candidatesPerCase prometheus.Histogram

	// 系统指标
	systemMemoryUsage prometheus.Gauge
	systemCPUUsage    prometheus.Gauge
	systemGoroutines  prometheus.Gauge
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		casesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coordination_cases_created_total",
			Help: "Total number of cases submitted",
		}),
		assignmentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordination_assignments_total",
				Help: "Assignment lifecycle events by outcome",
			},
			[]string{"outcome"},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordination_case_transitions_total",
				Help: "Case state transitions",
			},
			[]string{"from", "to"},
		),
		conflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coordination_conflicts_total",
			Help: "Optimistic concurrency conflicts on case writes",
		}),
		messagesPosted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordination_messages_posted_total",
				Help: "Agent messages posted by type",
			},
			[]string{"type"},
		),
		matchingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "coordination_matching_duration_seconds",
			Help:    "Candidate search duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		candidatesPerCase: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "coordination_candidates_per_case",
			Help:    "Number of candidates returned per matching run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		systemMemoryUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_usage_percent",
			Help: "System memory usage percent",
		}),
		systemCPUUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "System CPU usage percent",
		}),
		systemGoroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_goroutines",
			Help: "Number of goroutines",
		}),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCaseCreated 记录案件创建
func (m *Metrics) RecordCaseCreated() { m.casesCreated.Inc() }

// RecordAssignment 记录指派事件
func (m *Metrics) RecordAssignment(outcome string) {
	m.assignmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition 记录状态转换
func (m *Metrics) RecordTransition(from, to string) {
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordConflict 记录乐观并发冲突
func (m *Metrics) RecordConflict() { m.conflictsTotal.Inc() }

// RecordMessage 记录消息发送
func (m *Metrics) RecordMessage(msgType string) {
	m.messagesPosted.WithLabelValues(msgType).Inc()
}

// RecordMatching 记录一次候选搜索
func (m *Metrics) RecordMatching(duration time.Duration, candidates int) {
	m.matchingDuration.Observe(duration.Seconds())
	m.candidatesPerCase.Observe(float64(candidates))
}
