package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"routing_key", "queue"},
	)

	// LLM / embedding 调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "Summarization, extraction and embedding call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 11), // 50ms to ~50s
		},
		[]string{"endpoint", "status"},
	)

	// 邮箱 API 调用延迟（毫秒）
	SourceCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_call_latency_ms",
			Help:    "Mail source API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 11),
		},
		[]string{"operation", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"method", "path", "status"},
	)

	// 拉取邮件计数
	EmailFetchedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_fetched_total",
			Help: "Items seen by the fetcher",
		},
		[]string{"status"}, // status: stored, skipped, failed
	)

	// 邮件处理计数
	EmailEnrichedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_enriched_total",
			Help: "Items handled by the enrichment pipeline",
		},
		[]string{"status"}, // status: enriched, skipped, failed, partial
	)

	// embedding 退化到 hash 的次数
	EmbeddingFallbackCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedding_fallback_total",
			Help: "Embeddings served by the deterministic hash fallback",
		},
	)

	// 凭证刷新计数
	CredentialRenewalCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_renewal_total",
			Help: "Short-lived credential renewals",
		},
		[]string{"result"}, // result: success, failed
	)

	// 事件发布计数
	EventPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Broker publishes by path",
		},
		[]string{"path", "status"}, // path: direct, outbox
	)

	// 语义搜索耗时（秒）
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Semantic search latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"status"},
	)

	// 恢复的 snooze 邮件数
	SnoozeRestoredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snooze_restored_total",
			Help: "Snoozed items restored to active",
		},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordLLMCallLatency 记录模型调用延迟
func RecordLLMCallLatency(endpoint, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

// RecordSourceCallLatency 记录邮箱 API 调用延迟
func RecordSourceCallLatency(operation, status string, duration time.Duration) {
	SourceCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录慢查询，label 只取 SQL 的第一个关键字避免高基数
func IncrementSlowQuery(sql string, duration time.Duration) {
	op := "unknown"
	if fields := strings.Fields(sql); len(fields) > 0 {
		op = strings.ToLower(fields[0])
	}
	SlowQueryCount.WithLabelValues(op).Inc()
	SlowQueryDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// AddEmailFetched 增加拉取计数
func AddEmailFetched(status string, n int) {
	if n > 0 {
		EmailFetchedCount.WithLabelValues(status).Add(float64(n))
	}
}

// IncrementEmailEnriched 增加邮件处理计数
func IncrementEmailEnriched(status string) {
	EmailEnrichedCount.WithLabelValues(status).Inc()
}

// IncrementEmbeddingFallback 记录一次 hash 退化
func IncrementEmbeddingFallback() {
	EmbeddingFallbackCount.Inc()
}

// IncrementCredentialRenewal 记录凭证刷新结果
func IncrementCredentialRenewal(result string) {
	CredentialRenewalCount.WithLabelValues(result).Inc()
}

// IncrementEventPublish 记录事件发布
func IncrementEventPublish(path, status string) {
	EventPublishCount.WithLabelValues(path, status).Inc()
}

// RecordSearchDuration 记录搜索耗时
func RecordSearchDuration(status string, duration time.Duration) {
	SearchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// AddSnoozeRestored 增加恢复计数
func AddSnoozeRestored(n int64) {
	if n > 0 {
		SnoozeRestoredCount.Add(float64(n))
	}
}
