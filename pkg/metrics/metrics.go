package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// HTTP 请求指标
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of requests",
		},
		[]string{"service", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	// 消息队列指标
	KafkaMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_total",
			Help: "Total number of Kafka messages",
		},
		[]string{"topic", "status"},
	)

	// 资源存储指标
	AssetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assets_total",
			Help: "Asset store operations by provider, operation and outcome",
		},
		[]string{"provider", "op", "status"},
	)

	// 业务指标
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_records_total",
			Help: "Media records mutated, by kind and operation",
		},
		[]string{"kind", "op"},
	)

	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compensations_total",
			Help: "Uploaded assets removed after a failed metadata write",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	// 注册所有指标
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		KafkaMessagesTotal,
		AssetsTotal,
		RecordsTotal,
		CompensationsTotal,
	)
}

// RegisterDBStats exports connection pool statistics for db.
func RegisterDBStats(db *sql.DB, name string) error {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// StartMetricsServer 启动独立的 metrics HTTP 服务器
func StartMetricsServer(port string, log *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

// RecordRequest 记录请求指标的助手函数
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

func RecordAsset(provider, op string, err error) {
	AssetsTotal.WithLabelValues(provider, op, outcome(err)).Inc()
}

func RecordKafkaMessage(topic string, err error) {
	KafkaMessagesTotal.WithLabelValues(topic, outcome(err)).Inc()
}

func RecordMutation(kind, op string, n int) {
	if n <= 0 {
		return
	}
	RecordsTotal.WithLabelValues(kind, op).Add(float64(n))
}

func RecordCompensation(kind string, err error) {
	CompensationsTotal.WithLabelValues(kind, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
