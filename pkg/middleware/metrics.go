package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// histogramBuckets はリクエスト処理時間のヒストグラムの境界値（秒）。
var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// routeUnmatched はルートに一致しなかったリクエストのラベル値。
const routeUnmatched = "unmatched"

// Metrics はHTTPリクエストのPrometheusメトリクスを保持する。
type Metrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// NewMetrics はメトリクスを生成し、regに登録する。
// 同名のコレクターが登録済みの場合は既存のものを再利用する。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhub",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskhub",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	m := &Metrics{requestTotal: requestTotal, requestLatency: requestLatency}

	if err := reg.Register(requestTotal); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		m.requestTotal = existing
	}
	if err := reg.Register(requestLatency); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		m.requestLatency = existing
	}
	return m, nil
}

// Handler はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// ラベルにはURLパスではなくルートテンプレートを使う。
func (m *Metrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = routeUnmatched
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.requestTotal.With(labels).Inc()
		m.requestLatency.With(labels).Observe(time.Since(start).Seconds())
	}
}
