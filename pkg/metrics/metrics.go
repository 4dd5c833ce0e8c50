package metrics

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 导入结果标签
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected" // 结构错误或校验未通过
	OutcomeLocked   = "locked"   // 同一学期已有导入在进行
	OutcomeFailed   = "failed"   // 数据库等内部错误
)

type metrics struct {
	importsTotal   *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	importEntries  prometheus.Histogram
	mutationsTotal *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		importsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedule",
			Name:      "imports_total",
			Help:      "Total number of schedule import attempts by outcome.",
		}, []string{"mode", "outcome"}),
		importDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schedule",
			Name:      "import_duration_seconds",
			Help:      "Duration of schedule preview/import pipelines.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"mode"}),
		importEntries: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "schedule",
			Name:      "import_entries",
			Help:      "Number of entries written by successful imports.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 10),
		}),
		mutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedule",
			Name:      "entry_mutations_total",
			Help:      "Total number of entry mutations by change type.",
		}, []string{"change_type"}),
	}
})

// ObserveImport 记录一次预览（mode=preview）或导入（mode=import）
func ObserveImport(mode, outcome string, elapsed time.Duration, entries int) {
	m := metricsSingleton()
	m.importsTotal.WithLabelValues(mode, outcome).Inc()
	m.importDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if mode == "import" && outcome == OutcomeSuccess {
		m.importEntries.Observe(float64(entries))
	}
}

// ObserveMutation 记录一次条目变更
func ObserveMutation(changeType string) {
	metricsSingleton().mutationsTotal.WithLabelValues(changeType).Inc()
}

// Handler 暴露 /metrics
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
