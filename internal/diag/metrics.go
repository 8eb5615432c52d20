package diag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry 为进程私有指标注册表，不暴露 HTTP；需要时由 WriteTextfile 落盘。
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// OpTotal 按组件、阶段与结果（success|error）计数。
	OpTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ftprep",
			Name:      "op_total",
			Help:      "Total number of component operations",
		},
		[]string{"comp", "stage", "result"},
	)

	ErrorTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ftprep",
			Name:      "error_total",
			Help:      "Total number of errors by classification code",
		},
		[]string{"comp", "code"},
	)

	OpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ftprep",
			Name:      "op_duration_seconds",
			Help:      "Duration of component operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"comp", "stage"},
	)

	// RecordsTotal 按输入统计已输出的记录数。
	RecordsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ftprep",
			Name:      "records_total",
			Help:      "Total number of records written per input",
		},
		[]string{"file_id"},
	)
)

// IncOp 累加操作计数。
func IncOp(comp, stage, result string) {
	OpTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp string, code Code) {
	ErrorTotal.WithLabelValues(comp, string(code)).Inc()
}

// ObserveDuration 记录阶段耗时。
func ObserveDuration(comp, stage string, d time.Duration) {
	OpDuration.WithLabelValues(comp, stage).Observe(d.Seconds())
}

func AddRecords(fileID string, n int) {
	if n > 0 {
		RecordsTotal.WithLabelValues(fileID).Add(float64(n))
	}
}

// WriteTextfile 以 node_exporter textfile 格式原子写出全部指标。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
