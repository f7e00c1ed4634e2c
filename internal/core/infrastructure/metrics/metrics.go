// Package metrics 提供协议组件的 Prometheus 指标
//
// 📋 **指标分组**：
// - LedgerMetrics: 账本追加、拒绝、存储失败计数与当前叶子数
// - ProofMetrics: 证明生成/验证耗时与结果计数
//
// 所有方法对 nil 接收者安全，未注入指标的组件可直接传 nil。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace 指标命名空间
const Namespace = "zkcb"

// LedgerMetrics 账本指标
type LedgerMetrics struct {
	appends    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	failures   *prometheus.CounterVec
	size       *prometheus.GaugeVec
}

// NewLedgerMetrics 在给定注册器上创建账本指标
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	f := promauto.With(reg)
	return &LedgerMetrics{
		appends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Total number of accepted ledger appends",
		}, []string{"ledger"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Total number of submissions rejected by verification",
		}, []string{"ledger", "reason"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "append_failures_total",
			Help:      "Total number of storage failures during append",
		}, []string{"ledger"}),
		size: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "leaves",
			Help:      "Number of leaves in the ledger accumulator",
		}, []string{"ledger"}),
	}
}

// Appended 记录一次成功追加
func (m *LedgerMetrics) Appended(ledger string, leaves int) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(ledger).Inc()
	m.size.WithLabelValues(ledger).Set(float64(leaves))
}

// Rejected 记录一次验证拒绝
func (m *LedgerMetrics) Rejected(ledger, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(ledger, reason).Inc()
}

// AppendFailed 记录一次存储失败
func (m *LedgerMetrics) AppendFailed(ledger string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(ledger).Inc()
}

// ProofMetrics 证明指标
type ProofMetrics struct {
	proveDuration  *prometheus.HistogramVec
	verifyDuration prometheus.Histogram
	verifications  *prometheus.CounterVec
}

// NewProofMetrics 在给定注册器上创建证明指标
func NewProofMetrics(reg prometheus.Registerer) *ProofMetrics {
	f := promauto.With(reg)
	return &ProofMetrics{
		proveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "proof",
			Name:      "prove_duration_seconds",
			Help:      "Groth16 proof generation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"circuit"}),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "proof",
			Name:      "verify_duration_seconds",
			Help:      "Groth16 proof verification duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "proof",
			Name:      "verifications_total",
			Help:      "Total number of proof verifications by result",
		}, []string{"result"}),
	}
}

// ObserveProve 记录证明耗时
func (m *ProofMetrics) ObserveProve(circuit string, d time.Duration) {
	if m == nil {
		return
	}
	m.proveDuration.WithLabelValues(circuit).Observe(d.Seconds())
}

// ObserveVerify 记录验证耗时与结果
func (m *ProofMetrics) ObserveVerify(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.verifyDuration.Observe(d.Seconds())
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.verifications.WithLabelValues(result).Inc()
}
