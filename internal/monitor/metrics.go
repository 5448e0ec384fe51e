package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总引擎的 Prometheus 指标。每个实例使用独立的 Registry。
//
//	followmm_placements_total{side,result}
//	followmm_cancels_total{side,result}
//	followmm_cycles_total{side,kind}
//	followmm_errors_total{op}
//	followmm_anchor_price{side,ticker}
type Metrics struct {
	registry   *prometheus.Registry
	placements *prometheus.CounterVec
	cancels    *prometheus.CounterVec
	cycles     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	anchor     *prometheus.GaugeVec
}

// NewMetrics 创建并注册全部指标。
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		placements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followmm_placements_total",
				Help: "Limit order placement attempts",
			},
			[]string{"side", "result"},
		),
		cancels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followmm_cancels_total",
				Help: "Order cancel attempts",
			},
			[]string{"side", "result"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followmm_cycles_total",
				Help: "Completed rebase/topup cycles",
			},
			[]string{"side", "kind"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followmm_errors_total",
				Help: "Swallowed per-cycle errors by operation",
			},
			[]string{"op"},
		),
		anchor: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "followmm_anchor_price",
				Help: "Reference price sampled at the last rebase",
			},
			[]string{"side", "ticker"},
		),
	}
	m.registry.MustRegister(m.placements, m.cancels, m.cycles, m.errors, m.anchor)
	return m
}

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 暴露底层 Registry，便于测试采集。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
