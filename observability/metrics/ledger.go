package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	requests    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	totalSupply prometheus.Gauge
	baseRate    prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_requests_total",
				Help: "Count of ledger RPC requests by method.",
			}, []string{"method"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_errors_total",
				Help: "Count of failed ledger RPC requests by method.",
			}, []string{"method"}),
			totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_total_supply",
				Help: "Aggregate realized principal across all accounts.",
			}),
			baseRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_base_rate",
				Help: "Current global base rate, wad scaled.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.requests,
			ledgerRegistry.errors,
			ledgerRegistry.totalSupply,
			ledgerRegistry.baseRate,
		)
	})
	return ledgerRegistry
}

// ObserveRequest records a completed RPC request for the method.
func (m *LedgerMetrics) ObserveRequest(method string, failed bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method).Inc()
	if failed {
		m.errors.WithLabelValues(method).Inc()
	}
}

// SetTotalSupply publishes the aggregate supply gauge.
func (m *LedgerMetrics) SetTotalSupply(supply *big.Int) {
	if m == nil || supply == nil {
		return
	}
	value, _ := new(big.Float).SetInt(supply).Float64()
	m.totalSupply.Set(value)
}

// SetBaseRate publishes the global base rate gauge.
func (m *LedgerMetrics) SetBaseRate(rate *big.Int) {
	if m == nil || rate == nil {
		return
	}
	value, _ := new(big.Float).SetInt(rate).Float64()
	m.baseRate.Set(value)
}
