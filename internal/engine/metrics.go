// Prometheus metrics for the execution engine, served at /metrics by the
// promhttp handler started in main:
//   - engine_orders_total{kind}        – orders accepted by the broker
//   - engine_order_failures_total      – submissions dropped after retries
//   - engine_order_retries_total       – transient-error retry attempts
//   - engine_scans_total{result}       – watchlist rebuild cycles (ok|error)
//   - engine_halts_total               – trading-halt events observed
//   - engine_open_positions            – currently tracked positions
//   - engine_watchlist_size            – currently tracked candidates

package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders accepted by the broker",
		},
		[]string{"kind"},
	)

	mtxOrderFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_order_failures_total",
			Help: "Order submissions dropped after exhausting retries",
		},
	)

	mtxOrderRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_order_retries_total",
			Help: "Broker-call retry attempts after transient errors",
		},
	)

	mtxScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_scans_total",
			Help: "Watchlist rebuild cycles by result",
		},
		[]string{"result"},
	)

	mtxHalts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_halts_total",
			Help: "Trading-halt events observed on the status stream",
		},
	)

	gaugeOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Currently tracked positions",
		},
	)

	gaugeWatchlistSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_watchlist_size",
			Help: "Currently tracked watchlist candidates",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxOrders,
		mtxOrderFailures,
		mtxOrderRetries,
		mtxScans,
		mtxHalts,
		gaugeOpenPositions,
		gaugeWatchlistSize,
	)
}
