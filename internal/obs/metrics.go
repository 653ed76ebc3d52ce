// Package obs exposes Prometheus metrics for the trading engine. Metrics are
// registered on the default registry in init and served by the HTTP server at
// /metrics.
package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	buysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_buys_total",
			Help: "Buy attempts by risk tier and result (ok|failed)",
		},
		[]string{"tier", "result"},
	)

	sellsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_sells_total",
			Help: "Sell outcomes by exit reason and result (ok|failed|already_closed)",
		},
		[]string{"reason", "result"},
	)

	sellRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sniper_sell_retries_total",
			Help: "Individual sell attempts beyond the first",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniper_open_positions",
			Help: "Open positions currently in the ledger",
		},
	)

	realizedPnlUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniper_realized_pnl_usd",
			Help: "Running realized profit and loss in USD",
		},
	)

	admissionRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_admission_rejected_total",
			Help: "Candidates rejected at admission by cause (capacity|duplicate|blacklist|invalid)",
		},
		[]string{"cause"},
	)

	monitorTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sniper_monitor_ticks_total",
			Help: "Completed portfolio monitor sweeps",
		},
	)

	priceFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sniper_price_fetch_failures_total",
			Help: "Per-asset price fetch failures skipped by the monitor",
		},
	)
)

func init() {
	prometheus.MustRegister(buysTotal, sellsTotal, sellRetriesTotal)
	prometheus.MustRegister(openPositions, realizedPnlUSD)
	prometheus.MustRegister(admissionRejected, monitorTicks, priceFetchFailures)
}

func CountBuy(tier, result string) { buysTotal.WithLabelValues(tier, result).Inc() }

func CountSell(reason, result string) { sellsTotal.WithLabelValues(reason, result).Inc() }

func CountSellRetry() { sellRetriesTotal.Inc() }

func SetOpenPositions(n int) { openPositions.Set(float64(n)) }

func SetRealizedPnl(usd float64) { realizedPnlUSD.Set(usd) }

func CountAdmissionRejected(cause string) { admissionRejected.WithLabelValues(cause).Inc() }

func CountMonitorTick() { monitorTicks.Inc() }

func CountPriceFetchFailure() { priceFetchFailures.Inc() }
