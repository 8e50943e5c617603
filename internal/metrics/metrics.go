// Package metrics exposes Prometheus collectors for a simulation run:
//
//	hedgesim_dispatches_total{slot,intent}  orders handed to the executor
//	hedgesim_fills_total{slot,status}       terminal notifications by status
//	hedgesim_refusals_total{slot,code}      decisions refused by a risk check
//	hedgesim_anomalies_total{account}       cash movements clamped at zero
//	hedgesim_steps_total                    steps evaluated
//	hedgesim_cash{account}                  free cash
//	hedgesim_value{account}                 cash plus open positions
//	hedgesim_drawdown{account}              drawdown from peak, 0..1
//
// Collectors are safe for concurrent use; the CLI serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type Metrics struct {
	Dispatches *prometheus.CounterVec
	Fills      *prometheus.CounterVec
	Refusals   *prometheus.CounterVec
	Anomalies  *prometheus.CounterVec
	Steps      prometheus.Counter

	Cash     *prometheus.GaugeVec
	Value    *prometheus.GaugeVec
	Drawdown *prometheus.GaugeVec
}

// New builds the collectors and registers them with reg. A nil reg gets a
// private registry, which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hedgesim_dispatches_total", Help: "Orders dispatched to the executor"},
			[]string{"slot", "intent"},
		),
		Fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hedgesim_fills_total", Help: "Order notifications by terminal status"},
			[]string{"slot", "status"},
		),
		Refusals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hedgesim_refusals_total", Help: "Decisions refused by a risk check"},
			[]string{"slot", "code"},
		),
		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hedgesim_anomalies_total", Help: "Cash movements clamped at zero"},
			[]string{"account"},
		),
		Steps: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hedgesim_steps_total", Help: "Simulation steps evaluated"},
		),
		Cash: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "hedgesim_cash", Help: "Free cash per account"},
			[]string{"account"},
		),
		Value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "hedgesim_value", Help: "Account value: cash plus open positions"},
			[]string{"account"},
		),
		Drawdown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "hedgesim_drawdown", Help: "Drawdown from the account peak"},
			[]string{"account"},
		),
	}
	reg.MustRegister(m.Dispatches, m.Fills, m.Refusals, m.Anomalies, m.Steps, m.Cash, m.Value, m.Drawdown)
	return m
}

func (m *Metrics) Dispatched(slot, intent string) {
	m.Dispatches.WithLabelValues(slot, intent).Inc()
}

func (m *Metrics) Notified(slot, status string) {
	m.Fills.WithLabelValues(slot, status).Inc()
}

func (m *Metrics) Refused(slot, code string) {
	m.Refusals.WithLabelValues(slot, code).Inc()
}

func (m *Metrics) Anomaly(account string) {
	m.Anomalies.WithLabelValues(account).Inc()
}

// Account publishes one account's state.
func (m *Metrics) Account(name string, cash, value, drawdown decimal.Decimal) {
	m.Cash.WithLabelValues(name).Set(cash.InexactFloat64())
	m.Value.WithLabelValues(name).Set(value.InexactFloat64())
	m.Drawdown.WithLabelValues(name).Set(drawdown.InexactFloat64())
}
