package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts money-moving operations. Counters only; balances are always
// derived from the store, never from here.
type Metrics struct {
	EarningsAccruals    prometheus.Counter
	EarningsAccrued     prometheus.Counter
	WithdrawalRequests  *prometheus.CounterVec
	WithdrawalDecisions *prometheus.CounterVec
	SettlementCallbacks *prometheus.CounterVec
	PayoutRequests      *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		EarningsAccruals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tunevault",
			Name:      "earnings_accrual_events_total",
			Help:      "Play-count accrual events applied to approved creators.",
		}),
		EarningsAccrued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tunevault",
			Name:      "earnings_accrued_amount_total",
			Help:      "Creator-share money accrued from streams.",
		}),
		WithdrawalRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunevault",
			Name:      "withdrawal_requests_total",
			Help:      "Withdrawal requests by outcome.",
		}, []string{"outcome"}),
		WithdrawalDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunevault",
			Name:      "withdrawal_decisions_total",
			Help:      "Admin withdrawal decisions by action.",
		}, []string{"action"}),
		SettlementCallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunevault",
			Name:      "settlement_callbacks_total",
			Help:      "Gateway settlement callbacks by result.",
		}, []string{"result"}),
		PayoutRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunevault",
			Name:      "payout_requests_total",
			Help:      "Streaming-earnings payout requests by outcome.",
		}, []string{"outcome"}),
	}
}
