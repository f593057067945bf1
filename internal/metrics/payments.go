package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsCreatedTotal,
		paymentsCompletedTotal,
		sagaCompensationsTotal,
		walletMovementsTotal,
	)
}

var (
	paymentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnstore_payments_created_total",
			Help: "Payment intents created, by type and gateway.",
		},
		[]string{"type", "gateway"},
	)

	paymentsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnstore_payments_completed_total",
			Help: "Completion attempts by type and result (success/failed/duplicate/in_progress/canceled).",
		},
		[]string{"type", "result"},
	)

	sagaCompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnstore_saga_compensations_total",
			Help: "Compensating deletes of remote accounts, by result.",
		},
		[]string{"result"},
	)

	walletMovementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnstore_wallet_movements_total",
			Help: "Wallet ledger rows appended, by transaction type.",
		},
		[]string{"type"},
	)
)

func IncPaymentCreated(paymentType, gateway string) {
	paymentsCreatedTotal.WithLabelValues(norm(paymentType), norm(gateway)).Inc()
}

func IncPaymentCompleted(paymentType, outcome string) {
	paymentsCompletedTotal.WithLabelValues(norm(paymentType), norm(outcome)).Inc()
}

// IncCompensation records a compensating delete; err is the delete's outcome.
func IncCompensation(err error) {
	sagaCompensationsTotal.WithLabelValues(result(err)).Inc()
}

func IncWalletMovement(txType string) {
	walletMovementsTotal.WithLabelValues(norm(txType)).Inc()
}
