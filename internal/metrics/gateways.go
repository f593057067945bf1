package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(gatewayRequestsTotal)
}

var gatewayRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vpnstore_gateway_requests_total",
		Help: "Outbound calls to panels and payment gateways, by gateway, operation and result.",
	},
	[]string{"gateway", "op", "result"},
)

// ObserveGateway counts one outbound call.
func ObserveGateway(gateway, op string, err error) {
	gatewayRequestsTotal.WithLabelValues(norm(gateway), norm(op), result(err)).Inc()
}
