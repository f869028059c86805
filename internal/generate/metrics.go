package generate

import "github.com/prometheus/client_golang/prometheus"

var (
	serverSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "generate",
		Name:      "server_success_total",
		Help:      "Name generations answered by the HTTP server path",
	})
	serverFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "generate",
		Name:      "server_failure_total",
		Help:      "HTTP server path failures (network, malformed or invalid responses)",
	})
	cliFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "generate",
		Name:      "cli_fallback_total",
		Help:      "Generations that fell back to the one-shot CLI path",
	})
	cliAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "generate",
		Name:      "cli_attempts_total",
		Help:      "Individual CLI subprocess attempts",
	})
)

func init() {
	prometheus.MustRegister(serverSuccessTotal, serverFailureTotal, cliFallbackTotal, cliAttemptsTotal)
}
