package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reviewer",
		Name:      "transactions_submitted_total",
		Help:      "Number of transactions accepted by the RPC node",
	})
	mConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reviewer",
		Name:      "transactions_confirmed_total",
		Help:      "Number of transactions that reached the requested commitment",
	})
	mFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reviewer",
		Name:      "transactions_failed_total",
		Help:      "Number of transactions rejected on send or failed on chain",
	})
)
