package chain

import "github.com/prometheus/client_golang/prometheus"

func FailedCounter() prometheus.Counter    { return mFailed }
func ConfirmedCounter() prometheus.Counter { return mConfirmed }
