package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gasp_push_send_total",
		Help: "Push delivery attempts by platform and outcome",
	}, []string{"platform", "outcome"})

	broadcastCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gasp_push_broadcast_total",
		Help: "Completed broadcast fan-outs",
	})
)
