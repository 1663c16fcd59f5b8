package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trivia_live_connections",
		Help: "Number of live websocket connections in the registry.",
	})

	AnswersScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trivia_answers_scored_total",
		Help: "Answers scored and persisted, by correctness.",
	}, []string{"correct"})

	AnswersReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_answers_replayed_total",
		Help: "Resubmissions resolved from the stored answer without rescoring.",
	})

	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_broadcasts_sent_total",
		Help: "Messages delivered to individual connections.",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_broadcast_failures_total",
		Help: "Per-connection send failures treated as implicit disconnects.",
	})
)
