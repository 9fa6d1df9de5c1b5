package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kinds of responses served without the origin.
const (
	kindCached      = "cached"
	kindSynthetic   = "synthetic"
	kindUnavailable = "unavailable"
	kindQueued      = "queued"
)

var (
	offlineResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsense_offline_responses_total",
		Help: "Responses served while the origin was unreachable, by kind",
	}, []string{"kind"}) // "cached", "synthetic", "unavailable", "queued"

	replayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsense_replay_total",
		Help: "Pending report submissions replayed, by result",
	}, []string{"result"}) // "replayed", "failed"

	routedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsense_routed_requests_total",
		Help: "Intercepted requests by matched route",
	}, []string{"route"})
)
