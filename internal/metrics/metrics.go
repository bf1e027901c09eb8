package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "therapymeet_ws_connections_open",
		Help: "Currently open WebSocket connections",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "therapymeet_rooms_active",
		Help: "Rooms currently present in the room store",
	})

	EventsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapymeet_events_routed_total",
		Help: "Inbound realtime events dispatched, by event type",
	}, []string{"event"})

	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapymeet_event_errors_total",
		Help: "Inbound events dropped for malformed payloads, by event type",
	}, []string{"event"})

	BroadcastsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "therapymeet_broadcasts_delivered_total",
		Help: "Outbound event copies handed to connection write queues",
	})

	EmotionSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "therapymeet_emotion_samples_total",
		Help: "Emotion samples accepted into open analysis windows",
	})

	ForcedDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "therapymeet_forced_disconnects_total",
		Help: "Delayed force_disconnect broadcasts fired after session completion",
	})
)
