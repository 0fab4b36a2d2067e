package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of open OCPP-J sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_connections",
		Help: "The total number of active OCPP-J WebSocket sessions.",
	})

	// InboundMessages counts inbound charge point requests, labeled by transport and action.
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_inbound_messages_total",
		Help: "Total number of requests received from charge points.",
	}, []string{"transport", "action"})

	// InboundProcessingDuration observes inbound request handling time, labeled by action.
	InboundProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_inbound_processing_duration_seconds",
		Help:    "Histogram of inbound request processing times.",
		Buckets: prometheus.LinearBuckets(0.01, 0.01, 10),
	}, []string{"action"})

	// AuthorizationDecisions counts idTag evaluations, labeled by resulting status.
	AuthorizationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_authorization_decisions_total",
		Help: "Total number of idTag authorization decisions.",
	}, []string{"status"})

	// Commands counts outbound operator commands, labeled by command and result status.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_commands_total",
		Help: "Total number of commands sent to charge points.",
	}, []string{"command", "status"})

	// CommandDuration observes the round trip of outbound commands, labeled by command.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_command_duration_seconds",
		Help:    "Histogram of outbound command round trip times.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// FanoutDiscardedResults counts per-target results that arrived after the fan-out deadline.
	FanoutDiscardedResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_fanout_discarded_results_total",
		Help: "Total number of fan-out results discarded because they arrived late.",
	})

	// LocalListRetries counts full-list retries after a rejected differential update, labeled by outcome.
	LocalListRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_locallist_retries_total",
		Help: "Total number of full local list retries.",
	}, []string{"outcome"})

	// ReservationCompensations counts reservation rows cancelled after a non-accepted ReserveNow.
	ReservationCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_reservation_compensations_total",
		Help: "Total number of reservations cancelled locally after the charge point declined them.",
	})

	// EventsPublished counts events published to the broker, labeled by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_events_published_total",
		Help: "Total number of events published to the message broker.",
	}, []string{"event_type"})

	// CommandsConsumed counts operator commands taken from the broker or request/reply bus, labeled by source.
	CommandsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_commands_consumed_total",
		Help: "Total number of operator commands consumed.",
	}, []string{"source"})
)
