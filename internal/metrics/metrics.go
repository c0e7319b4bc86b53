// Package metrics exposes the Prometheus instruments for the Hearth server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_active",
			Help: "Currently registered client connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_rooms_active",
			Help: "Rooms currently in the directory",
		},
	)

	MessagesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_messages_broadcast_total",
			Help: "Chat messages appended and broadcast to a room",
		},
	)

	MessagesMuted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_messages_muted_total",
			Help: "Chat messages silently dropped from muted identities",
		},
	)

	ModerationCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_moderation_commands_total",
			Help: "Moderation commands applied by room hosts",
		},
		[]string{"command"},
	)

	JoinsDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_joins_denied_total",
			Help: "Join attempts rejected because the identity is banned",
		},
	)
)
