package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestErrorsTotal tracks API error responses by status text.
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarkettracker_httpserver_request_errors_total",
			Help: "Total number of API requests answered with an error",
		},
		[]string{"status"},
	)

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarkettracker_httpserver_ws_clients",
		Help: "Number of connected trade stream clients",
	})

	WSDroppedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_httpserver_ws_dropped_messages_total",
		Help: "Total number of trade events dropped for slow or absent consumers",
	})
)
