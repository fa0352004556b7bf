package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance
	Logger *zap.Logger

	// Metrics
	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "join_verifications_total",
			Help: "Total number of join verifications by outcome",
		},
		[]string{"outcome"},
	)

	spamActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spam_actions_total",
			Help: "Total number of spam rule actions applied",
		},
		[]string{"action"},
	)

	autoMuteTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_mute_transitions_total",
			Help: "Total number of auto-mute window transitions",
		},
		[]string{"direction"},
	)

	sendRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbound_send_retries_total",
			Help: "Total number of outbound message send retries",
		},
	)

	updateProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "update_processing_duration_seconds",
			Help:    "Time spent processing webhook updates",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(verificationsTotal)
	prometheus.MustRegister(spamActionsTotal)
	prometheus.MustRegister(autoMuteTransitionsTotal)
	prometheus.MustRegister(sendRetriesTotal)
	prometheus.MustRegister(updateProcessingDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

// RecordVerification records a join verification outcome (approved, rejected, timeout, kicked).
func RecordVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSpamAction records an applied spam rule action.
func RecordSpamAction(action string) {
	spamActionsTotal.WithLabelValues(action).Inc()
}

// RecordAutoMuteTransition records an auto-mute window edge (on, off).
func RecordAutoMuteTransition(direction string) {
	autoMuteTransitionsTotal.WithLabelValues(direction).Inc()
}

// RecordSendRetry counts one outbound send retry.
func RecordSendRetry() {
	sendRetriesTotal.Inc()
}

// StartUpdateProcessing returns a function that records the processing
// duration under the final status label.
func StartUpdateProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		updateProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
