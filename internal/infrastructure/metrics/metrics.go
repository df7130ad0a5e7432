// Package metrics registers the Prometheus instruments for the
// generation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mediaforge"
	subsystem = "generation_api"
)

var (
	// WebhooksTotal counts provider and ffmpeg webhook deliveries by
	// outcome (completed, failed, duplicate, interim, rejected, ...).
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhooks_total",
		Help:      "Webhook deliveries by source and outcome.",
	}, []string{"source", "outcome"})

	// WebhookDuration observes end-to-end webhook handling time,
	// including media materialization.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhook_duration_seconds",
		Help:      "Webhook handling latency.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"source"})

	// SubmissionsTotal counts generation submissions by tool and result.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "submissions_total",
		Help:      "Generation submissions by tool and result.",
	}, []string{"tool", "result"})

	// MediaMaterializationsTotal counts download-and-store attempts.
	MediaMaterializationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "media_materializations_total",
		Help:      "Ephemeral media copies to durable storage by result.",
	}, []string{"result"})

	// PostprocessDispatchesTotal counts FFmpeg tasks dispatched.
	PostprocessDispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "postprocess_dispatches_total",
		Help:      "FFmpeg tasks dispatched by task type.",
	}, []string{"task"})
)
