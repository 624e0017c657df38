package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/vibemeet"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gateway metrics
	RequestsTotal        metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	RefreshAttemptsTotal metric.Int64Counter
	RefreshFailuresTotal metric.Int64Counter
	ForcedLoginsTotal    metric.Int64Counter

	// Navigation metrics
	RedirectsTotal      metric.Int64Counter
	RedirectsSuppressed metric.Int64Counter

	// Room metrics
	RoomResolutionsTotal metric.Int64Counter
	RoomLeavesTotal      metric.Int64Counter

	// Media metrics
	CapabilityWaitDuration metric.Float64Histogram
	ChatMessagesTotal      metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RequestsTotal, _ = meter.Int64Counter(
		"vibemeet.gateway.requests.total",
		metric.WithDescription("Total number of authenticated requests sent"),
		metric.WithUnit("{request}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"vibemeet.gateway.request.duration",
		metric.WithDescription("Duration of authenticated requests including any refresh cycle"),
		metric.WithUnit("ms"),
	)

	m.RefreshAttemptsTotal, _ = meter.Int64Counter(
		"vibemeet.gateway.refresh.total",
		metric.WithDescription("Total number of access token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshFailuresTotal, _ = meter.Int64Counter(
		"vibemeet.gateway.refresh.failures.total",
		metric.WithDescription("Total number of failed access token refreshes"),
		metric.WithUnit("{refresh}"),
	)

	m.ForcedLoginsTotal, _ = meter.Int64Counter(
		"vibemeet.gateway.forced_logins.total",
		metric.WithDescription("Total number of sessions cleared and sent back to login"),
		metric.WithUnit("{session}"),
	)

	m.RedirectsTotal, _ = meter.Int64Counter(
		"vibemeet.navigation.redirects.total",
		metric.WithDescription("Total number of navigations performed by the redirector"),
		metric.WithUnit("{redirect}"),
	)

	m.RedirectsSuppressed, _ = meter.Int64Counter(
		"vibemeet.navigation.redirects.suppressed.total",
		metric.WithDescription("Total number of redirects ignored because one was already in progress"),
		metric.WithUnit("{redirect}"),
	)

	m.RoomResolutionsTotal, _ = meter.Int64Counter(
		"vibemeet.room.resolutions.total",
		metric.WithDescription("Total number of room resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.RoomLeavesTotal, _ = meter.Int64Counter(
		"vibemeet.room.leaves.total",
		metric.WithDescription("Total number of rooms left"),
		metric.WithUnit("{room}"),
	)

	m.CapabilityWaitDuration, _ = meter.Float64Histogram(
		"vibemeet.media.capability_wait.duration",
		metric.WithDescription("Time spent waiting for a media capability to register"),
		metric.WithUnit("ms"),
	)

	m.ChatMessagesTotal, _ = meter.Int64Counter(
		"vibemeet.chat.messages.total",
		metric.WithDescription("Total number of chat messages sent"),
		metric.WithUnit("{message}"),
	)

	return m
}
