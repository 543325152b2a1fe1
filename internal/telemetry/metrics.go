package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	CallsScheduled     = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceref_calls_scheduled_total", Help: "Calls scheduled with a remote assistant"})
	DispatchResults    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "voiceref_dispatch_results_total", Help: "Due call dispatch attempts by result"}, []string{"result"})
	DispatchScans      = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceref_dispatch_scans_total", Help: "Dispatcher scans run"})
	WebhookEvents      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "voiceref_webhook_events_total", Help: "Voice webhook events by type and outcome"}, []string{"type", "outcome"})
	Notifications      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "voiceref_notifications_total", Help: "Outbound emails by template and result"}, []string{"template", "result"})
	FormatterFallbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceref_transcript_format_fallbacks_total", Help: "Transcripts stored raw because formatting failed"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CallsScheduled,
			DispatchResults,
			DispatchScans,
			WebhookEvents,
			Notifications,
			FormatterFallbacks,
		)
	})
	return promhttp.Handler()
}
