package httpapi

import (
	"voiceref/internal/voice"

	"github.com/gin-gonic/gin"
)

// RouteOptions carries the non-handler pieces of the route table.
type RouteOptions struct {
	CronSecret string
	Webhook    voice.WebhookHandler
}

// Register wires every public, webhook and internal route onto r.
func Register(r gin.IRouter, h Handlers, opts RouteOptions) {
	r.GET("/healthz", h.Healthz)

	// Provider webhooks. Authenticated by the shared secret header, not by middleware,
	// so that every authenticated delivery is acknowledged with 200.
	r.POST("/webhooks/voice", opts.Webhook.Handle)

	v1 := r.Group("/v1")
	{
		v1.POST("/reference-checks", h.CreateCheck)
		v1.GET("/reference-checks/:id", h.GetCheck)
		v1.GET("/reference-checks/:id/summary", h.CheckSummary)

		v1.POST("/questions/preview", h.PreviewQuestions)

		v1.POST("/candidate-links/:token/references", h.SubmitReferences)
		v1.GET("/reference-links/:token", h.GetReferenceLink)
		v1.POST("/reference-links/:token/schedule", h.ScheduleFromLink)
		v1.POST("/reference-links/:token/responses", h.SubmitResponses)

		v1.POST("/calls", h.ScheduleCall)
		v1.GET("/calls/:id", h.GetCall)
	}

	internal := r.Group("/internal")
	internal.Use(RequireCronSecret(opts.CronSecret))
	{
		internal.POST("/cron/dispatch", h.Dispatch)
		// Some schedulers can only issue GET.
		internal.GET("/cron/dispatch", h.Dispatch)
	}
}
