package main

import (
	"context"
	"time"

	"voiceref/internal/calls"
	"voiceref/internal/checks"
	"voiceref/internal/httpapi"
	"voiceref/internal/questions"
	"voiceref/internal/reporting"
	"voiceref/internal/telemetry"
	"voiceref/internal/voice"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Checks     *checks.Service
	Questions  *questions.Service
	Scheduler  *calls.Scheduler
	Dispatcher *calls.Dispatcher
	Tracker    *calls.Tracker
	Reporting  *reporting.Service

	CronSecret    string
	WebhookSecret string
	Health        func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	httpapi.Register(r, httpapi.Handlers{
		Checks:     d.Checks,
		Questions:  d.Questions,
		Scheduler:  d.Scheduler,
		Dispatcher: d.Dispatcher,
		Reporting:  d.Reporting,
		Health:     d.Health,
	}, httpapi.RouteOptions{
		CronSecret: d.CronSecret,
		Webhook: voice.WebhookHandler{
			Secret:  d.WebhookSecret,
			Events:  d.Tracker,
			Timeout: 45 * time.Second,
		},
	})
}
