package setup

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers/cron"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers/health"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers/reminders"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/middlewares"
	"github.com/hopehouse/reminders/internal/adapters/metrics"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

type Handlers struct {
	Cron      *cron.Handler
	Reminders *reminders.Handler
	Health    *health.Handler
}

// Setup builds the router. Everything under /api requires the cron secret.
func Setup(h Handlers, cronSecret string, debug bool, logger *types.Logger) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.Logger(logger))
	r.Use(middlewares.Metrics())

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middlewares.CronSecret(cronSecret, logger))
	h.Cron.Setup(api.Group("/cron"))
	h.Reminders.Setup(api)

	return r
}
