package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/fx"

	"github.com/eleven-am/voice-capture/internal/delivery"
	"github.com/eleven-am/voice-capture/internal/health"
	"github.com/eleven-am/voice-capture/internal/peripheral"
	"github.com/eleven-am/voice-capture/internal/pipeline"
)

const version = "1.0.0"

func ProvideHealthHandler(
	p *pipeline.Pipeline,
	engine *delivery.Engine,
	perp *peripheral.Source,
) *health.Handler {
	var info health.PeripheralInfo
	if perp != nil {
		info = perp
	}
	return health.NewHandler(p, engine, info, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler, reg *prometheus.Registry) {
	h.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
