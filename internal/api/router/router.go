package router

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-reservation-engine/internal/api"
	"github.com/sanosuguru/go-reservation-engine/internal/api/handler"
	"github.com/sanosuguru/go-reservation-engine/internal/api/middleware"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

const apiPrefix = "/api/v1"

// Handlers はルーティングに必要なハンドラー一式
type Handlers struct {
	Units    *handler.UnitHandler
	Bookings *handler.BookingHandler
	Health   *handler.HealthHandler
}

// Options はルーティングの付帯設定
type Options struct {
	AllowOrigins []string
	Metrics      *metrics.Metrics
	// MetricsHandler が nil なら /metrics を公開しない
	MetricsHandler http.Handler
	MetricsAuth    config.MetricsConfig
}

// New は共通ミドルウェアとルートを設定した Echo を作成する
func New(h Handlers, authn *middleware.Authenticator, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e, opts.AllowOrigins)
	if opts.Metrics != nil {
		e.Use(middleware.PrometheusMiddleware(opts.Metrics))
	}

	Register(e, h, authn)

	if opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(opts.MetricsHandler), middleware.MetricsBasicAuth(opts.MetricsAuth))
	}
	return e
}

// Register は /api/v1 以下のルートを登録する
func Register(e *echo.Echo, h Handlers, authn *middleware.Authenticator) {
	e.GET("/health", h.Health.Check)

	v1 := e.Group(apiPrefix)
	v1.GET("/health", h.Health.Check)

	requireAuth := authn.RequireAuth()
	requireAdmin := authn.RequireAdmin()

	for _, d := range booking.AllDomains() {
		noun := d.Policy().UnitNoun
		g := v1.Group("/"+string(d), requireAuth)

		g.GET(fmt.Sprintf("/resources/:resource_id/%s", noun), h.Units.List(d))
		g.GET(fmt.Sprintf("/resources/:resource_id/%s/available-count", noun), h.Units.CountAvailable(d))
		g.POST(fmt.Sprintf("/resources/:resource_id/%s", noun), h.Units.Provision(d), requireAdmin)
		g.GET(fmt.Sprintf("/%s/:id", noun), h.Units.Get(d))
		g.POST(fmt.Sprintf("/%s/:id/lock", noun), h.Units.Lock(d))
		g.DELETE(fmt.Sprintf("/%s/:id/lock", noun), h.Units.Release(d))
		g.PUT("/bookings/confirm", h.Bookings.Confirm(d))

		if d == booking.DomainCalendar {
			g.POST(fmt.Sprintf("/%s/:id/book", noun), h.Bookings.BookSlot)
			g.DELETE(fmt.Sprintf("/%s/:id", noun), h.Bookings.CancelSlot)
		}
	}

	bookings := v1.Group("/bookings", requireAuth)
	bookings.POST("", h.Bookings.Record)
	bookings.GET("", h.Bookings.ListAll, requireAdmin)
	bookings.GET("/my-bookings", h.Bookings.MyBookings)
	bookings.GET("/stats", h.Bookings.Stats, requireAdmin)
	bookings.GET("/:id", h.Bookings.GetByID)
	bookings.POST("/:id/cancel", h.Bookings.Cancel)
}
