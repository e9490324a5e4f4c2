package bootstrap

import (
	"go.uber.org/fx"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

var ServiceModule = fx.Module("service",
	fx.Provide(
		NewUnitService,
		NewLockService,
		application.NewLedgerService,
		NewPaymentGateway,
		NewBookingCoordinator,
	),
)

func NewUnitService(units unit.Repository, cache application.AvailabilityCache, clk clock.Clock, cfg *config.Config, m *metrics.Metrics) *application.UnitService {
	return application.NewUnitService(units, cache, clk, cfg.Reservation.AvailabilityCacheTTL, m)
}

func NewLockService(units unit.Repository, unitSvc *application.UnitService, clk clock.Clock, cfg *config.Config, m *metrics.Metrics) *application.LockService {
	return application.NewLockService(units, unitSvc, clk, cfg.Reservation.HoldTTL, m)
}

func NewPaymentGateway(cfg *config.Config) application.PaymentGateway {
	return application.NewSimulatedGateway(cfg.Reservation.PaymentDelay)
}

type coordinatorParams struct {
	fx.In

	Units     unit.Repository
	Bookings  booking.Repository
	TxManager transaction.Manager
	UnitSvc   *application.UnitService
	LockSvc   *application.LockService
	Ledger    *application.LedgerService
	Payments  application.PaymentGateway
	Guard     application.ConfirmGuard
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Config    *config.Config
}

func NewBookingCoordinator(p coordinatorParams) *application.BookingCoordinator {
	return application.NewBookingCoordinator(application.CoordinatorDeps{
		Units:     p.Units,
		Bookings:  p.Bookings,
		TxManager: p.TxManager,
		UnitSvc:   p.UnitSvc,
		LockSvc:   p.LockSvc,
		Ledger:    p.Ledger,
		Payments:  p.Payments,
		Guard:     p.Guard,
		GuardTTL:  p.Config.Reservation.ConfirmGuardTTL,
		Clock:     p.Clock,
		Metrics:   p.Metrics,
	})
}
