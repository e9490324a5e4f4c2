package handler

import (
	"context"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
)

// UnitServiceInterface はユニットサービスのインターフェース
type UnitServiceInterface interface {
	ListUnits(ctx context.Context, resourceID string) ([]*unit.Unit, error)
	GetUnit(ctx context.Context, id string) (*unit.Unit, error)
	CountAvailable(ctx context.Context, resourceID string) (int, error)
	ProvisionUnits(ctx context.Context, input application.ProvisionInput) ([]*unit.Unit, error)
}

// LockServiceInterface は保留サービスのインターフェース
type LockServiceInterface interface {
	LockUnit(ctx context.Context, input application.LockInput) (*unit.Hold, error)
	ReleaseUnit(ctx context.Context, unitID, ownerID string) error
}

// CoordinatorInterface は予約確定のインターフェース
type CoordinatorInterface interface {
	Confirm(ctx context.Context, input application.ConfirmInput) (*booking.Booking, error)
	BookSlot(ctx context.Context, unitID, requesterID string) (*booking.Booking, error)
}

// LedgerServiceInterface は予約台帳のインターフェース
type LedgerServiceInterface interface {
	Get(ctx context.Context, id, requesterID string, isAdmin bool) (*booking.Booking, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error)
	ListAll(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error)
	Stats(ctx context.Context) (*booking.Stats, error)
	Cancel(ctx context.Context, input application.CancelInput) (*booking.Booking, error)
	CancelByUnit(ctx context.Context, unitID, requesterID string, isAdmin bool) (*booking.Booking, error)
	Record(ctx context.Context, input application.RecordInput) (*booking.Booking, error)
}
