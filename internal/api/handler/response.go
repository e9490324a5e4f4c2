package handler

import (
	"time"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
)

type UnitResponse struct {
	ID            string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Domain        string     `json:"domain" example:"bus"`
	ResourceID    string     `json:"resource_id" example:"route-7"`
	Label         string     `json:"label" example:"A1"`
	Status        string     `json:"status" example:"available"`
	LockOwner     *string    `json:"lock_owner,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
	BookingID     *string    `json:"booking_id,omitempty"`
	Version       int        `json:"version"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toUnitResponse(u *unit.Unit) UnitResponse {
	return UnitResponse{
		ID: u.ID, Domain: u.Domain, ResourceID: u.ResourceID, Label: u.Label,
		Status: string(u.Status), LockOwner: u.LockOwner, LockExpiresAt: u.LockExpiresAt,
		BookingID: u.BookingID, Version: u.Version, UpdatedAt: u.UpdatedAt,
	}
}

func toUnitResponses(units []*unit.Unit) []UnitResponse {
	resp := make([]UnitResponse, len(units))
	for i, u := range units {
		resp[i] = toUnitResponse(u)
	}
	return resp
}

type HoldResponse struct {
	UnitID     string    `json:"unit_id"`
	ResourceID string    `json:"resource_id"`
	OwnerID    string    `json:"owner_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTLSeconds int       `json:"ttl_seconds" example:"600"`
}

func toHoldResponse(h *unit.Hold) HoldResponse {
	return HoldResponse{
		UnitID: h.UnitID, ResourceID: h.ResourceID, OwnerID: h.OwnerID,
		AcquiredAt: h.AcquiredAt, ExpiresAt: h.ExpiresAt, TTLSeconds: int(h.TTL.Seconds()),
	}
}

type BookingResponse struct {
	ID            string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID        string     `json:"user_id" example:"user-123"`
	Domain        string     `json:"domain" example:"bus"`
	ResourceID    string     `json:"resource_id" example:"route-7"`
	UnitIDs       []string   `json:"unit_ids"`
	Status        string     `json:"status" example:"confirmed"`
	TotalAmount   int        `json:"total_amount" example:"90"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, UserID: b.UserID, Domain: string(b.Domain), ResourceID: b.ResourceID,
		UnitIDs: b.UnitIDs, Status: string(b.Status), TotalAmount: b.TotalAmount,
		FailureReason: b.FailureReason, CreatedAt: b.CreatedAt,
		ConfirmedAt: b.ConfirmedAt, CancelledAt: b.CancelledAt,
	}
}

func toBookingResponses(bookings []*booking.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return resp
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type AvailableCountResponse struct {
	ResourceID string `json:"resource_id"`
	Available  int    `json:"available"`
}
