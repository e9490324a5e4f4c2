package booking

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ParseStatus は文字列から予約状態を得る
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusExpired:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// OccupiesUnits はユニットを占有している状態かを返す
// 処理中の予約は占有しない。ユニットの確保は CAS で決まる
func (s Status) OccupiesUnits() bool {
	return s == StatusConfirmed
}

// Booking は台帳に記録される予約
type Booking struct {
	ID            string
	UserID        string
	Domain        Domain
	ResourceID    string
	UnitIDs       []string
	Status        Status
	TotalAmount   int
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
}

// NewBooking は決済前の PENDING 予約を作成する。合計金額はここで確定する
func NewBooking(userID string, domain Domain, resourceID string, unitIDs []string, now time.Time) (*Booking, error) {
	b := &Booking{
		ID:          uuid.New().String(),
		UserID:      userID,
		Domain:      domain,
		ResourceID:  resourceID,
		UnitIDs:     append([]string(nil), unitIDs...),
		Status:      StatusPending,
		TotalAmount: domain.Price(len(unitIDs)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm は決済済みの予約を確定する
func (b *Booking) Confirm(now time.Time) error {
	if b.Status != StatusPending {
		return ErrBookingNotPending
	}
	b.Status = StatusConfirmed
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Expire は確定に至らなかった PENDING 予約を期限切れにする
func (b *Booking) Expire(reason string, now time.Time) error {
	if b.Status != StatusPending {
		return ErrBookingNotPending
	}
	b.Status = StatusExpired
	b.FailureReason = reason
	b.UpdatedAt = now
	return nil
}

// Cancel は予約をキャンセルする
func (b *Booking) Cancel(reason string, now time.Time) error {
	switch b.Status {
	case StatusCancelled:
		return ErrBookingAlreadyCancelled
	case StatusExpired:
		return ErrBookingNotCancellable
	}
	b.Status = StatusCancelled
	b.FailureReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}

func (b *Booking) IsOwnedBy(userID string) bool {
	return b.UserID == userID
}

// SameUnits は順序を無視してユニット集合が一致するかを返す
func (b *Booking) SameUnits(unitIDs []string) bool {
	if len(b.UnitIDs) != len(unitIDs) {
		return false
	}
	a := sortedCopy(b.UnitIDs)
	c := sortedCopy(unitIDs)
	for i := range a {
		if a[i] != c[i] {
			return false
		}
	}
	return true
}

// Clone は独立したコピーを返す
func (b *Booking) Clone() *Booking {
	c := *b
	c.UnitIDs = append([]string(nil), b.UnitIDs...)
	if b.ConfirmedAt != nil {
		t := *b.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if !b.Domain.IsValid() {
		return ErrInvalidDomain
	}
	if b.ResourceID == "" {
		return ErrResourceIDRequired
	}
	return ValidateUnitIDs(b.Domain, b.UnitIDs)
}

// ValidateUnitIDs はユニットIDの集合がドメインのルールを満たすか検証する
func ValidateUnitIDs(domain Domain, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return ErrUnitIDsRequired
	}
	seen := make(map[string]struct{}, len(unitIDs))
	for _, id := range unitIDs {
		if id == "" {
			return ErrUnitIDsRequired
		}
		if _, dup := seen[id]; dup {
			return ErrDuplicateUnitIDs
		}
		seen[id] = struct{}{}
	}
	if max := domain.Policy().MaxUnits; max > 0 && len(unitIDs) > max {
		return ErrTooManyUnits
	}
	return nil
}

func sortedCopy(ids []string) []string {
	c := append([]string(nil), ids...)
	sort.Strings(c)
	return c
}
