package unit

import (
	"time"

	"github.com/google/uuid"
)

// Status はユニットの状態を表す
type Status string

const (
	StatusAvailable Status = "available"
	StatusLocked    Status = "locked"
	StatusBooked    Status = "booked"
)

// Unit は座席または予約枠を表す
type Unit struct {
	ID             string
	Domain         string // calendar, theater, bus, flight, train
	ResourceID     string // 便・公演・予約日など
	Label          string // 座席番号や時間帯
	Status         Status
	LockOwner      *string
	LockAcquiredAt *time.Time
	LockExpiresAt  *time.Time
	BookingID      *string
	Version        int // CAS用
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Hold は保留の情報。ユニットのロック項目以外には永続化されない
type Hold struct {
	UnitID     string        `json:"unit_id"`
	ResourceID string        `json:"resource_id"`
	OwnerID    string        `json:"owner_id"`
	AcquiredAt time.Time     `json:"acquired_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	TTL        time.Duration `json:"-"`
}

// NewUnit は利用可能な新しいユニットを作成する
func NewUnit(domain, resourceID, label string, now time.Time) *Unit {
	return &Unit{
		ID:         uuid.New().String(),
		Domain:     domain,
		ResourceID: resourceID,
		Label:      label,
		Status:     StatusAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    0,
	}
}

// IsAvailable はユニットが保留可能かを返す。期限切れの保留は利用可能とみなす
func (u *Unit) IsAvailable(now time.Time) bool {
	return u.Status == StatusAvailable || u.IsHoldLapsed(now)
}

// IsHoldLapsed は保留の期限が切れているかを返す（lockExpiresAt <= now）
func (u *Unit) IsHoldLapsed(now time.Time) bool {
	if u.Status != StatusLocked || u.LockExpiresAt == nil {
		return false
	}
	return !now.Before(*u.LockExpiresAt)
}

// IsHeldBy は owner が期限内の保留を持っているかを返す
func (u *Unit) IsHeldBy(owner string, now time.Time) bool {
	return u.Status == StatusLocked && !u.IsHoldLapsed(now) &&
		u.LockOwner != nil && *u.LockOwner == owner
}

// Reconcile は期限切れの保留を解放する。変更した場合は true
func (u *Unit) Reconcile(now time.Time) bool {
	if !u.IsHoldLapsed(now) {
		return false
	}
	u.clearLock()
	u.Status = StatusAvailable
	u.Version++
	u.UpdatedAt = now
	return true
}

// Lock はユニットを保留状態にする
func (u *Unit) Lock(owner string, now time.Time, ttl time.Duration) (*Hold, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	u.Reconcile(now)
	if u.Status != StatusAvailable {
		return nil, ErrUnitNotAvailable
	}
	expiresAt := now.Add(ttl)
	acquiredAt := now
	u.Status = StatusLocked
	u.LockOwner = &owner
	u.LockAcquiredAt = &acquiredAt
	u.LockExpiresAt = &expiresAt
	u.Version++
	u.UpdatedAt = now
	return u.Hold(), nil
}

// Release は保留者本人の保留を解除する。既に利用可能なら何もしない
func (u *Unit) Release(owner string, now time.Time) error {
	u.Reconcile(now)
	switch u.Status {
	case StatusAvailable:
		return nil
	case StatusBooked:
		return ErrUnitAlreadyBooked
	}
	if u.LockOwner == nil || *u.LockOwner != owner {
		return ErrHoldNotOwned
	}
	u.clearLock()
	u.Status = StatusAvailable
	u.Version++
	u.UpdatedAt = now
	return nil
}

// CheckHold は owner の保留が確定可能かを検証し、不可なら理由を返す
func (u *Unit) CheckHold(owner string, now time.Time) (Reason, bool) {
	switch u.Status {
	case StatusBooked:
		return ReasonBooked, false
	case StatusAvailable:
		return ReasonNotLocked, false
	}
	if u.LockOwner == nil || *u.LockOwner != owner {
		return ReasonNotOwned, false
	}
	if u.IsHoldLapsed(now) {
		return ReasonExpired, false
	}
	return "", true
}

// Book は保留中のユニットを予約済みにする
func (u *Unit) Book(owner, bookingID string, now time.Time) error {
	if reason, ok := u.CheckHold(owner, now); !ok {
		return NewHoldError([]HoldViolation{{UnitID: u.ID, Reason: reason}})
	}
	u.clearLock()
	u.Status = StatusBooked
	u.BookingID = &bookingID
	u.Version++
	u.UpdatedAt = now
	return nil
}

// Unbook は予約を取り消してユニットを利用可能に戻す
func (u *Unit) Unbook(bookingID string, now time.Time) error {
	if u.Status != StatusBooked || u.BookingID == nil || *u.BookingID != bookingID {
		return ErrUnitNotBooked
	}
	u.BookingID = nil
	u.Status = StatusAvailable
	u.Version++
	u.UpdatedAt = now
	return nil
}

// Hold は現在の保留情報を返す。保留中でなければ nil
func (u *Unit) Hold() *Hold {
	if u.Status != StatusLocked || u.LockOwner == nil || u.LockAcquiredAt == nil || u.LockExpiresAt == nil {
		return nil
	}
	return &Hold{
		UnitID:     u.ID,
		ResourceID: u.ResourceID,
		OwnerID:    *u.LockOwner,
		AcquiredAt: *u.LockAcquiredAt,
		ExpiresAt:  *u.LockExpiresAt,
		TTL:        u.LockExpiresAt.Sub(*u.LockAcquiredAt),
	}
}

// Clone はポインタ項目も含めて複製する
func (u *Unit) Clone() *Unit {
	c := *u
	c.LockOwner = clonePtr(u.LockOwner)
	c.LockAcquiredAt = clonePtr(u.LockAcquiredAt)
	c.LockExpiresAt = clonePtr(u.LockExpiresAt)
	c.BookingID = clonePtr(u.BookingID)
	return &c
}

// Validate はユニットの検証を行う
func (u *Unit) Validate() error {
	if u.Domain == "" {
		return ErrDomainRequired
	}
	if u.ResourceID == "" {
		return ErrResourceIDRequired
	}
	if u.Label == "" {
		return ErrLabelRequired
	}
	return nil
}

func (u *Unit) clearLock() {
	u.LockOwner = nil
	u.LockAcquiredAt = nil
	u.LockExpiresAt = nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
