package booking

import "time"

// Filter は管理画面向けの一覧条件
type Filter struct {
	Domain Domain
	Status Status
	Query  string // ID・ユーザーID・ドメインに対する部分一致（大文字小文字を区別しない）
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize は Limit/Offset を既定範囲に収める
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Stats は管理ダッシュボードの集計
type Stats struct {
	TotalBookings  int            `json:"total_bookings"`
	ActiveBookings int            `json:"active_bookings"` // CONFIRMED の件数
	TotalRevenue   int            `json:"total_revenue"`   // CONFIRMED の合計金額
	ByStatus       map[Status]int `json:"by_status"`
	ByDomain       map[Domain]int `json:"by_domain"`
}

func NewStats() *Stats {
	return &Stats{
		ByStatus: make(map[Status]int),
		ByDomain: make(map[Domain]int),
	}
}

// Add は1件分を集計に加える
func (s *Stats) Add(b *Booking) {
	s.TotalBookings++
	s.ByStatus[b.Status]++
	s.ByDomain[b.Domain]++
	if b.Status == StatusConfirmed {
		s.ActiveBookings++
		s.TotalRevenue += b.TotalAmount
	}
}

// EventType は台帳イベントの種別
type EventType string

const (
	EventConfirmed EventType = "booking.confirmed"
	EventCancelled EventType = "booking.cancelled"
	EventExpired   EventType = "booking.expired"
)

// Event は予約状態の変化を外部へ通知するためのペイロード
type Event struct {
	Type        EventType `json:"type"`
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	Domain      Domain    `json:"domain"`
	ResourceID  string    `json:"resource_id"`
	UnitIDs     []string  `json:"unit_ids"`
	Status      Status    `json:"status"`
	TotalAmount int       `json:"total_amount"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewEvent(t EventType, b *Booking, now time.Time) Event {
	return Event{
		Type:        t,
		BookingID:   b.ID,
		UserID:      b.UserID,
		Domain:      b.Domain,
		ResourceID:  b.ResourceID,
		UnitIDs:     append([]string(nil), b.UnitIDs...),
		Status:      b.Status,
		TotalAmount: b.TotalAmount,
		Reason:      b.FailureReason,
		OccurredAt:  now,
	}
}
