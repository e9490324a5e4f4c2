package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
)

// BookingRepository は booking.Repository のインメモリ実装
type BookingRepository struct {
	s *Store
}

func NewBookingRepository(s *Store) *BookingRepository {
	return &BookingRepository{s: s}
}

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	if _, exists := r.s.bookings[b.ID]; exists {
		return booking.ErrUnitsInActiveBooking
	}
	var occupied []string
	if b.Status.OccupiesUnits() {
		if occupied, err = r.occupy(b); err != nil {
			return err
		}
	}

	r.s.bookings[b.ID] = b.Clone()
	r.s.order = append(r.s.order, b.ID)

	mt.record(func() {
		delete(r.s.bookings, b.ID)
		r.s.order = r.s.order[:len(r.s.order)-1]
		for _, id := range occupied {
			delete(r.s.activeUnits, id)
		}
	})
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := r.collect(func(b *booking.Booking) bool { return b.UserID == userID })
	return page(matched, limit, offset), nil
}

func (r *BookingRepository) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error) {
	filter = filter.Normalize()
	q := strings.ToLower(strings.TrimSpace(filter.Query))

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := r.collect(func(b *booking.Booking) bool {
		if filter.Domain != "" && b.Domain != filter.Domain {
			return false
		}
		if filter.Status != "" && b.Status != filter.Status {
			return false
		}
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(b.ID), q) ||
			strings.Contains(strings.ToLower(b.UserID), q) ||
			strings.Contains(string(b.Domain), q)
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	current, ok := r.s.bookings[b.ID]
	if !ok {
		return booking.ErrBookingNotFound
	}

	var occupied, freed []string
	if b.Status.OccupiesUnits() {
		if occupied, err = r.occupy(b); err != nil {
			return err
		}
	} else {
		for _, id := range b.UnitIDs {
			if r.s.activeUnits[id] == b.ID {
				delete(r.s.activeUnits, id)
				freed = append(freed, id)
			}
		}
	}

	before := current.Clone()
	r.s.bookings[b.ID] = b.Clone()

	mt.record(func() {
		r.s.bookings[b.ID] = before
		for _, id := range occupied {
			delete(r.s.activeUnits, id)
		}
		for _, id := range freed {
			r.s.activeUnits[id] = b.ID
		}
	})
	return nil
}

// occupy は確定済み予約としてユニットを登録し、新たに登録したユニットを返す
func (r *BookingRepository) occupy(b *booking.Booking) ([]string, error) {
	for _, id := range b.UnitIDs {
		if owner, taken := r.s.activeUnits[id]; taken && owner != b.ID {
			return nil, booking.ErrUnitsInActiveBooking
		}
	}
	var added []string
	for _, id := range b.UnitIDs {
		if _, taken := r.s.activeUnits[id]; !taken {
			r.s.activeUnits[id] = b.ID
			added = append(added, id)
		}
	}
	return added, nil
}

func (r *BookingRepository) GetStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*booking.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*booking.Booking
	for _, id := range r.s.order {
		b := r.s.bookings[id]
		if b.Status == booking.StatusPending && b.CreatedAt.Before(createdBefore) {
			result = append(result, b.Clone())
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *BookingRepository) Stats(ctx context.Context) (*booking.Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := booking.NewStats()
	for _, b := range r.s.bookings {
		stats.Add(b)
	}
	return stats, nil
}

// collect は新しい順に条件を満たす予約を複製して返す
func (r *BookingRepository) collect(match func(*booking.Booking) bool) []*booking.Booking {
	var result []*booking.Booking
	for i := len(r.s.order) - 1; i >= 0; i-- {
		b := r.s.bookings[r.s.order[i]]
		if match(b) {
			result = append(result, b.Clone())
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func page(bookings []*booking.Booking, limit, offset int) []*booking.Booking {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(bookings) {
		return []*booking.Booking{}
	}
	bookings = bookings[offset:]
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings
}
