package memory

import (
	"context"
	"sort"
	"time"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
)

// UnitRepository は unit.Repository のインメモリ実装
type UnitRepository struct {
	s *Store
}

func NewUnitRepository(s *Store) *UnitRepository {
	return &UnitRepository{s: s}
}

func (r *UnitRepository) CreateBulk(ctx context.Context, units []*unit.Unit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range units {
		if err := u.Validate(); err != nil {
			return err
		}
		if _, exists := r.s.units[u.ID]; exists {
			return unit.ErrUnitNotAvailable
		}
	}
	for _, u := range units {
		r.s.units[u.ID] = u.Clone()
		r.s.byResource[u.ResourceID] = append(r.s.byResource[u.ResourceID], u.ID)
	}
	return nil
}

func (r *UnitRepository) GetByID(ctx context.Context, id string) (*unit.Unit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.units[id]
	if !ok {
		return nil, unit.ErrUnitNotFound
	}
	return u.Clone(), nil
}

func (r *UnitRepository) GetByIDs(ctx context.Context, ids []string) ([]*unit.Unit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := make([]*unit.Unit, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.s.units[id]; ok {
			result = append(result, u.Clone())
		}
	}
	return result, nil
}

func (r *UnitRepository) ListByResource(ctx context.Context, resourceID string) ([]*unit.Unit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := r.s.byResource[resourceID]
	result := make([]*unit.Unit, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.s.units[id].Clone())
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Label < result[j].Label })
	return result, nil
}

func (r *UnitRepository) ReleaseLapsed(ctx context.Context, resourceID string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var released int64
	if resourceID == "" {
		for _, u := range r.s.units {
			if u.Reconcile(now) {
				released++
			}
		}
		return released, nil
	}
	for _, id := range r.s.byResource[resourceID] {
		if r.s.units[id].Reconcile(now) {
			released++
		}
	}
	return released, nil
}

func (r *UnitRepository) ReleaseLapsedByIDs(ctx context.Context, ids []string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var released int64
	for _, id := range ids {
		if u, ok := r.s.units[id]; ok && u.Reconcile(now) {
			released++
		}
	}
	return released, nil
}

func (r *UnitRepository) CompareAndLock(ctx context.Context, id string, version int, owner string, acquiredAt, expiresAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.units[id]
	if !ok {
		return false, unit.ErrUnitNotFound
	}
	if u.Version != version || u.Status != unit.StatusAvailable {
		return false, nil
	}
	acquired, expires := acquiredAt, expiresAt
	u.Status = unit.StatusLocked
	u.LockOwner = &owner
	u.LockAcquiredAt = &acquired
	u.LockExpiresAt = &expires
	u.Version++
	u.UpdatedAt = acquiredAt
	return true, nil
}

func (r *UnitRepository) CompareAndRelease(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.units[id]
	if !ok {
		return false, unit.ErrUnitNotFound
	}
	if u.Status != unit.StatusLocked || u.LockOwner == nil || *u.LockOwner != owner {
		return false, nil
	}
	if err := u.Release(owner, now); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *UnitRepository) CompareAndBook(ctx context.Context, tx transaction.Tx, id string, version int, owner, bookingID string, now time.Time) (bool, error) {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return false, err
	}

	u, ok := r.s.units[id]
	if !ok {
		return false, unit.ErrUnitNotFound
	}
	if u.Version != version || !u.IsHeldBy(owner, now) {
		return false, nil
	}
	before := u.Clone()
	if err := u.Book(owner, bookingID, now); err != nil {
		return false, nil
	}
	mt.record(func() { r.s.units[id] = before })
	return true, nil
}

func (r *UnitRepository) ReleaseBooked(ctx context.Context, tx transaction.Tx, id, bookingID string, now time.Time) (bool, error) {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return false, err
	}

	u, ok := r.s.units[id]
	if !ok {
		return false, unit.ErrUnitNotFound
	}
	before := u.Clone()
	if err := u.Unbook(bookingID, now); err != nil {
		return false, nil
	}
	mt.record(func() { r.s.units[id] = before })
	return true, nil
}

func (r *UnitRepository) CountAvailable(ctx context.Context, resourceID string, now time.Time) (int, *time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := r.s.byResource[resourceID]
	if len(ids) == 0 {
		return 0, nil, unit.ErrResourceNotFound
	}

	var (
		count      int
		nextExpiry *time.Time
	)
	for _, id := range ids {
		u := r.s.units[id]
		if u.IsAvailable(now) {
			count++
			continue
		}
		if u.Status == unit.StatusLocked && u.LockExpiresAt != nil {
			if nextExpiry == nil || u.LockExpiresAt.Before(*nextExpiry) {
				t := *u.LockExpiresAt
				nextExpiry = &t
			}
		}
	}
	return count, nextExpiry, nil
}
