package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/memory"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
)

var baseTime = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	clock       *clock.MockClock
	store       *memory.Store
	units       *memory.UnitRepository
	bookings    *memory.BookingRepository
	unitSvc     *UnitService
	lockSvc     *LockService
	ledger      *LedgerService
	coordinator *BookingCoordinator
	publisher   *recordingPublisher
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:     clock.NewMockClock(baseTime),
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
	}
	env.units = memory.NewUnitRepository(env.store)
	env.bookings = memory.NewBookingRepository(env.store)
	env.unitSvc = NewUnitService(env.units, nil, env.clock, 30*time.Second, nil)
	env.lockSvc = NewLockService(env.units, env.unitSvc, env.clock, booking.DefaultHoldTTL, nil)
	env.ledger = NewLedgerService(env.bookings, env.unitSvc, env.lockSvc, env.store, env.publisher, env.clock, nil)
	env.coordinator = env.newCoordinator(NewSimulatedGateway(0), nil)
	return env
}

func (e *testEnv) newCoordinator(payments PaymentGateway, guard ConfirmGuard) *BookingCoordinator {
	return NewBookingCoordinator(CoordinatorDeps{
		Units:     e.units,
		Bookings:  e.bookings,
		TxManager: e.store,
		UnitSvc:   e.unitSvc,
		LockSvc:   e.lockSvc,
		Ledger:    e.ledger,
		Payments:  payments,
		Guard:     guard,
		GuardTTL:  30 * time.Second,
		Clock:     e.clock,
	})
}

// provision はラベル名でユニットを作成し、ラベルからIDを引けるようにする
func (e *testEnv) provision(t *testing.T, d booking.Domain, resourceID string, labels ...string) map[string]string {
	t.Helper()
	units, err := e.unitSvc.ProvisionUnits(context.Background(), ProvisionInput{
		Domain:     d,
		ResourceID: resourceID,
		Labels:     labels,
	})
	require.NoError(t, err)
	ids := make(map[string]string, len(units))
	for _, u := range units {
		ids[u.Label] = u.ID
	}
	return ids
}

func (e *testEnv) lock(t *testing.T, d booking.Domain, unitID, owner string) {
	t.Helper()
	_, err := e.lockSvc.LockUnit(context.Background(), LockInput{Domain: d, UnitID: unitID, OwnerID: owner})
	require.NoError(t, err)
}

func (e *testEnv) unit(t *testing.T, id string) *unit.Unit {
	t.Helper()
	u, err := e.units.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// TestScenario_ConcurrentLockSameUnit は同じ席への同時保留で1人だけが成功することを確認する
func TestScenario_ConcurrentLockSameUnit(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.provision(t, booking.DomainTheater, "show-1", "L3", "L4", "L5")

	const users = 20
	var (
		wg        sync.WaitGroup
		successes int32
		conflicts int32
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.lockSvc.LockUnit(context.Background(), LockInput{
				Domain:  booking.DomainTheater,
				UnitID:  ids["L4"],
				OwnerID: "user-" + string(rune('a'+n)),
			})
			if err == nil {
				atomic.AddInt32(&successes, 1)
				return
			}
			if errs.Is(err, errs.ErrConflict) {
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(users-1), conflicts)
	assert.Equal(t, unit.StatusLocked, env.unit(t, ids["L4"]).Status)
}

// TestScenario_HoldExpiresBeforeConfirm は保留期限切れ後の確定が拒否されることを確認する
func TestScenario_HoldExpiresBeforeConfirm(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainTheater, "show-1", "3A", "3B")

	env.lock(t, booking.DomainTheater, ids["3A"], "alice")
	env.clock.Add(11 * time.Minute)

	_, err := env.coordinator.Confirm(ctx, ConfirmInput{
		Domain:      booking.DomainTheater,
		ResourceID:  "show-1",
		UnitIDs:     []string{ids["3A"]},
		RequesterID: "alice",
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrOwnershipOrExpiry))
	assert.True(t, errs.Is(err, unit.ErrHoldExpired))

	var holdErr *unit.HoldError
	require.ErrorAs(t, err, &holdErr)
	assert.Equal(t, []string{ids["3A"]}, holdErr.UnitIDs())
	assert.Equal(t, unit.ReasonExpired, holdErr.Violations[0].Reason)

	t.Run("期限切れの席は利用可能に戻っている", func(t *testing.T) {
		assert.Equal(t, unit.StatusAvailable, env.unit(t, ids["3A"]).Status)
		env.lock(t, booking.DomainTheater, ids["3A"], "bob")
	})

	t.Run("予約は作られていない", func(t *testing.T) {
		stats, err := env.ledger.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalBookings)
	})
}

// TestScenario_ExpiryBoundary は期限ちょうどの時刻で保留が失効していることを確認する
func TestScenario_ExpiryBoundary(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.provision(t, booking.DomainFlight, "FL-100", "12C")

	env.lock(t, booking.DomainFlight, ids["12C"], "alice")

	env.clock.Add(booking.DefaultHoldTTL - time.Second)
	_, err := env.lockSvc.LockUnit(context.Background(), LockInput{Domain: booking.DomainFlight, UnitID: ids["12C"], OwnerID: "bob"})
	assert.ErrorIs(t, err, unit.ErrUnitNotAvailable)

	env.clock.Add(time.Second)
	env.lock(t, booking.DomainFlight, ids["12C"], "bob")
}

// TestScenario_MultiSeatBusBooking は複数席の確定で合計金額が計算されることを確認する
func TestScenario_MultiSeatBusBooking(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainBus, "route-7", "A1", "A2", "A3")

	env.lock(t, booking.DomainBus, ids["A1"], "alice")
	env.lock(t, booking.DomainBus, ids["A2"], "alice")

	b, err := env.coordinator.Confirm(ctx, ConfirmInput{
		Domain:      booking.DomainBus,
		ResourceID:  "route-7",
		UnitIDs:     []string{ids["A1"], ids["A2"]},
		RequesterID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Equal(t, 90, b.TotalAmount)
	assert.NotNil(t, b.ConfirmedAt)

	for _, label := range []string{"A1", "A2"} {
		u := env.unit(t, ids[label])
		assert.Equal(t, unit.StatusBooked, u.Status)
		require.NotNil(t, u.BookingID)
		assert.Equal(t, b.ID, *u.BookingID)
		assert.Nil(t, u.LockOwner)
	}
	assert.Equal(t, unit.StatusAvailable, env.unit(t, ids["A3"]).Status)
	assert.Equal(t, []booking.EventType{booking.EventConfirmed}, env.publisher.Types())

	count, err := env.unitSvc.CountAvailable(ctx, "route-7")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mine, err := env.ledger.ListByUser(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, b.ID, mine[0].ID)
}

// TestScenario_IdempotentConfirm は同じ確定要求の再送で同じ予約が返ることを確認する
func TestScenario_IdempotentConfirm(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainTrain, "TR-1", "1A", "1B")

	env.lock(t, booking.DomainTrain, ids["1A"], "alice")
	env.lock(t, booking.DomainTrain, ids["1B"], "alice")

	input := ConfirmInput{
		Domain:      booking.DomainTrain,
		ResourceID:  "TR-1",
		UnitIDs:     []string{ids["1A"], ids["1B"]},
		RequesterID: "alice",
	}
	first, err := env.coordinator.Confirm(ctx, input)
	require.NoError(t, err)

	input.UnitIDs = []string{ids["1B"], ids["1A"]}
	second, err := env.coordinator.Confirm(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 170, second.TotalAmount)

	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBookings)

	t.Run("他人の再送は拒否される", func(t *testing.T) {
		input.RequesterID = "bob"
		_, err := env.coordinator.Confirm(ctx, input)
		var holdErr *unit.HoldError
		require.ErrorAs(t, err, &holdErr)
		for _, v := range holdErr.Violations {
			assert.Equal(t, unit.ReasonBooked, v.Reason)
		}
	})
}

// TestScenario_BatchRejectedAtomically は1席でも違反があれば何も変更されないことを確認する
func TestScenario_BatchRejectedAtomically(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainTheater, "show-1", "A1", "A2", "A3")

	env.lock(t, booking.DomainTheater, ids["A1"], "alice")
	env.lock(t, booking.DomainTheater, ids["A2"], "bob")

	_, err := env.coordinator.Confirm(ctx, ConfirmInput{
		Domain:      booking.DomainTheater,
		ResourceID:  "show-1",
		UnitIDs:     []string{ids["A1"], ids["A2"], ids["A3"]},
		RequesterID: "alice",
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrOwnershipOrExpiry))

	var holdErr *unit.HoldError
	require.ErrorAs(t, err, &holdErr)
	reasons := map[string]unit.Reason{}
	for _, v := range holdErr.Violations {
		reasons[v.UnitID] = v.Reason
	}
	assert.Equal(t, map[string]unit.Reason{
		ids["A2"]: unit.ReasonNotOwned,
		ids["A3"]: unit.ReasonNotLocked,
	}, reasons)

	a1 := env.unit(t, ids["A1"])
	assert.Equal(t, unit.StatusLocked, a1.Status)
	assert.Equal(t, "alice", *a1.LockOwner)
	assert.Equal(t, unit.StatusLocked, env.unit(t, ids["A2"]).Status)
	assert.Equal(t, unit.StatusAvailable, env.unit(t, ids["A3"]).Status)

	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalBookings)
	assert.Empty(t, env.publisher.Types())
}

// TestScenario_UnknownUnits は存在しないユニットがまとめて NotFound になることを確認する
func TestScenario_UnknownUnits(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.provision(t, booking.DomainBus, "route-7", "A1")
	env.provision(t, booking.DomainBus, "route-8", "B1")
	env.lock(t, booking.DomainBus, ids["A1"], "alice")

	_, err := env.coordinator.Confirm(context.Background(), ConfirmInput{
		Domain:      booking.DomainBus,
		ResourceID:  "route-7",
		UnitIDs:     []string{ids["A1"], "ghost-1", "ghost-2"},
		RequesterID: "alice",
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	var nf *unit.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"ghost-1", "ghost-2"}, nf.UnitIDs())
	assert.Equal(t, unit.StatusLocked, env.unit(t, ids["A1"]).Status)
}

// TestScenario_CalendarBookCancelRelock はカレンダー枠のキャンセル後に再予約できることを確認する
func TestScenario_CalendarBookCancelRelock(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainCalendar, "dr-sato-2025-01-02", "09:00", "09:30")
	slot := ids["09:00"]

	b, err := env.coordinator.BookSlot(ctx, slot, "alice")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Equal(t, 0, b.TotalAmount)
	assert.Equal(t, unit.StatusBooked, env.unit(t, slot).Status)

	t.Run("他人は予約済みの枠を取れない", func(t *testing.T) {
		_, err := env.coordinator.BookSlot(ctx, slot, "bob")
		assert.ErrorIs(t, err, unit.ErrUnitNotAvailable)
	})

	t.Run("他人はキャンセルできない", func(t *testing.T) {
		_, err := env.ledger.CancelByUnit(ctx, slot, "bob", false)
		assert.ErrorIs(t, err, booking.ErrNotBookingOwner)
	})

	cancelled, err := env.ledger.CancelByUnit(ctx, slot, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, unit.StatusAvailable, env.unit(t, slot).Status)

	rebooked, err := env.coordinator.BookSlot(ctx, slot, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, rebooked.ID)

	_, err = env.ledger.Cancel(ctx, CancelInput{BookingID: b.ID, RequesterID: "alice"})
	assert.ErrorIs(t, err, booking.ErrBookingAlreadyCancelled)

	assert.Equal(t, []booking.EventType{
		booking.EventConfirmed,
		booking.EventCancelled,
		booking.EventConfirmed,
	}, env.publisher.Types())
}

// TestScenario_CalendarRejectsMultipleSlots はカレンダーで複数枠の確定が拒否されることを確認する
func TestScenario_CalendarRejectsMultipleSlots(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.provision(t, booking.DomainCalendar, "room-1", "09:00", "10:00")
	env.lock(t, booking.DomainCalendar, ids["09:00"], "alice")
	env.lock(t, booking.DomainCalendar, ids["10:00"], "alice")

	_, err := env.coordinator.Confirm(context.Background(), ConfirmInput{
		Domain:      booking.DomainCalendar,
		ResourceID:  "room-1",
		UnitIDs:     []string{ids["09:00"], ids["10:00"]},
		RequesterID: "alice",
	})
	assert.ErrorIs(t, err, booking.ErrTooManyUnits)
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

// TestScenario_NonReleasableCancel は座席ドメインの予約がキャンセルできないことを確認する
func TestScenario_NonReleasableCancel(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainFlight, "FL-1", "1A")
	env.lock(t, booking.DomainFlight, ids["1A"], "alice")

	b, err := env.coordinator.Confirm(ctx, ConfirmInput{
		Domain:      booking.DomainFlight,
		ResourceID:  "FL-1",
		UnitIDs:     []string{ids["1A"]},
		RequesterID: "alice",
	})
	require.NoError(t, err)

	_, err = env.ledger.Cancel(ctx, CancelInput{BookingID: b.ID, RequesterID: "alice"})
	assert.ErrorIs(t, err, booking.ErrCancelNotSupported)
	assert.Equal(t, unit.StatusBooked, env.unit(t, ids["1A"]).Status)
}

// TestScenario_ExplicitRelease は解放した席をすぐに他人が保留できることを確認する
func TestScenario_ExplicitRelease(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainTheater, "show-1", "B7")

	env.lock(t, booking.DomainTheater, ids["B7"], "alice")

	t.Run("本人以外は解放できない", func(t *testing.T) {
		err := env.lockSvc.ReleaseUnit(ctx, ids["B7"], "bob")
		assert.ErrorIs(t, err, unit.ErrHoldNotOwned)
		assert.True(t, errs.Is(err, errs.ErrOwnershipOrExpiry))
	})

	t.Run("本人による再保留は競合になる", func(t *testing.T) {
		_, err := env.lockSvc.LockUnit(ctx, LockInput{Domain: booking.DomainTheater, UnitID: ids["B7"], OwnerID: "alice"})
		assert.ErrorIs(t, err, unit.ErrUnitNotAvailable)
	})

	require.NoError(t, env.lockSvc.ReleaseUnit(ctx, ids["B7"], "alice"))
	env.lock(t, booking.DomainTheater, ids["B7"], "bob")

	t.Run("利用可能な席の解放は何もしない", func(t *testing.T) {
		other := env.provision(t, booking.DomainTheater, "show-2", "C1")
		assert.NoError(t, env.lockSvc.ReleaseUnit(ctx, other["C1"], "carol"))
	})
}

// TestScenario_DomainMismatch は別ドメインからのユニット操作が見つからない扱いになることを確認する
func TestScenario_DomainMismatch(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.provision(t, booking.DomainBus, "route-7", "A1")

	_, err := env.lockSvc.LockUnit(context.Background(), LockInput{Domain: booking.DomainFlight, UnitID: ids["A1"], OwnerID: "alice"})
	assert.ErrorIs(t, err, unit.ErrUnitNotFound)

	env.lock(t, booking.DomainBus, ids["A1"], "alice")
	_, err = env.coordinator.Confirm(context.Background(), ConfirmInput{
		Domain:      booking.DomainFlight,
		ResourceID:  "route-7",
		UnitIDs:     []string{ids["A1"]},
		RequesterID: "alice",
	})
	var nf *unit.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{ids["A1"]}, nf.UnitIDs())
}

// TestScenario_ExpireStalePending は放置された処理中予約が失効しユニットが解放されることを確認する
func TestScenario_ExpireStalePending(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ids := env.provision(t, booking.DomainTheater, "show-1", "A1")

	pending, err := booking.NewBooking("alice", booking.DomainTheater, "show-1", []string{ids["A1"]}, env.clock.Now())
	require.NoError(t, err)
	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, env.ledger.Append(ctx, tx, pending))
	require.NoError(t, tx.Commit())

	n, err := env.ledger.ExpireStalePending(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.clock.Add(16 * time.Minute)
	n, err = env.ledger.ExpireStalePending(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.ledger.Get(ctx, pending.ID, "", true)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusExpired, got.Status)
	assert.Equal(t, []booking.EventType{booking.EventExpired}, env.publisher.Types())

	// 失効した予約のユニットは新しい予約に使える
	env.lock(t, booking.DomainTheater, ids["A1"], "bob")
	_, err = env.coordinator.Confirm(ctx, ConfirmInput{
		Domain:      booking.DomainTheater,
		ResourceID:  "show-1",
		UnitIDs:     []string{ids["A1"]},
		RequesterID: "bob",
	})
	require.NoError(t, err)
}
