package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

// 確定結果のメトリクスラベル
const (
	resultConfirmed     = "confirmed"
	resultIdempotent    = "idempotent"
	resultHoldRejected  = "hold_rejected"
	resultNotFound      = "not_found"
	resultConflict      = "conflict"
	resultPaymentFailed = "payment_failed"
	resultInvalid       = "invalid"
	resultError         = "error"
)

// BookingCoordinator は保留中のユニットをまとめて予約に確定する
// 処理は 予約作成(PENDING) → 決済 → 確定 の順で進み、確定は1トランザクションで行う
type BookingCoordinator struct {
	units     unit.Repository
	bookings  booking.Repository
	txManager transaction.Manager
	unitSvc   *UnitService
	lockSvc   *LockService
	ledger    *LedgerService
	payments  PaymentGateway
	guard     ConfirmGuard
	guardTTL  time.Duration
	clock     clock.Clock
	metrics   *metrics.Metrics
}

type CoordinatorDeps struct {
	Units     unit.Repository
	Bookings  booking.Repository
	TxManager transaction.Manager
	UnitSvc   *UnitService
	LockSvc   *LockService
	Ledger    *LedgerService
	Payments  PaymentGateway
	Guard     ConfirmGuard
	GuardTTL  time.Duration
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

func NewBookingCoordinator(deps CoordinatorDeps) *BookingCoordinator {
	return &BookingCoordinator{
		units:     deps.Units,
		bookings:  deps.Bookings,
		txManager: deps.TxManager,
		unitSvc:   deps.UnitSvc,
		lockSvc:   deps.LockSvc,
		ledger:    deps.Ledger,
		payments:  deps.Payments,
		guard:     deps.Guard,
		guardTTL:  deps.GuardTTL,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
	}
}

type ConfirmInput struct {
	Domain      booking.Domain
	ResourceID  string
	UnitIDs     []string
	RequesterID string
}

// Confirm は要求者が保留している全ユニットを1件の予約として確定する
// 1件でも条件を満たさなければ何も変更せずに全違反を返す
func (c *BookingCoordinator) Confirm(ctx context.Context, input ConfirmInput) (*booking.Booking, error) {
	start := time.Now()
	b, result, err := c.confirm(ctx, input)
	c.metrics.RecordBooking(string(input.Domain), result, time.Since(start))
	return b, err
}

func (c *BookingCoordinator) confirm(ctx context.Context, input ConfirmInput) (*booking.Booking, string, error) {
	if err := validateConfirmInput(input); err != nil {
		return nil, resultInvalid, err
	}

	if c.guard != nil {
		release, err := c.guard.Guard(ctx, input.RequesterID, input.UnitIDs, c.guardTTL)
		switch {
		case err == nil:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("確定ガードの解放に失敗", zap.Error(err))
				}
			}()
		case errs.Is(err, errs.ErrConflict):
			return nil, resultConflict, err
		default:
			// ガードが使えなくても CAS で整合性は保たれる
			logger.Warn("確定ガードを取得できませんでした", zap.Error(err))
		}
	}

	units, err := c.loadUnits(ctx, input)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, resultNotFound, err
		}
		return nil, resultError, err
	}

	if existing, ok := c.findConfirmed(ctx, input, units); ok {
		logger.Info("確定済みの予約を返します", zap.String("booking_id", existing.ID))
		return existing, resultIdempotent, nil
	}

	now := c.clock.Now()
	if violations := checkHolds(units, input.RequesterID, now); len(violations) > 0 {
		if err := c.unitSvc.reconcileIDs(ctx, input.UnitIDs, now); err != nil {
			logger.Warn("期限切れ保留の解放に失敗", zap.Error(err))
		}
		c.unitSvc.InvalidateCache(ctx, input.ResourceID)
		return nil, resultHoldRejected, unit.NewHoldError(violations)
	}

	// 予約作成
	pending, err := booking.NewBooking(input.RequesterID, input.Domain, input.ResourceID, input.UnitIDs, now)
	if err != nil {
		return nil, resultInvalid, err
	}
	err = transaction.Run(ctx, c.txManager, func(tx transaction.Tx) error {
		return c.ledger.Append(ctx, tx, pending)
	})
	if err != nil {
		if errs.Is(err, errs.ErrConflict) {
			return nil, resultConflict, err
		}
		return nil, resultError, fmt.Errorf("予約の作成に失敗: %w", err)
	}

	// 以降はクライアントが切断しても予約を確定状態まで進める
	ctx = context.WithoutCancel(ctx)

	// 決済
	var paymentID string
	if pending.TotalAmount > 0 && c.payments != nil {
		paymentID, err = c.payments.Capture(ctx, pending)
		if err != nil {
			logger.Warn("決済に失敗しました", zap.String("booking_id", pending.ID), zap.Error(err))
			if _, abandonErr := c.ledger.abandon(ctx, pending, "決済失敗: "+err.Error()); abandonErr != nil {
				logger.Error("決済失敗した予約の更新に失敗", zap.String("booking_id", pending.ID), zap.Error(abandonErr))
			}
			return nil, resultPaymentFailed, fmt.Errorf("予約 %s: %w", pending.ID, booking.ErrPaymentFailed)
		}
	}

	// 確定
	confirmed, err := c.finalize(ctx, pending, units, input.RequesterID)
	if err != nil {
		reason := "確定処理に失敗しました"
		var holdErr *unit.HoldError
		if errors.As(err, &holdErr) {
			reason = "確定時に保留が無効でした"
		}
		if _, expireErr := c.ledger.expire(ctx, pending, reason); expireErr != nil {
			logger.Error("予約の失効に失敗", zap.String("booking_id", pending.ID), zap.Error(expireErr))
		}
		c.voidPayment(ctx, paymentID)
		c.unitSvc.InvalidateCache(ctx, input.ResourceID)
		if holdErr != nil {
			return nil, resultHoldRejected, holdErr
		}
		return nil, resultError, err
	}

	c.unitSvc.InvalidateCache(ctx, input.ResourceID)
	c.ledger.publish(ctx, booking.EventConfirmed, confirmed)
	logger.Info("予約を確定しました",
		zap.String("booking_id", confirmed.ID),
		zap.String("domain", string(confirmed.Domain)),
		zap.String("user_id", confirmed.UserID),
		zap.Int("units", len(confirmed.UnitIDs)),
		zap.Int("total_amount", confirmed.TotalAmount),
	)
	return confirmed, resultConfirmed, nil
}

// BookSlot はカレンダーの枠を保留してそのまま確定する
// 確定に失敗した場合は保留を解放する
func (c *BookingCoordinator) BookSlot(ctx context.Context, unitID, requesterID string) (*booking.Booking, error) {
	hold, err := c.lockSvc.LockUnit(ctx, LockInput{
		Domain:  booking.DomainCalendar,
		UnitID:  unitID,
		OwnerID: requesterID,
	})
	if err != nil {
		return nil, err
	}

	b, err := c.Confirm(ctx, ConfirmInput{
		Domain:      booking.DomainCalendar,
		ResourceID:  hold.ResourceID,
		UnitIDs:     []string{unitID},
		RequesterID: requesterID,
	})
	if err != nil {
		if releaseErr := c.lockSvc.ReleaseUnit(context.WithoutCancel(ctx), unitID, requesterID); releaseErr != nil {
			logger.Warn("枠の保留解放に失敗", zap.String("unit_id", unitID), zap.Error(releaseErr))
		}
		return nil, err
	}
	return b, nil
}

func validateConfirmInput(input ConfirmInput) error {
	if !input.Domain.IsValid() {
		return booking.ErrInvalidDomain
	}
	if input.RequesterID == "" {
		return booking.ErrUserIDRequired
	}
	if input.ResourceID == "" {
		return booking.ErrResourceIDRequired
	}
	return booking.ValidateUnitIDs(input.Domain, input.UnitIDs)
}

// loadUnits は指定ユニットを取得する
// 存在しない・別リソース・別ドメインのユニットはまとめて NotFoundError にする
func (c *BookingCoordinator) loadUnits(ctx context.Context, input ConfirmInput) ([]*unit.Unit, error) {
	found, err := c.units.GetByIDs(ctx, input.UnitIDs)
	if err != nil {
		return nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	byID := make(map[string]*unit.Unit, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}

	var missing []string
	units := make([]*unit.Unit, 0, len(input.UnitIDs))
	for _, id := range input.UnitIDs {
		u, ok := byID[id]
		if !ok || u.ResourceID != input.ResourceID || u.Domain != string(input.Domain) {
			missing = append(missing, id)
			continue
		}
		units = append(units, u)
	}
	if len(missing) > 0 {
		return nil, &unit.NotFoundError{IDs: missing}
	}
	return units, nil
}

// findConfirmed は同じ要求が既に確定済みならその予約を返す
func (c *BookingCoordinator) findConfirmed(ctx context.Context, input ConfirmInput, units []*unit.Unit) (*booking.Booking, bool) {
	var bookingID string
	for _, u := range units {
		if u.Status != unit.StatusBooked || u.BookingID == nil {
			return nil, false
		}
		if bookingID == "" {
			bookingID = *u.BookingID
		}
		if *u.BookingID != bookingID {
			return nil, false
		}
	}

	b, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, false
	}
	if b.Status != booking.StatusConfirmed || !b.IsOwnedBy(input.RequesterID) || b.Domain != input.Domain || !b.SameUnits(input.UnitIDs) {
		return nil, false
	}
	return b, true
}

// finalize は全ユニットの予約済み化と予約の確定を1トランザクションで行う
func (c *BookingCoordinator) finalize(ctx context.Context, pending *booking.Booking, units []*unit.Unit, owner string) (*booking.Booking, error) {
	now := c.clock.Now()
	confirmed := pending.Clone()
	if err := confirmed.Confirm(now); err != nil {
		return nil, err
	}

	tx, err := c.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	var missed []string
	for _, u := range units {
		ok, err := c.units.CompareAndBook(ctx, tx, u.ID, u.Version, owner, pending.ID, now)
		if err != nil {
			return nil, fmt.Errorf("ユニット %s の確定に失敗: %w", u.ID, err)
		}
		if !ok {
			missed = append(missed, u.ID)
		}
	}
	if len(missed) > 0 {
		// 再分類の読み取りはトランザクションの外で行う
		if err := tx.Rollback(); err != nil {
			logger.Warn("ロールバックに失敗", zap.Error(err))
		}
		return nil, c.reclassify(ctx, units, missed, owner, now)
	}

	if err := c.bookings.UpdateStatus(ctx, tx, confirmed); err != nil {
		return nil, fmt.Errorf("予約の確定に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return confirmed, nil
}

// reclassify は CAS に失敗したユニットの理由を判定する
// 決済前に読んだ本人の保留が now で切れていれば、他人に取られていても expired とする
func (c *BookingCoordinator) reclassify(ctx context.Context, snapshot []*unit.Unit, ids []string, owner string, now time.Time) error {
	latest, err := c.units.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	byID := make(map[string]*unit.Unit, len(latest))
	for _, u := range latest {
		byID[u.ID] = u
	}
	held := make(map[string]*unit.Unit, len(snapshot))
	for _, u := range snapshot {
		held[u.ID] = u
	}

	violations := make([]unit.HoldViolation, 0, len(ids))
	for _, id := range ids {
		if prev, ok := held[id]; ok && prev.IsHoldLapsed(now) {
			violations = append(violations, unit.HoldViolation{UnitID: id, Reason: unit.ReasonExpired})
			continue
		}
		u, ok := byID[id]
		if !ok {
			violations = append(violations, unit.HoldViolation{UnitID: id, Reason: unit.ReasonNotLocked})
			continue
		}
		reason, valid := u.CheckHold(owner, now)
		if valid {
			// 保留は有効だが version が進んでいる
			reason = unit.ReasonNotOwned
		}
		violations = append(violations, unit.HoldViolation{UnitID: id, Reason: reason})
	}

	if _, err := c.units.ReleaseLapsedByIDs(ctx, ids, now); err != nil {
		logger.Warn("期限切れ保留の解放に失敗", zap.Error(err))
	}
	return unit.NewHoldError(violations)
}

func (c *BookingCoordinator) voidPayment(ctx context.Context, paymentID string) {
	if paymentID == "" || c.payments == nil {
		return
	}
	if err := c.payments.Void(ctx, paymentID); err != nil {
		logger.Error("決済の取り消しに失敗", zap.String("payment_id", paymentID), zap.Error(err))
	}
}

// checkHolds は全ユニットの保留を検証し、違反をすべて返す
func checkHolds(units []*unit.Unit, owner string, now time.Time) []unit.HoldViolation {
	var violations []unit.HoldViolation
	for _, u := range units {
		if reason, ok := u.CheckHold(owner, now); !ok {
			violations = append(violations, unit.HoldViolation{UnitID: u.ID, Reason: reason})
		}
	}
	return violations
}
