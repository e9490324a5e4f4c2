package booking

import "github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound         = errs.Mark(errs.New("予約が見つかりません"), errs.ErrNotFound)
	ErrInvalidDomain           = errs.Mark(errs.New("未対応のドメインです"), errs.ErrValidation)
	ErrInvalidStatus           = errs.Mark(errs.New("未対応の予約状態です"), errs.ErrValidation)
	ErrUserIDRequired          = errs.Mark(errs.New("ユーザーIDは必須です"), errs.ErrValidation)
	ErrResourceIDRequired      = errs.Mark(errs.New("リソースIDは必須です"), errs.ErrValidation)
	ErrUnitIDsRequired         = errs.Mark(errs.New("ユニットIDは1件以上必要です"), errs.ErrValidation)
	ErrDuplicateUnitIDs        = errs.Mark(errs.New("ユニットIDが重複しています"), errs.ErrValidation)
	ErrTooManyUnits            = errs.Mark(errs.New("このドメインで一度に予約できる数を超えています"), errs.ErrValidation)
	ErrAmountMismatch          = errs.Mark(errs.New("合計金額が一致しません"), errs.ErrValidation)
	ErrCancelNotSupported      = errs.Mark(errs.New("このドメインの予約はキャンセルできません"), errs.ErrValidation)
	ErrBookingNotPending       = errs.Mark(errs.New("予約は処理中ではありません"), errs.ErrConflict)
	ErrBookingAlreadyCancelled = errs.Mark(errs.New("予約は既にキャンセルされています"), errs.ErrConflict)
	ErrBookingNotCancellable   = errs.Mark(errs.New("この状態の予約はキャンセルできません"), errs.ErrConflict)
	ErrUnitsInActiveBooking    = errs.Mark(errs.New("ユニットは確定済みの予約に含まれています"), errs.ErrConflict)
	ErrNotBookingOwner         = errs.Mark(errs.New("この予約を操作する権限がありません"), errs.ErrForbidden)
	ErrPaymentFailed           = errs.Mark(errs.New("決済に失敗しました"), errs.ErrPaymentFailed)
)
