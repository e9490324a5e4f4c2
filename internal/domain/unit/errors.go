package unit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
)

// Unit ドメインのエラー定義
var (
	ErrUnitNotFound       = errs.Mark(errs.New("ユニットが見つかりません"), errs.ErrNotFound)
	ErrResourceNotFound   = errs.Mark(errs.New("リソースが見つかりません"), errs.ErrNotFound)
	ErrUnitNotAvailable   = errs.Mark(errs.New("ユニットは既に保留または予約されています"), errs.ErrConflict)
	ErrUnitAlreadyBooked  = errs.Mark(errs.New("ユニットは既に予約済みです"), errs.ErrConflict)
	ErrUnitNotBooked      = errs.Mark(errs.New("ユニットはこの予約で確保されていません"), errs.ErrConflict)
	ErrHoldNotOwned       = errs.Mark(errs.New("保留の所有者ではありません"), errs.ErrOwnershipOrExpiry)
	ErrHoldExpired        = errs.Mark(errs.New("保留の期限が切れています"), errs.ErrOwnershipOrExpiry)
	ErrHoldInvalid        = errs.Mark(errs.New("保留が無効です"), errs.ErrOwnershipOrExpiry)
	ErrDomainRequired     = errs.Mark(errs.New("ドメインは必須です"), errs.ErrValidation)
	ErrResourceIDRequired = errs.Mark(errs.New("リソースIDは必須です"), errs.ErrValidation)
	ErrLabelRequired      = errs.Mark(errs.New("ラベルは必須です"), errs.ErrValidation)
	ErrOwnerRequired      = errs.Mark(errs.New("保留者IDは必須です"), errs.ErrValidation)
	ErrInvalidTTL         = errs.Mark(errs.New("保留期間は正の値である必要があります"), errs.ErrValidation)
	ErrInvalidCapacity    = errs.Mark(errs.New("作成するユニット数が不正です"), errs.ErrValidation)
)

// Reason は保留検証で不合格になった理由
type Reason string

const (
	ReasonExpired   Reason = "expired"
	ReasonNotOwned  Reason = "not_owned"
	ReasonNotLocked Reason = "not_locked"
	ReasonBooked    Reason = "booked"
)

// HoldViolation は保留検証に失敗したユニットと理由
type HoldViolation struct {
	UnitID string `json:"unit_id"`
	Reason Reason `json:"reason"`
}

// HoldError は確定時に保留を満たさなかったユニットをすべて列挙する
type HoldError struct {
	Violations []HoldViolation
}

func NewHoldError(violations []HoldViolation) *HoldError {
	sorted := append([]HoldViolation(nil), violations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnitID < sorted[j].UnitID })
	return &HoldError{Violations: sorted}
}

func (e *HoldError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s(%s)", v.UnitID, v.Reason)
	}
	return "保留が無効なユニットがあります: " + strings.Join(parts, ", ")
}

// Unwrap は期限切れを含むかどうかで対応するセンチネルを返す
func (e *HoldError) Unwrap() error {
	if e.HasExpired() {
		return ErrHoldExpired
	}
	return ErrHoldInvalid
}

func (e *HoldError) UnitIDs() []string {
	ids := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		ids[i] = v.UnitID
	}
	return ids
}

func (e *HoldError) HasExpired() bool {
	for _, v := range e.Violations {
		if v.Reason == ReasonExpired {
			return true
		}
	}
	return false
}

// NotFoundError は存在しない、または対象リソースに属さないユニットを列挙する
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return "ユニットが見つかりません: " + strings.Join(e.IDs, ", ")
}

func (e *NotFoundError) Unwrap() error {
	return ErrUnitNotFound
}

func (e *NotFoundError) UnitIDs() []string {
	return e.IDs
}
