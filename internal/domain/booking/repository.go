package booking

import (
	"context"
	"time"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
)

// Repository は予約台帳のインターフェース
type Repository interface {
	// Create は予約を追加する（トランザクション必須）
	// 確定済みの予約とユニットが重なる場合は ErrUnitsInActiveBooking
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// ListByUser はユーザーの予約を新しい順に取得する
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Booking, error)

	// List は条件に合う予約と総件数を取得する
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)

	// UpdateStatus は状態と関連する時刻を更新する（トランザクション必須）
	// 確定時に他の確定済み予約とユニットが重なる場合は ErrUnitsInActiveBooking
	UpdateStatus(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetStalePending は createdBefore より前に作られた PENDING 予約を取得する
	GetStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*Booking, error)

	// Stats は台帳全体の集計を返す
	Stats(ctx context.Context) (*Stats, error)
}
