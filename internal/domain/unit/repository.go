package unit

import (
	"context"
	"time"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
)

// Repository はユニットリポジトリのインターフェース
// 状態遷移はすべて (id, version, status) をキーにした CAS で行い、成否を bool で返す
type Repository interface {
	// CreateBulk は複数のユニットを一括作成する
	CreateBulk(ctx context.Context, units []*Unit) error
	// GetByID はIDからユニットを取得する（期限切れの調整は行わない）
	GetByID(ctx context.Context, id string) (*Unit, error)
	// GetByIDs は複数IDのユニットを取得する。存在しないIDは結果に含まれない
	GetByIDs(ctx context.Context, ids []string) ([]*Unit, error)
	// ListByResource はリソースのユニット一覧をラベル順に取得する
	ListByResource(ctx context.Context, resourceID string) ([]*Unit, error)
	// ReleaseLapsed は期限切れの保留を解放する。resourceID が空なら全リソースが対象
	ReleaseLapsed(ctx context.Context, resourceID string, now time.Time) (int64, error)
	// ReleaseLapsedByIDs は指定ユニットのうち期限切れの保留を解放する
	ReleaseLapsedByIDs(ctx context.Context, ids []string, now time.Time) (int64, error)
	// CompareAndLock は AVAILABLE かつ version が一致する場合のみ保留する
	CompareAndLock(ctx context.Context, id string, version int, owner string, acquiredAt, expiresAt time.Time) (bool, error)
	// CompareAndRelease は owner の保留を解放する
	CompareAndRelease(ctx context.Context, id, owner string, now time.Time) (bool, error)
	// CompareAndBook は owner の期限内の保留を予約済みにする（トランザクション必須）
	CompareAndBook(ctx context.Context, tx transaction.Tx, id string, version int, owner, bookingID string, now time.Time) (bool, error)
	// ReleaseBooked は予約で確保したユニットを利用可能に戻す（トランザクション必須）
	ReleaseBooked(ctx context.Context, tx transaction.Tx, id, bookingID string, now time.Time) (bool, error)
	// CountAvailable は now 時点で保留可能なユニット数と、最も早い保留期限を返す
	CountAvailable(ctx context.Context, resourceID string, now time.Time) (int, *time.Time, error)
}
