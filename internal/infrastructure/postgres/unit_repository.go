package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
)

const unitColumns = `id, domain, resource_id, label, status, lock_owner, lock_acquired_at, lock_expires_at, booking_id, version, created_at, updated_at`

// 保留解除時にロック項目を消して version を進める
const clearLockSet = `status = 'available', lock_owner = NULL, lock_acquired_at = NULL, lock_expires_at = NULL, version = version + 1`

type unitRow struct {
	ID             string     `db:"id"`
	Domain         string     `db:"domain"`
	ResourceID     string     `db:"resource_id"`
	Label          string     `db:"label"`
	Status         string     `db:"status"`
	LockOwner      *string    `db:"lock_owner"`
	LockAcquiredAt *time.Time `db:"lock_acquired_at"`
	LockExpiresAt  *time.Time `db:"lock_expires_at"`
	BookingID      *string    `db:"booking_id"`
	Version        int        `db:"version"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (r *unitRow) toEntity() *unit.Unit {
	return &unit.Unit{
		ID: r.ID, Domain: r.Domain, ResourceID: r.ResourceID, Label: r.Label,
		Status:    unit.Status(r.Status),
		LockOwner: r.LockOwner, LockAcquiredAt: r.LockAcquiredAt, LockExpiresAt: r.LockExpiresAt,
		BookingID: r.BookingID, Version: r.Version,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type UnitRepository struct{ db *sqlx.DB }

func NewUnitRepository(db *sqlx.DB) *UnitRepository { return &UnitRepository{db: db} }

func (r *UnitRepository) CreateBulk(ctx context.Context, units []*unit.Unit) error {
	if len(units) == 0 {
		return nil
	}

	// バッチサイズごとに分割してマルチバリューINSERTを実行
	const batchSize = 1000
	for i := 0; i < len(units); i += batchSize {
		end := i + batchSize
		if end > len(units) {
			end = len(units)
		}
		if err := r.createBulkBatch(ctx, units[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *UnitRepository) createBulkBatch(ctx context.Context, units []*unit.Unit) error {
	const cols = 8
	query := `INSERT INTO units (id, domain, resource_id, label, status, version, created_at, updated_at) VALUES `
	args := make([]interface{}, 0, len(units)*cols)
	placeholders := make([]string, 0, len(units))

	for i, u := range units {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, u.ID, u.Domain, u.ResourceID, u.Label, string(u.Status), u.Version, u.CreatedAt, u.UpdatedAt)
	}

	query += strings.Join(placeholders, ", ")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ユニット一括作成に失敗: %w", unit.ErrUnitNotAvailable)
		}
		return fmt.Errorf("ユニット一括作成に失敗: %w", err)
	}
	return nil
}

func (r *UnitRepository) GetByID(ctx context.Context, id string) (*unit.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`
	var row unitRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unit.ErrUnitNotFound
		}
		return nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *UnitRepository) GetByIDs(ctx context.Context, ids []string) ([]*unit.Unit, error) {
	if len(ids) == 0 {
		return []*unit.Unit{}, nil
	}
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = ANY($1)`
	var rows []unitRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	return toUnits(rows), nil
}

func (r *UnitRepository) ListByResource(ctx context.Context, resourceID string) ([]*unit.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE resource_id = $1 ORDER BY label`
	var rows []unitRow
	if err := r.db.SelectContext(ctx, &rows, query, resourceID); err != nil {
		return nil, fmt.Errorf("ユニット一覧取得に失敗: %w", err)
	}
	return toUnits(rows), nil
}

func (r *UnitRepository) ReleaseLapsed(ctx context.Context, resourceID string, now time.Time) (int64, error) {
	query := `UPDATE units SET ` + clearLockSet + `, updated_at = $1
		WHERE status = 'locked' AND lock_expires_at <= $1`
	args := []interface{}{now}
	if resourceID != "" {
		query += ` AND resource_id = $2`
		args = append(args, resourceID)
	}
	return r.execAffected(ctx, r.db, query, args...)
}

func (r *UnitRepository) ReleaseLapsedByIDs(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE units SET ` + clearLockSet + `, updated_at = $1
		WHERE status = 'locked' AND lock_expires_at <= $1 AND id = ANY($2)`
	return r.execAffected(ctx, r.db, query, now, pq.Array(ids))
}

func (r *UnitRepository) CompareAndLock(ctx context.Context, id string, version int, owner string, acquiredAt, expiresAt time.Time) (bool, error) {
	query := `UPDATE units
		SET status = 'locked', lock_owner = $3, lock_acquired_at = $4, lock_expires_at = $5,
			version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND status = 'available'`
	n, err := r.execAffected(ctx, r.db, query, id, version, owner, acquiredAt, expiresAt)
	return n == 1, err
}

func (r *UnitRepository) CompareAndRelease(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	query := `UPDATE units SET ` + clearLockSet + `, updated_at = $3
		WHERE id = $1 AND status = 'locked' AND lock_owner = $2`
	n, err := r.execAffected(ctx, r.db, query, id, owner, now)
	return n == 1, err
}

func (r *UnitRepository) CompareAndBook(ctx context.Context, tx transaction.Tx, id string, version int, owner, bookingID string, now time.Time) (bool, error) {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return false, err
	}
	query := `UPDATE units
		SET status = 'booked', booking_id = $4, lock_owner = NULL, lock_acquired_at = NULL, lock_expires_at = NULL,
			version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2 AND status = 'locked' AND lock_owner = $3 AND lock_expires_at > $5`
	n, err := r.execAffected(ctx, sqlTx, query, id, version, owner, bookingID, now)
	return n == 1, err
}

func (r *UnitRepository) ReleaseBooked(ctx context.Context, tx transaction.Tx, id, bookingID string, now time.Time) (bool, error) {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return false, err
	}
	query := `UPDATE units SET status = 'available', booking_id = NULL, version = version + 1, updated_at = $3
		WHERE id = $1 AND status = 'booked' AND booking_id = $2`
	n, err := r.execAffected(ctx, sqlTx, query, id, bookingID, now)
	return n == 1, err
}

func (r *UnitRepository) CountAvailable(ctx context.Context, resourceID string, now time.Time) (int, *time.Time, error) {
	query := `SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'available' OR (status = 'locked' AND lock_expires_at <= $2)) AS available,
			MIN(lock_expires_at) FILTER (WHERE status = 'locked' AND lock_expires_at > $2) AS next_expiry
		FROM units WHERE resource_id = $1`
	var result struct {
		Total      int        `db:"total"`
		Available  int        `db:"available"`
		NextExpiry *time.Time `db:"next_expiry"`
	}
	if err := r.db.GetContext(ctx, &result, query, resourceID, now); err != nil {
		return 0, nil, fmt.Errorf("空きユニット数の取得に失敗: %w", err)
	}
	if result.Total == 0 {
		return 0, nil, unit.ErrResourceNotFound
	}
	return result.Available, result.NextExpiry, nil
}

func (r *UnitRepository) execAffected(ctx context.Context, ex execer, query string, args ...interface{}) (int64, error) {
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ユニット更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return n, nil
}

func toUnits(rows []unitRow) []*unit.Unit {
	units := make([]*unit.Unit, len(rows))
	for i := range rows {
		units[i] = rows[i].toEntity()
	}
	return units
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
