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

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
)

const bookingColumns = `id, user_id, domain, resource_id, unit_ids, status, total_amount, failure_reason, created_at, updated_at, confirmed_at, cancelled_at`

type bookingRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	Domain        string         `db:"domain"`
	ResourceID    string         `db:"resource_id"`
	UnitIDs       pq.StringArray `db:"unit_ids"`
	Status        string         `db:"status"`
	TotalAmount   int            `db:"total_amount"`
	FailureReason string         `db:"failure_reason"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	ConfirmedAt   *time.Time     `db:"confirmed_at"`
	CancelledAt   *time.Time     `db:"cancelled_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID: r.ID, UserID: r.UserID, Domain: booking.Domain(r.Domain), ResourceID: r.ResourceID,
		UnitIDs: []string(r.UnitIDs), Status: booking.Status(r.Status),
		TotalAmount: r.TotalAmount, FailureReason: r.FailureReason,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		ConfirmedAt: r.ConfirmedAt, CancelledAt: r.CancelledAt,
	}
}

type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository { return &BookingRepository{db: db} }

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := sqlTx.ExecContext(ctx, query,
		b.ID, b.UserID, string(b.Domain), b.ResourceID, pq.Array(b.UnitIDs), string(b.Status),
		b.TotalAmount, b.FailureReason, b.CreatedAt, b.UpdatedAt, b.ConfirmedAt, b.CancelledAt,
	); err != nil {
		return fmt.Errorf("予約作成に失敗: %w", err)
	}

	placeholders := make([]string, 0, len(b.UnitIDs))
	args := make([]interface{}, 0, len(b.UnitIDs)+2)
	args = append(args, b.ID, b.Status.OccupiesUnits())
	for i, unitID := range b.UnitIDs {
		placeholders = append(placeholders, fmt.Sprintf("($1, $%d, $2)", i+3))
		args = append(args, unitID)
	}
	unitsQuery := `INSERT INTO booking_units (booking_id, unit_id, active) VALUES ` + strings.Join(placeholders, ", ")
	if _, err := sqlTx.ExecContext(ctx, unitsQuery, args...); err != nil {
		if isUniqueViolation(err) {
			return booking.ErrUnitsInActiveBooking
		}
		return fmt.Errorf("予約ユニットの登録に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toBookings(rows), nil
}

func (r *BookingRepository) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error) {
	filter = filter.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	if filter.Domain != "" {
		args = append(args, string(filter.Domain))
		conds = append(conds, fmt.Sprintf("domain = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(id ILIKE $%d OR user_id ILIKE $%d OR domain ILIKE $%d)", n, n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM bookings`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("予約件数の取得に失敗: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)+1, len(args)+2)
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, query, append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toBookings(rows), total, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `UPDATE bookings SET status = $2, failure_reason = $3, updated_at = $4, confirmed_at = $5, cancelled_at = $6
		WHERE id = $1`
	res, err := sqlTx.ExecContext(ctx, query, b.ID, string(b.Status), b.FailureReason, b.UpdatedAt, b.ConfirmedAt, b.CancelledAt)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrBookingNotFound
	}

	// 確定時にだけユニットを占有する。重複は uq_booking_units_active_unit で検出される
	if _, err := sqlTx.ExecContext(ctx, `UPDATE booking_units SET active = $2 WHERE booking_id = $1`,
		b.ID, b.Status.OccupiesUnits()); err != nil {
		if isUniqueViolation(err) {
			return booking.ErrUnitsInActiveBooking
		}
		return fmt.Errorf("予約ユニットの更新に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2`
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, query, createdBefore, limit); err != nil {
		return nil, fmt.Errorf("古い処理中予約の取得に失敗: %w", err)
	}
	return toBookings(rows), nil
}

func (r *BookingRepository) Stats(ctx context.Context) (*booking.Stats, error) {
	query := `SELECT domain, status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount
		FROM bookings GROUP BY domain, status`
	var rows []struct {
		Domain string `db:"domain"`
		Status string `db:"status"`
		Count  int    `db:"count"`
		Amount int    `db:"amount"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("予約集計に失敗: %w", err)
	}

	stats := booking.NewStats()
	for _, row := range rows {
		status := booking.Status(row.Status)
		stats.TotalBookings += row.Count
		stats.ByStatus[status] += row.Count
		stats.ByDomain[booking.Domain(row.Domain)] += row.Count
		if status == booking.StatusConfirmed {
			stats.ActiveBookings += row.Count
			stats.TotalRevenue += row.Amount
		}
	}
	return stats, nil
}

func toBookings(rows []bookingRow) []*booking.Booking {
	bookings := make([]*booking.Booking, len(rows))
	for i := range rows {
		bookings[i] = rows[i].toEntity()
	}
	return bookings
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
