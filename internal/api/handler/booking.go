package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-reservation-engine/internal/api/middleware"
	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
)

// BookingHandler は予約の確定と台帳のエンドポイントを扱う
type BookingHandler struct {
	coordinator CoordinatorInterface
	ledger      LedgerServiceInterface
}

func NewBookingHandler(coordinator CoordinatorInterface, ledger LedgerServiceInterface) *BookingHandler {
	return &BookingHandler{coordinator: coordinator, ledger: ledger}
}

// ConfirmRequest はドメインごとの確定要求。ID の配列はドメインの呼び方に合わせる
type ConfirmRequest struct {
	ResourceID string   `json:"resource_id" validate:"required" example:"route-7"`
	UnitIDs    []string `json:"unit_ids"`
	SeatIDs    []string `json:"seat_ids" example:"seat-A1,seat-A2"`
	SlotIDs    []string `json:"slot_ids"`
}

func (r ConfirmRequest) ids() []string {
	switch {
	case len(r.SeatIDs) > 0:
		return r.SeatIDs
	case len(r.SlotIDs) > 0:
		return r.SlotIDs
	}
	return r.UnitIDs
}

// RecordRequest は確定後に送られる台帳記録の要求
type RecordRequest struct {
	Type        string   `json:"type" validate:"required" example:"bus"`
	Status      string   `json:"status" example:"CONFIRMED"`
	TotalAmount int      `json:"totalAmount" validate:"gte=0" example:"90"`
	Items       []string `json:"items" validate:"required,min=1"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// Confirm godoc
// @Summary 保留中のユニットを予約に確定
// @Description 全ユニットが要求者の有効な保留であれば1件の予約として確定します
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body ConfirmRequest true "確定するユニット"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse "存在しないユニット"
// @Failure 412 {object} api.ErrorResponse "保留が無効"
// @Router /{domain}/bookings/confirm [put]
func (h *BookingHandler) Confirm(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ConfirmRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
		}
		if err := c.Validate(&req); err != nil {
			return err
		}
		id, _ := middleware.CurrentIdentity(c)
		b, err := h.coordinator.Confirm(c.Request().Context(), application.ConfirmInput{
			Domain:      d,
			ResourceID:  req.ResourceID,
			UnitIDs:     req.ids(),
			RequesterID: id.UserID,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// BookSlot godoc
// @Summary カレンダー枠を予約
// @Tags calendar
// @Produce json
// @Param id path string true "枠ID"
// @Success 201 {object} BookingResponse
// @Router /calendar/slots/{id}/book [post]
func (h *BookingHandler) BookSlot(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	b, err := h.coordinator.BookSlot(c.Request().Context(), c.Param("id"), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// CancelSlot godoc
// @Summary カレンダー枠の予約をキャンセル
// @Tags calendar
// @Produce json
// @Param id path string true "枠ID"
// @Success 200 {object} BookingResponse
// @Router /calendar/slots/{id} [delete]
func (h *BookingHandler) CancelSlot(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	b, err := h.ledger.CancelByUnit(c.Request().Context(), c.Param("id"), id.UserID, id.IsAdmin())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Record godoc
// @Summary 確定済み予約の記録を照会
// @Description 既に確定した予約と内容が一致すればその予約を返します。新しい予約は作りません
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body RecordRequest true "予約内容"
// @Success 200 {object} BookingResponse
// @Router /bookings [post]
func (h *BookingHandler) Record(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	d, err := booking.ParseDomain(req.Type)
	if err != nil {
		return err
	}
	if req.Status != "" {
		if st, err := booking.ParseStatus(strings.ToLower(req.Status)); err != nil || st != booking.StatusConfirmed {
			return booking.ErrInvalidStatus
		}
	}

	id, _ := middleware.CurrentIdentity(c)
	b, err := h.ledger.Record(c.Request().Context(), application.RecordInput{
		UserID:      id.UserID,
		Domain:      d,
		TotalAmount: req.TotalAmount,
		UnitIDs:     req.Items,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// MyBookings godoc
// @Summary 自分の予約一覧
// @Tags bookings
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Router /bookings/my-bookings [get]
func (h *BookingHandler) MyBookings(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	bookings, err := h.ledger.ListByUser(c.Request().Context(), id.UserID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// ListAll godoc
// @Summary 全予約一覧（管理者）
// @Tags bookings
// @Produce json
// @Param domain query string false "ドメイン"
// @Param status query string false "状態"
// @Param q query string false "ID・ユーザーID・ドメインの部分一致"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {object} BookingListResponse
// @Router /bookings [get]
func (h *BookingHandler) ListAll(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	filter := booking.Filter{
		Domain: booking.Domain(strings.ToLower(strings.TrimSpace(c.QueryParam("domain")))),
		Status: booking.Status(strings.ToLower(strings.TrimSpace(c.QueryParam("status")))),
		Query:  strings.TrimSpace(c.QueryParam("q")),
		Limit:  limit,
		Offset: offset,
	}.Normalize()

	bookings, total, err := h.ledger.ListAll(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BookingListResponse{
		Bookings: toBookingResponses(bookings),
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// Stats godoc
// @Summary 予約の集計（管理者）
// @Tags bookings
// @Produce json
// @Success 200 {object} booking.Stats
// @Router /bookings/stats [get]
func (h *BookingHandler) Stats(c echo.Context) error {
	stats, err := h.ledger.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	b, err := h.ledger.Get(c.Request().Context(), c.Param("id"), id.UserID, id.IsAdmin())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description ユニットを戻せるドメイン（カレンダー）の確定済み予約のみ
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse "キャンセル非対応のドメイン"
// @Failure 409 {object} api.ErrorResponse
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	var req CancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
		}
	}
	id, _ := middleware.CurrentIdentity(c)
	b, err := h.ledger.Cancel(c.Request().Context(), application.CancelInput{
		BookingID:   c.Param("id"),
		RequesterID: id.UserID,
		IsAdmin:     id.IsAdmin(),
		Reason:      req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
