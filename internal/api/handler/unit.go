package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-reservation-engine/internal/api/middleware"
	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
)

// UnitHandler はドメインごとの座席・枠のエンドポイントを扱う
type UnitHandler struct {
	units UnitServiceInterface
	locks LockServiceInterface
}

func NewUnitHandler(units UnitServiceInterface, locks LockServiceInterface) *UnitHandler {
	return &UnitHandler{units: units, locks: locks}
}

type ProvisionRequest struct {
	Prefix string   `json:"prefix" example:"A"`
	Count  int      `json:"count" validate:"gte=0,lte=1000" example:"40"`
	Labels []string `json:"labels" validate:"omitempty,dive,required" example:"A1,A2"`
}

// List godoc
// @Summary リソースのユニット一覧
// @Description 期限切れの保留を解放した状態で返します
// @Tags units
// @Produce json
// @Param resource_id path string true "リソースID"
// @Success 200 {array} UnitResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /{domain}/resources/{resource_id}/{seats|slots} [get]
func (h *UnitHandler) List(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		units, err := h.units.ListUnits(c.Request().Context(), c.Param("resource_id"))
		if err != nil {
			return err
		}
		if units[0].Domain != string(d) {
			return unit.ErrResourceNotFound
		}
		return c.JSON(http.StatusOK, toUnitResponses(units))
	}
}

// CountAvailable godoc
// @Summary 空きユニット数
// @Tags units
// @Produce json
// @Param resource_id path string true "リソースID"
// @Success 200 {object} AvailableCountResponse
// @Router /{domain}/resources/{resource_id}/{seats|slots}/available-count [get]
func (h *UnitHandler) CountAvailable(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		resourceID := c.Param("resource_id")
		count, err := h.units.CountAvailable(c.Request().Context(), resourceID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, AvailableCountResponse{ResourceID: resourceID, Available: count})
	}
}

// Provision godoc
// @Summary ユニットを作成（管理者）
// @Tags units
// @Accept json
// @Produce json
// @Param resource_id path string true "リソースID"
// @Param request body ProvisionRequest true "作成内容"
// @Success 201 {array} UnitResponse
// @Router /{domain}/resources/{resource_id}/{seats|slots} [post]
func (h *UnitHandler) Provision(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ProvisionRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
		}
		if err := c.Validate(&req); err != nil {
			return err
		}
		units, err := h.units.ProvisionUnits(c.Request().Context(), application.ProvisionInput{
			Domain:     d,
			ResourceID: c.Param("resource_id"),
			Prefix:     req.Prefix,
			Count:      req.Count,
			Labels:     req.Labels,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, toUnitResponses(units))
	}
}

// Get godoc
// @Summary ユニットを取得
// @Tags units
// @Produce json
// @Param id path string true "ユニットID"
// @Success 200 {object} UnitResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /{domain}/{seats|slots}/{id} [get]
func (h *UnitHandler) Get(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := h.unitInDomain(c, d)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, toUnitResponse(u))
	}
}

// Lock godoc
// @Summary ユニットを保留
// @Description 10分間の保留を取得します。保留中・予約済みなら 409
// @Tags units
// @Produce json
// @Param id path string true "ユニットID"
// @Success 201 {object} HoldResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /{domain}/{seats|slots}/{id}/lock [post]
func (h *UnitHandler) Lock(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := middleware.CurrentIdentity(c)
		hold, err := h.locks.LockUnit(c.Request().Context(), application.LockInput{
			Domain:  d,
			UnitID:  c.Param("id"),
			OwnerID: id.UserID,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, toHoldResponse(hold))
	}
}

// Release godoc
// @Summary 保留を解放
// @Tags units
// @Param id path string true "ユニットID"
// @Success 204
// @Failure 412 {object} api.ErrorResponse "保留の所有者ではない"
// @Router /{domain}/{seats|slots}/{id}/lock [delete]
func (h *UnitHandler) Release(d booking.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := h.unitInDomain(c, d)
		if err != nil {
			return err
		}
		id, _ := middleware.CurrentIdentity(c)
		if err := h.locks.ReleaseUnit(c.Request().Context(), u.ID, id.UserID); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func (h *UnitHandler) unitInDomain(c echo.Context, d booking.Domain) (*unit.Unit, error) {
	u, err := h.units.GetUnit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if u.Domain != string(d) {
		return nil, unit.ErrUnitNotFound
	}
	return u, nil
}
