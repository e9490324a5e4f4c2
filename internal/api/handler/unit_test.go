package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-reservation-engine/internal/api/middleware"
	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/auth"
)

// MockUnitService はUnitServiceInterfaceのモック
type MockUnitService struct {
	mock.Mock
}

func (m *MockUnitService) ListUnits(ctx context.Context, resourceID string) ([]*unit.Unit, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*unit.Unit), args.Error(1)
}

func (m *MockUnitService) GetUnit(ctx context.Context, id string) (*unit.Unit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*unit.Unit), args.Error(1)
}

func (m *MockUnitService) CountAvailable(ctx context.Context, resourceID string) (int, error) {
	args := m.Called(ctx, resourceID)
	return args.Int(0), args.Error(1)
}

func (m *MockUnitService) ProvisionUnits(ctx context.Context, input application.ProvisionInput) ([]*unit.Unit, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*unit.Unit), args.Error(1)
}

// MockLockService はLockServiceInterfaceのモック
type MockLockService struct {
	mock.Mock
}

func (m *MockLockService) LockUnit(ctx context.Context, input application.LockInput) (*unit.Hold, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*unit.Hold), args.Error(1)
}

func (m *MockLockService) ReleaseUnit(ctx context.Context, unitID, ownerID string) error {
	args := m.Called(ctx, unitID, ownerID)
	return args.Error(0)
}

func TestUnitHandler_List(t *testing.T) {
	e := NewTestEcho()
	now := time.Now()

	t.Run("リソースのユニット一覧を返す", func(t *testing.T) {
		units := new(MockUnitService)
		units.On("ListUnits", mock.Anything, "route-7").Return([]*unit.Unit{
			unit.NewUnit("bus", "route-7", "A1", now),
			unit.NewUnit("bus", "route-7", "A2", now),
		}, nil)
		h := NewUnitHandler(units, new(MockLockService))

		c, rec := NewTestContext(e, http.MethodGet, "/bus/resources/route-7/seats", "", "alice")
		c.SetParamNames("resource_id")
		c.SetParamValues("route-7")

		require.NoError(t, h.List(booking.DomainBus)(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []UnitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 2)
		assert.Equal(t, "A1", resp[0].Label)
		assert.Equal(t, "available", resp[0].Status)
	})

	t.Run("別ドメインのリソースは見つからない", func(t *testing.T) {
		units := new(MockUnitService)
		units.On("ListUnits", mock.Anything, "route-7").Return([]*unit.Unit{unit.NewUnit("bus", "route-7", "A1", now)}, nil)
		h := NewUnitHandler(units, new(MockLockService))

		c, _ := NewTestContext(e, http.MethodGet, "/flight/resources/route-7/seats", "", "alice")
		c.SetParamNames("resource_id")
		c.SetParamValues("route-7")

		err := h.List(booking.DomainFlight)(c)
		assert.ErrorIs(t, err, unit.ErrResourceNotFound)
	})
}

func TestUnitHandler_Lock(t *testing.T) {
	e := NewTestEcho()

	t.Run("保留を取得できる", func(t *testing.T) {
		now := time.Now()
		locks := new(MockLockService)
		locks.On("LockUnit", mock.Anything, application.LockInput{
			Domain:  booking.DomainTheater,
			UnitID:  "unit-1",
			OwnerID: "alice",
		}).Return(&unit.Hold{
			UnitID:     "unit-1",
			ResourceID: "show-1",
			OwnerID:    "alice",
			AcquiredAt: now,
			ExpiresAt:  now.Add(10 * time.Minute),
			TTL:        10 * time.Minute,
		}, nil)
		h := NewUnitHandler(new(MockUnitService), locks)

		c, rec := NewTestContext(e, http.MethodPost, "/theater/seats/unit-1/lock", "", "alice")
		c.SetParamNames("id")
		c.SetParamValues("unit-1")

		require.NoError(t, h.Lock(booking.DomainTheater)(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp HoldResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 600, resp.TTLSeconds)
		locks.AssertExpectations(t)
	})

	t.Run("保留中なら競合", func(t *testing.T) {
		locks := new(MockLockService)
		locks.On("LockUnit", mock.Anything, mock.AnythingOfType("application.LockInput")).Return(nil, unit.ErrUnitNotAvailable)
		h := NewUnitHandler(new(MockUnitService), locks)

		req := httptest.NewRequest(http.MethodPost, "/theater/seats/unit-1/lock", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		middleware.SetIdentity(c, auth.Identity{UserID: "bob", Role: auth.RoleUser})
		c.SetParamNames("id")
		c.SetParamValues("unit-1")

		err := h.Lock(booking.DomainTheater)(c)
		require.Error(t, err)
		e.HTTPErrorHandler(err, c)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"CONFLICT"`)
	})
}

func TestUnitHandler_Release(t *testing.T) {
	e := NewTestEcho()
	u := unit.NewUnit("calendar", "room-1", "09:00", time.Now())

	units := new(MockUnitService)
	units.On("GetUnit", mock.Anything, u.ID).Return(u, nil)
	locks := new(MockLockService)
	locks.On("ReleaseUnit", mock.Anything, u.ID, "alice").Return(nil)
	h := NewUnitHandler(units, locks)

	c, rec := NewTestContext(e, http.MethodDelete, "/calendar/slots/"+u.ID+"/lock", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues(u.ID)

	require.NoError(t, h.Release(booking.DomainCalendar)(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	locks.AssertExpectations(t)

	t.Run("別ドメインからは解放できない", func(t *testing.T) {
		c, _ := NewTestContext(e, http.MethodDelete, "/bus/seats/"+u.ID+"/lock", "", "alice")
		c.SetParamNames("id")
		c.SetParamValues(u.ID)
		assert.ErrorIs(t, h.Release(booking.DomainBus)(c), unit.ErrUnitNotFound)
	})
}

func TestUnitHandler_Provision(t *testing.T) {
	e := NewTestEcho()
	now := time.Now()

	units := new(MockUnitService)
	units.On("ProvisionUnits", mock.Anything, application.ProvisionInput{
		Domain:     booking.DomainTrain,
		ResourceID: "TR-1",
		Prefix:     "C",
		Count:      2,
	}).Return([]*unit.Unit{
		unit.NewUnit("train", "TR-1", "C1", now),
		unit.NewUnit("train", "TR-1", "C2", now),
	}, nil)
	h := NewUnitHandler(units, new(MockLockService))

	c, rec := NewTestContext(e, http.MethodPost, "/train/resources/TR-1/seats", `{"prefix":"C","count":2}`, "admin")
	c.SetParamNames("resource_id")
	c.SetParamValues("TR-1")

	require.NoError(t, h.Provision(booking.DomainTrain)(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	units.AssertExpectations(t)
}

func TestUnitHandler_CountAvailable(t *testing.T) {
	e := NewTestEcho()
	units := new(MockUnitService)
	units.On("CountAvailable", mock.Anything, "show-1").Return(42, nil)
	h := NewUnitHandler(units, new(MockLockService))

	c, rec := NewTestContext(e, http.MethodGet, "/theater/resources/show-1/seats/available-count", "", "alice")
	c.SetParamNames("resource_id")
	c.SetParamValues("show-1")

	require.NoError(t, h.CountAvailable(booking.DomainTheater)(c))
	assert.JSONEq(t, `{"resource_id":"show-1","available":42}`, rec.Body.String())
}
