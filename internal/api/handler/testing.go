package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-reservation-engine/internal/api"
	"github.com/sanosuguru/go-reservation-engine/internal/api/middleware"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/auth"
)

// NewTestEcho は本番と同じバリデーターとエラーハンドラーを持つEchoを作成する
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	return e
}

// NewTestContext は認証済みのリクエストコンテキストを作成する
// userID が空なら未認証、"admin" なら管理者として扱う
func NewTestContext(e *echo.Echo, method, target, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		role := auth.RoleUser
		if userID == "admin" {
			role = auth.RoleAdmin
		}
		middleware.SetIdentity(c, auth.Identity{UserID: userID, Role: role})
	}
	return c, rec
}
