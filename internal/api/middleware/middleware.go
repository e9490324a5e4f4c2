package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

// 確定リクエストのユニットIDは最大でも数十件
const bodyLimit = "64K"

// SetupMiddleware は共通ミドルウェアを設定する
func SetupMiddleware(e *echo.Echo, allowOrigins []string) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: generateRequestID,
	}))
	e.Use(RequestLogger())

	// パニックは 500 として CustomHTTPErrorHandler に渡す
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:       4 << 10,
		DisableStackAll: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("パニックから復帰しました",
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("path", c.Path()),
				zap.Error(err),
				zap.ByteString("stack", stack),
			)
			return err
		},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  allowOrigins,
		AllowMethods:  []string{echo.GET, echo.HEAD, echo.PUT, echo.POST, echo.DELETE},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, HeaderUserID, HeaderUserRole},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
}
