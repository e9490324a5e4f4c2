package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error      string               `json:"error"`
	Code       string               `json:"code"`
	Status     int                  `json:"status"`
	UnitIDs    []string             `json:"unit_ids,omitempty"`
	Violations []unit.HoldViolation `json:"violations,omitempty"`
}

// unitIDLister は問題のあったユニットIDを列挙できるエラー
type unitIDLister interface {
	UnitIDs() []string
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ドメインエラーは分類に従ってステータスとコードを決める
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	resp := buildErrorResponse(err)

	// エラーログを出力（5xx エラーの場合）
	if resp.Status >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", resp.Status),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
			zap.Strings("stack", errs.ExtractStackLines(err, 5)),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(resp.Status)
	} else {
		err = c.JSON(resp.Status, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

func buildErrorResponse(err error) ErrorResponse {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
		return ErrorResponse{Error: message, Code: codeForStatus(he.Code), Status: he.Code}
	}

	class := errs.Classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: class.Code, Status: class.Status}
	if class.Status >= 500 {
		resp.Error = "内部サーバーエラー"
		return resp
	}

	var lister unitIDLister
	if errors.As(err, &lister) {
		resp.UnitIDs = lister.UnitIDs()
	}
	var holdErr *unit.HoldError
	if errors.As(err, &holdErr) {
		resp.Violations = holdErr.Violations
	}
	return resp
}

// codeForStatus は echo が返す HTTP エラーをエラーコードに対応付ける
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "HTTP_ERROR"
}
