package errs

import (
	"fmt"
	"net/http"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// エラー分類。ドメイン層のセンチネルエラーは Mark でいずれか一つに分類される
var (
	ErrValidation        = cr.New("validation error")
	ErrConflict          = cr.New("conflict")
	ErrOwnershipOrExpiry = cr.New("hold not owned or expired")
	ErrNotFound          = cr.New("not found")
	ErrAuth              = cr.New("unauthorized")
	ErrForbidden         = cr.New("forbidden")
	ErrPaymentFailed     = cr.New("payment failed")
)

// Class は分類ごとのHTTPステータスとエラーコード
type Class struct {
	Mark   error
	Status int
	Code   string
}

// 判定順。OwnershipOrExpiry は Conflict より先に評価する
var classes = []Class{
	{ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{ErrAuth, http.StatusUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrOwnershipOrExpiry, http.StatusPreconditionFailed, "HOLD_NOT_OWNED_OR_EXPIRED"},
	{ErrConflict, http.StatusConflict, "CONFLICT"},
	{ErrPaymentFailed, http.StatusPaymentRequired, "PAYMENT_FAILED"},
}

var internalClass = Class{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}

// New はスタック付きのエラーを作成する
func New(msg string) error {
	return cr.New(msg)
}

// Newf はフォーマット付きでエラーを作成する
func Newf(format string, args ...interface{}) error {
	return cr.Newf(format, args...)
}

// Wrap はメッセージを付与してエラーをラップする。nil はそのまま返す
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

// Mark はエラーに分類マークを付与する
func Mark(err error, mark error) error {
	if err == nil {
		return mark
	}
	return cr.Mark(err, mark)
}

// Is はマークを含めてエラーの同一性を判定する
func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

// Classify はエラーの分類を返す。どれにも該当しなければ内部エラー扱い
func Classify(err error) Class {
	if err == nil {
		return internalClass
	}
	for _, c := range classes {
		if cr.Is(err, c.Mark) {
			return c
		}
	}
	return internalClass
}

// HTTPStatus はエラーに対応するHTTPステータスを返す
func HTTPStatus(err error) int {
	return Classify(err).Status
}

// Code はエラーに対応するエラーコードを返す
func Code(err error) string {
	return Classify(err).Code
}

// ExtractStackLines はログ出力用にスタックトレースの先頭行を返す
func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	lines := strings.Split(fmt.Sprintf("%+v", err), "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
