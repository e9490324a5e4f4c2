package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/auth"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
)

// 開発用の利用者ヘッダー
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const ctxIdentityKey = "identity"

var (
	ErrIdentityRequired = errs.Mark(errs.New("ユーザーIDが必要です"), errs.ErrAuth)
	ErrAdminRequired    = errs.Mark(errs.New("管理者権限が必要です"), errs.ErrForbidden)
)

// Authenticator はリクエストの送信者を特定する
// 署名鍵が設定されていれば Bearer トークン、なければ X-User-ID ヘッダーを使う
type Authenticator struct {
	tokens *auth.TokenService
}

func NewAuthenticator(tokens *auth.TokenService) *Authenticator {
	return &Authenticator{tokens: tokens}
}

func (a *Authenticator) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := a.identify(c)
			if err != nil {
				return err
			}
			SetIdentity(c, id)
			return next(c)
		}
	}
}

// RequireAdmin は RequireAuth の後に使う
func (a *Authenticator) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return ErrIdentityRequired
			}
			if !id.IsAdmin() {
				return ErrAdminRequired
			}
			return next(c)
		}
	}
}

func (a *Authenticator) identify(c echo.Context) (auth.Identity, error) {
	if a.tokens.Enabled() {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return auth.Identity{}, ErrIdentityRequired
		}
		return a.tokens.ValidateToken(strings.TrimSpace(header[len("Bearer "):]))
	}

	userID := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
	if userID == "" {
		return auth.Identity{}, ErrIdentityRequired
	}
	role := strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderUserRole)))
	if role != auth.RoleAdmin {
		role = auth.RoleUser
	}
	return auth.Identity{UserID: userID, Role: role}, nil
}

// SetIdentity はリクエストの送信者を設定する
func SetIdentity(c echo.Context, id auth.Identity) {
	c.Set(ctxIdentityKey, id)
}

// CurrentIdentity は RequireAuth が設定した送信者を返す
func CurrentIdentity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(ctxIdentityKey).(auth.Identity)
	return id, ok
}
