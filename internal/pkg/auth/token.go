package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
)

// 利用者の役割
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrInvalidToken = errs.Mark(errs.New("トークンが無効です"), errs.ErrAuth)
	ErrExpiredToken = errs.Mark(errs.New("トークンの有効期限が切れています"), errs.ErrAuth)
	ErrSubjectEmpty = errs.Mark(errs.New("トークンに利用者IDがありません"), errs.ErrAuth)
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity はリクエストの送信者
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// TokenService は HS256 の JWT を発行・検証する
type TokenService struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

func NewTokenService(secretKey string, tokenDuration time.Duration) *TokenService {
	return &TokenService{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

// Enabled は署名鍵が設定されているかを返す
func (s *TokenService) Enabled() bool {
	return s != nil && len(s.secretKey) > 0
}

func (s *TokenService) GenerateToken(userID, role string) (string, error) {
	if userID == "" {
		return "", ErrSubjectEmpty
	}
	if role == "" {
		role = RoleUser
	}
	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

func (s *TokenService) ValidateToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrSubjectEmpty
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}
