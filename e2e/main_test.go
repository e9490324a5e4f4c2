package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/sanosuguru/go-reservation-engine/cmd/api/bootstrap"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/auth"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/worker"
)

const jwtSecret = "e2e-secret"

var baseTime = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

// TestServer はE2Eテスト用のサーバー。インメモリストアで serve と同じ依存を組み立てる
type TestServer struct {
	Echo    *echo.Echo
	Clock   *clock.MockClock
	Sweeper *worker.ExpiredHoldSweeper
	tokens  *auth.TokenService
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "test", LogLevel: "error"},
		Server:   config.ServerConfig{Port: "0", ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{Driver: config.StoreDriverMemory},
		Redis:    config.RedisConfig{Enabled: false},
		Auth:     config.AuthConfig{JWTSecret: jwtSecret, TokenDuration: time.Hour},
		Reservation: config.ReservationConfig{
			HoldTTL:               10 * time.Minute,
			SweepInterval:         time.Minute,
			PendingBookingTimeout: 15 * time.Minute,
			ConfirmGuardTTL:       30 * time.Second,
			AvailabilityCacheTTL:  30 * time.Second,
		},
	}
}

// newTestServer はテストごとに独立したサーバーを作成する
func newTestServer(t *testing.T) *TestServer {
	t.Helper()

	clk := clock.NewMockClock(baseTime)
	s := &TestServer{Clock: clk}

	app := fx.New(
		fx.Supply(testConfig()),
		bootstrap.CoreModule,
		bootstrap.StorageModule,
		bootstrap.RedisModule,
		bootstrap.KafkaModule,
		bootstrap.ServiceModule,
		bootstrap.HTTPModule,
		fx.Provide(
			func() clock.Clock { return clk },
			bootstrap.NewSweeper,
		),
		fx.NopLogger,
		fx.Populate(&s.Echo, &s.Sweeper, &s.tokens),
	)
	require.NoError(t, app.Err())
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { _ = app.Stop(context.Background()) })

	return s
}

// token は利用者のトークンを発行する
func (s *TestServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return token
}

// Request はHTTPリクエストを実行する。token が空なら Authorization を付けない
func (s *TestServer) Request(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, want int, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, rec.Code, rec.Body.String())
}
