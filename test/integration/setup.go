package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/sokopay/api/internal/adapters/events"
	"github.com/sokopay/api/internal/adapters/gateway/daraja"
	handler "github.com/sokopay/api/internal/adapters/handler/http"
	repo "github.com/sokopay/api/internal/adapters/repository/postgres"
	"github.com/sokopay/api/internal/config"
	"github.com/sokopay/api/internal/core/services"
)

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

func applyMigrations(db *sql.DB) error {
	dirPath := "../../internal/adapters/repository/postgres/migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// fakeDaraja stands in for the external gateway: it accepts the token
// exchange and the push request and records what it was sent.
type fakeDaraja struct {
	mu           sync.Mutex
	pushCount    int
	lastPushBody map[string]any
	queryBody    string
}

func (f *fakeDaraja) handler() stdhttp.Handler {
	mux := stdhttp.NewServeMux()

	mux.HandleFunc("/oauth/v1/generate", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-gateway-token","expires_in":"3599"}`))
	})

	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		body := map[string]any{}
		json.NewDecoder(r.Body).Decode(&body)
		f.lastPushBody = body
		f.pushCount++

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"MerchantRequestID": "29115-34620561-%d",
			"CheckoutRequestID": "ws_CO_TEST_%d",
			"ResponseCode": "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage": "Success. Request accepted for processing"
		}`, f.pushCount, f.pushCount)
	})

	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(f.queryBody))
	})

	return mux
}

func (f *fakeDaraja) lastPush() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPushBody
}

func (f *fakeDaraja) setQueryResponse(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryBody = body
}

type TestApp struct {
	DB            *sql.DB
	Server        *httptest.Server
	GatewayServer *httptest.Server
	Gateway       *fakeDaraja
	Client        *stdhttp.Client
	DBContainer   testcontainers.Container
}

func newTestApp(t *testing.T) *TestApp {
	t.Helper()
	ctx := context.Background()

	dbContainer, dbURL, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, applyMigrations(db))

	gw := &fakeDaraja{}
	gwServer := httptest.NewServer(gw.handler())

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Issuer = "sokopay"
	cfg.JWT.Audience = "sokopay-api"
	cfg.JWT.AccessTokenExpiry = 15 * time.Minute
	cfg.JWT.RefreshTokenExpiry = 7 * 24 * time.Hour
	cfg.Mpesa.BaseURL = gwServer.URL
	cfg.Mpesa.ConsumerKey = "key"
	cfg.Mpesa.ConsumerSecret = "secret"
	cfg.Mpesa.ShortCode = "174379"
	cfg.Mpesa.Passkey = "passkey"
	cfg.Mpesa.CallbackURL = "https://api.example.com/api/payments/callback"
	cfg.Mpesa.Timeout = 5 * time.Second

	logger := zap.NewNop()
	userRepo := repo.NewUserRepository(db)
	paymentRepo := repo.NewPaymentRepository(db)
	gateway := daraja.NewClient(cfg, logger)
	publisher := events.NewNoopPublisher()

	tokenSvc := services.NewTokenService(cfg)
	authSvc := services.NewAuthService(userRepo, tokenSvc, cfg, logger)
	paymentSvc := services.NewPaymentService(paymentRepo, userRepo, gateway, publisher, logger)

	authHandler := handler.NewAuthHandler(authSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, logger)
	router := handler.NewHandler(authHandler, paymentHandler, tokenSvc)

	server := httptest.NewServer(router)

	return &TestApp{
		DB:            db,
		Server:        server,
		GatewayServer: gwServer,
		Gateway:       gw,
		Client:        server.Client(),
		DBContainer:   dbContainer,
	}
}

func (app *TestApp) Teardown(t *testing.T) {
	t.Helper()
	app.Server.Close()
	app.GatewayServer.Close()
	app.DB.Close()
	require.NoError(t, app.DBContainer.Terminate(context.Background()))
}

func (app *TestApp) doJSON(t *testing.T, method, path, token string, body any) (*stdhttp.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := stdhttp.NewRequest(method, app.Server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (app *TestApp) registerUser(t *testing.T, email, phone string) (accessToken, refreshToken string) {
	t.Helper()

	resp, body := app.doJSON(t, stdhttp.MethodPost, "/api/auth/register", "", map[string]any{
		"name":             "Wanjiru Kamau",
		"email":            email,
		"password":         "Str0ngPass",
		"confirm_password": "Str0ngPass",
		"phone_number":     phone,
		"role":             "individual",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, "register failed: %v", body)

	return body["access_token"].(string), body["refresh_token"].(string)
}
