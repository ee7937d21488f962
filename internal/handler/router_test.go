package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/truly/internal/auth"
	"github.com/prn-tf/truly/internal/cache/memory"
	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/lock"
	"github.com/prn-tf/truly/internal/metrics"
	"github.com/prn-tf/truly/internal/repository/sqlite"
	"github.com/prn-tf/truly/internal/service"
)

// codeSender keeps the last verification code per email.
type codeSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *codeSender) SendVerification(ctx context.Context, email, username, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = code
	return nil
}

func (s *codeSender) code(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type testServer struct {
	handler http.Handler
	sender  *codeSender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(sqlite.MemoryPath), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	cache := memory.NewCache()
	t.Cleanup(func() { _ = cache.Close() })
	locker := lock.NewMemoryLocker()
	t.Cleanup(func() { _ = locker.Close() })

	sender := &codeSender{codes: make(map[string]string)}
	m := metrics.New(prometheus.NewRegistry())
	users := sqlite.NewUserRepository(db)

	authSvc := service.NewAuthService(users, m, logger)
	userSvc := service.NewUserService(users, locker, sender, service.UserServiceConfig{
		VerifyCodeTTL: time.Hour,
		BcryptCost:    bcrypt.MinCost,
		SignUpLockTTL: time.Second,
	}, m, logger)
	sessionSvc := service.NewSessionService(authSvc, auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour), cache, logger)
	messageSvc := service.NewMessageService(users, m, logger)

	router := NewRouter(RouterConfig{
		AuthHandler: NewAuthHandler(AuthHandlerConfig{
			UserService:    userSvc,
			SessionService: sessionSvc,
			Logger:         logger,
		}),
		MessageHandler:   NewMessageHandler(messageSvc, logger),
		HealthHandler:    NewHealthHandler(db, cache, logger),
		SessionValidator: sessionSvc,
		Metrics:          m,
		MaxBodySize:      1024,
		Logger:           logger,
	})

	return &testServer{handler: router.Handler(), sender: sender}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, apiResponse, *http.Response) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec.Code, resp, rec.Result()
}

// registerVerified signs up, verifies and signs in a user, returning the token.
func (s *testServer) registerVerified(t *testing.T, username, email string) string {
	t.Helper()

	code, resp, _ := s.do(t, http.MethodPost, "/api/sign-up", map[string]string{
		"username": username, "email": email, "password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, resp, _ = s.do(t, http.MethodPost, "/api/verify-code", map[string]string{
		"username": username, "code": s.sender.code(email),
	}, "")
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp, _ = s.do(t, http.MethodPost, "/api/sign-in", map[string]string{
		"identifier": username, "password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, code, resp.Message)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestAPI_SignUpVerifySignIn(t *testing.T) {
	s := newTestServer(t)

	code, resp, _ := s.do(t, http.MethodPost, "/api/sign-up", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)

	code, resp, _ = s.do(t, http.MethodPost, "/api/sign-in", map[string]string{
		"identifier": "alice", "password": "secret1",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "email not verified, please verify your email", resp.Message)

	code, resp, _ = s.do(t, http.MethodPost, "/api/verify-code", map[string]string{
		"username": "alice", "code": "000000",
	}, "")
	if s.sender.code("alice@x.com") != "000000" {
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "incorrect verification code", resp.Message)
	}

	code, _, _ = s.do(t, http.MethodPost, "/api/verify-code", map[string]string{
		"username": "alice", "code": s.sender.code("alice@x.com"),
	}, "")
	require.Equal(t, http.StatusOK, code)

	code, resp, httpResp := s.do(t, http.MethodPost, "/api/sign-in", map[string]string{
		"identifier": "ALICE@x.com", "password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, code)

	var data struct {
		Token string            `json:"token"`
		User  *domain.Principal `json:"user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "alice", data.User.Username)
	assert.True(t, data.User.IsVerified)

	var cookie *http.Cookie
	for _, c := range httpResp.Cookies() {
		if c.Name == auth.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, data.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestAPI_StatusMapping(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "alice", "alice@x.com")

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantMsg    string
	}{
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/sign-up",
			body:       map[string]string{"username": "alice2", "email": "alice@x.com", "password": "secret1"},
			wantStatus: http.StatusConflict, wantMsg: "email is already registered",
		},
		{
			name: "duplicate username", method: http.MethodPost, path: "/api/sign-up",
			body:       map[string]string{"username": "alice", "email": "other@x.com", "password": "secret1"},
			wantStatus: http.StatusConflict, wantMsg: "username is already taken",
		},
		{
			name: "invalid username", method: http.MethodPost, path: "/api/sign-up",
			body:       map[string]string{"username": "a", "email": "a@x.com", "password": "secret1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "password too long", method: http.MethodPost, path: "/api/sign-up",
			body:       map[string]string{"username": "bob", "email": "bob@x.com", "password": strings.Repeat("p", 80)},
			wantStatus: http.StatusBadRequest, wantMsg: "password must be at most 72 bytes",
		},
		{
			name: "malformed json", method: http.MethodPost, path: "/api/sign-up",
			body: "{", wantStatus: http.StatusBadRequest, wantMsg: "invalid request body",
		},
		{
			name: "body too large", method: http.MethodPost, path: "/api/send-message",
			body:       map[string]string{"username": "alice", "content": strings.Repeat("a", 2048)},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/sign-in",
			body:       map[string]string{"identifier": "alice", "password": "wrong!!"},
			wantStatus: http.StatusUnauthorized, wantMsg: "incorrect password",
		},
		{
			name: "unknown identifier", method: http.MethodPost, path: "/api/sign-in",
			body:       map[string]string{"identifier": "ghost", "password": "secret1"},
			wantStatus: http.StatusUnauthorized, wantMsg: "no user found with the given email or username",
		},
		{
			name: "send to unknown user", method: http.MethodPost, path: "/api/send-message",
			body:       map[string]string{"username": "ghost", "content": "hi"},
			wantStatus: http.StatusNotFound, wantMsg: "user not found",
		},
		{
			name: "send too short", method: http.MethodPost, path: "/api/send-message",
			body:       map[string]string{"username": "alice", "content": "h"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "messages without session", method: http.MethodGet, path: "/api/get-messages",
			wantStatus: http.StatusUnauthorized, wantMsg: "unauthorized",
		},
		{
			name: "accept flag without session", method: http.MethodPost, path: "/api/accept-messages",
			body:       map[string]bool{"acceptMessages": false},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "username taken", method: http.MethodGet, path: "/api/check-username-unique?username=alice",
			wantStatus: http.StatusConflict,
		},
		{
			name: "username shape", method: http.MethodGet, path: "/api/check-username-unique?username=a%20b",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown route", method: http.MethodGet, path: "/api/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp, _ := s.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.wantStatus, code, resp.Message)
			assert.False(t, resp.Success)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
			}
		})
	}
}

func TestAPI_MessageFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.registerVerified(t, "alice", "alice@x.com")

	code, _, _ := s.do(t, http.MethodPost, "/api/send-message", map[string]string{
		"username": "alice", "content": "hi",
	}, "")
	require.Equal(t, http.StatusOK, code)

	code, resp, _ := s.do(t, http.MethodGet, "/api/get-messages", nil, token)
	require.Equal(t, http.StatusOK, code)
	var inbox struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &inbox))
	require.Len(t, inbox.Messages, 1)
	assert.Equal(t, "hi", inbox.Messages[0].Content)

	code, resp, _ = s.do(t, http.MethodPost, "/api/accept-messages", map[string]bool{"acceptMessages": false}, token)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp, _ = s.do(t, http.MethodGet, "/api/accept-messages", nil, token)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"is_accepting_messages":false}`, string(resp.Data))

	code, resp, _ = s.do(t, http.MethodPost, "/api/send-message", map[string]string{
		"username": "alice", "content": "hello again",
	}, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "user is not accepting messages", resp.Message)

	code, resp, _ = s.do(t, http.MethodGet, "/api/get-messages", nil, token)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &inbox))
	assert.Len(t, inbox.Messages, 1, "rejected send must not change the inbox")

	code, _, _ = s.do(t, http.MethodPost, "/api/accept-messages", map[string]string{"acceptMessages": "yes"}, token)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = s.do(t, http.MethodPost, "/api/accept-messages", map[string]string{}, token)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_SignOutRevokesSession(t *testing.T) {
	s := newTestServer(t)
	token := s.registerVerified(t, "alice", "alice@x.com")

	code, _, _ := s.do(t, http.MethodPost, "/api/sign-out", nil, token)
	require.Equal(t, http.StatusOK, code)

	code, _, _ = s.do(t, http.MethodGet, "/api/get-messages", nil, token)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = s.do(t, http.MethodPost, "/api/sign-out", nil, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_CheckUsernameAvailable(t *testing.T) {
	s := newTestServer(t)

	code, resp, _ := s.do(t, http.MethodGet, "/api/check-username-unique?username=bob_1", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Username is available", resp.Message)
}

func TestAPI_Health(t *testing.T) {
	s := newTestServer(t)

	code, resp, _ := s.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"database":"ok","cache":"ok"}`, string(resp.Data))
}

type failingChecker struct{}

func (failingChecker) Health(ctx context.Context) error { return errors.New("down") }

func TestHealthHandler_Unavailable(t *testing.T) {
	h := NewHealthHandler(failingChecker{}, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unavailable"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidEmail, http.StatusBadRequest},
		{domain.ErrUsernameTaken, http.StatusConflict},
		{domain.ErrUserNotFound, http.StatusNotFound},
		{domain.NewAuthError(domain.ReasonBadCredentials), http.StatusUnauthorized},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrNotAcceptingMessages, http.StatusForbidden},
		{domain.ErrStore, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(domain.KindOf(tt.err)); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
