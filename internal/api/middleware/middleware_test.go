package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/config"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "middleware-test-secret-2026"

func signAccessToken(t *testing.T, userID, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.Claims{
		UserID:    userID,
		Role:      role,
		TokenType: "access",
		RegisteredClaims: jwtv5.RegisteredClaims{
			IssuedAt:  jwtv5.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("签发 token 失败: %v", err)
	}
	return s
}

// run 依次执行中间件，最终处理函数返回 200 与上下文中的用户信息
func run(req *http.Request, mws ...gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := gin.New()
	handlers := append(mws, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("role")})
	})
	r.Handle(req.Method, "/children/:childId", handlers...)
	r.ServeHTTP(w, req)
	return w
}

func withIdentity(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", role)
	}
}

// ── JWTAuth ──

func TestJWTAuth(t *testing.T) {
	verifier := jwt.NewVerifier(&config.AuthConfig{JWTSecret: testSecret})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"缺少认证头", "", http.StatusUnauthorized},
		{"格式错误", "Token abc", http.StatusUnauthorized},
		{"签名无效", "Bearer invalid.token.string", http.StatusUnauthorized},
		{"已过期", "Bearer " + signAccessToken(t, "u-1", RoleAdmin, -time.Minute), http.StatusUnauthorized},
		{"有效", "Bearer " + signAccessToken(t, "u-1", RoleAdmin, 15*time.Minute), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := run(req, JWTAuth(verifier))
			if w.Code != tt.wantStatus {
				t.Errorf("期望 %d, 实际 %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestJWTAuth_ExpiredMessage(t *testing.T) {
	verifier := jwt.NewVerifier(&config.AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
	req.Header.Set("Authorization", "Bearer "+signAccessToken(t, "u-1", RoleAdmin, -time.Minute))

	w := run(req, JWTAuth(verifier))

	if !bytes.Contains(w.Body.Bytes(), []byte("Token 已过期")) {
		t.Errorf("过期 token 应提示已过期: %s", w.Body.String())
	}
}

// ── RoleAuth ──

func TestRoleAuth(t *testing.T) {
	tests := []struct {
		role       string
		wantStatus int
	}{
		{RoleAdmin, http.StatusOK},
		{RoleStaff, http.StatusForbidden},
		{RoleParent, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
			w := run(req, withIdentity("u-1", tt.role), RoleAuth(RoleAdmin))
			if w.Code != tt.wantStatus {
				t.Errorf("期望 %d, 实际 %d", tt.wantStatus, w.Code)
			}
		})
	}
}

// ── ChildAccess ──

type mockGuardians struct {
	links map[string]string // childID → guardianID
	err   error
	calls int
}

func (m *mockGuardians) IsGuardian(_ context.Context, childID, guardianID string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.links[childID] == guardianID, nil
}

func TestChildAccess(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		role       string
		checker    *mockGuardians
		wantStatus int
		wantCalls  int
	}{
		{"管理员直接放行", "admin-1", RoleAdmin, &mockGuardians{}, http.StatusOK, 0},
		{"员工直接放行", "staff-1", RoleStaff, &mockGuardians{}, http.StatusOK, 0},
		{"家长查看自己的孩子", "parent-1", RoleParent, &mockGuardians{links: map[string]string{"c-1": "parent-1"}}, http.StatusOK, 1},
		{"家长查看别人的孩子", "parent-2", RoleParent, &mockGuardians{links: map[string]string{"c-1": "parent-1"}}, http.StatusForbidden, 1},
		{"未知角色", "x", "guest", &mockGuardians{}, http.StatusForbidden, 0},
		{"查询失败", "parent-1", RoleParent, &mockGuardians{err: errors.New("db down")}, http.StatusInternalServerError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
			w := run(req, withIdentity(tt.userID, tt.role), ChildAccess(tt.checker, "childId"))
			if w.Code != tt.wantStatus {
				t.Errorf("期望 %d, 实际 %d", tt.wantStatus, w.Code)
			}
			if tt.checker.calls != tt.wantCalls {
				t.Errorf("期望查询监护关系 %d 次, 实际 %d", tt.wantCalls, tt.checker.calls)
			}
		})
	}
}

// ── BodyLimit ──

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/children/c-1", bytes.NewReader(make([]byte, 2048)))
	w := run(req, BodyLimit(1024))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("期望 413, 实际 %d", w.Code)
	}
}

func TestBodyLimit_ChunkedBody(t *testing.T) {
	// 未声明长度的请求体在读取时才被截断
	req := httptest.NewRequest(http.MethodPost, "/children/c-1", io.NopCloser(bytes.NewReader(make([]byte, 2048))))
	req.ContentLength = -1

	var readErr error
	w := httptest.NewRecorder()
	r := gin.New()
	r.POST("/children/:childId", BodyLimit(1024), func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(w, req)

	if !IsBodyTooLarge(readErr) {
		t.Errorf("期望读取时报告请求体过大, 实际 %v", readErr)
	}
}

// ── RateLimit / RequestID / SecurityHeaders ──

func TestRateLimit_NilClientPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
	w := run(req, RateLimit(nil, 1, time.Minute, zap.NewNop()))

	if w.Code != http.StatusOK {
		t.Errorf("Redis 不可用时应放行, 实际 %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
	req.Header.Set("X-Request-ID", "gateway-42")
	w := run(req, RequestID())
	if got := w.Header().Get("X-Request-ID"); got != "gateway-42" {
		t.Errorf("应沿用上游 Request-ID, 实际 %s", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
	w = run(req, RequestID())
	if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("应生成 UUID, 实际 %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/children/c-1", nil)
	w := run(req, SecurityHeaders())

	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s 期望 %s, 实际 %s", header, want, got)
		}
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/children/c-1", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	w := httptest.NewRecorder()
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173/"}))
	r.OPTIONS("/children/:childId", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("预检请求期望 204, 实际 %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin 错误: %s", got)
	}
}
