package auth

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"time"

	loggerpkg "AgentSwap-Chain/pkg/logger"
)

// Guard 实现基于静态 Bearer Token 的接口保护。
// Token 为空时中间件处于关闭状态，直接放行。
type Guard struct {
	token string
}

// NewGuardFromEnv 从环境变量读取 Token 创建 Guard。变量未设置或为空
// 表示关闭认证。
func NewGuardFromEnv(envName string) *Guard {
	if strings.TrimSpace(envName) == "" {
		return &Guard{}
	}
	return &Guard{token: strings.TrimSpace(os.Getenv(envName))}
}

// NewGuard 使用给定 Token 创建 Guard，主要用于测试。
func NewGuard(token string) *Guard {
	return &Guard{token: strings.TrimSpace(token)}
}

// Enabled 报告认证是否开启。
func (g *Guard) Enabled() bool {
	return g != nil && g.token != ""
}

// Middleware 返回 HTTP 中间件：校验 Authorization 头并记录审计日志。
func (g *Guard) Middleware(auditEvent string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			// 认证请求。
			presented := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) != 1 {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				loggerpkg.Audit().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
				)
				return
			}
			// 记录审计日志。
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r)
			event := auditEvent
			if event == "" {
				event = r.URL.Path
			}
			loggerpkg.Audit().Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
