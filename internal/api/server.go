package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentSwap-Chain/internal/auth"
	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/observability/metrics"
	"AgentSwap-Chain/internal/trade"
)

// StatusReport 汇总守护进程当前的链上状态，供 /api/v1/status 返回。
// AuthorizedSigner 与 SignerFunds 来自合约的实时读数，用于核对本地
// 签名身份与托管资金。
type StatusReport struct {
	Paused           bool     `json:"paused"`
	SignerAddress    string   `json:"signer_address"`
	AuthorizedSigner string   `json:"authorized_signer"`
	SignerAuthorized bool     `json:"signer_authorized"`
	SignerFunds      string   `json:"signer_funds"`
	LastNonce        uint64   `json:"last_nonce"`
	DefaultChain     string   `json:"default_chain"`
	ChainID          string   `json:"chain_id"`
	BlockNumber      string   `json:"block_number"`
	Chains           []string `json:"chains"`
}

// StatusReporter 提供状态查询能力，由守护进程在装配时注入。
type StatusReporter interface {
	Status(ctx context.Context) (StatusReport, error)
}

// Server 负责暴露 REST 接口，供外部提交交易意图并查询结果。
type Server struct {
	addr   string
	trades *trade.Service
	status StatusReporter
	guard  *auth.Guard
}

// ServerOption 定义可选配置。
type ServerOption func(*Server)

// WithStatusReporter 注入状态查询实现。
func WithStatusReporter(reporter StatusReporter) ServerOption {
	return func(s *Server) {
		s.status = reporter
	}
}

// WithGuard 注入接口认证中间件。
func WithGuard(guard *auth.Guard) ServerOption {
	return func(s *Server) {
		s.guard = guard
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, trades *trade.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, trades: trades}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/trades", s.protect("trades", http.HandlerFunc(s.handleTrades)))
	mux.Handle("/api/v1/trades/stats", s.protect("trade_stats", http.HandlerFunc(s.handleTradeStats)))
	mux.Handle("/api/v1/status", s.protect("status", http.HandlerFunc(s.handleStatus)))
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// protect 组合认证与指标中间件。
func (s *Server) protect(name string, handler http.Handler) http.Handler {
	measured := measure(name, handler)
	if s.guard != nil {
		return s.guard.Middleware(name)(measured)
	}
	return measured
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTrade(w, r)
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			s.handleTradeDetail(w, r, id)
			return
		}
		s.handleListTrades(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET/POST")
	}
}

// handleSubmitTrade 处理提交交易意图的请求。
func (s *Server) handleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	if s.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "交易服务未初始化")
		return
	}

	var req trade.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "请求体解析失败")
		return
	}

	record, err := s.trades.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(record)
}

func (s *Server) handleTradeDetail(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.trades.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)
	records, err := s.trades.List(r.Context(), opts...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET")
		return
	}
	stats, err := s.trades.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET")
		return
	}
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "状态查询未初始化")
		return
	}
	report, err := s.status.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, string(xerrors.CodeOf(err)), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// listOptionsFromQuery 将查询参数转换为列表过滤条件。
func listOptionsFromQuery(r *http.Request) []trade.ListOption {
	query := r.URL.Query()
	var opts []trade.ListOption
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, trade.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, trade.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]trade.Status, 0, 4)
		for _, part := range strings.Split(raw, ",") {
			status := trade.Status(strings.TrimSpace(part))
			if trade.IsValidStatus(status) {
				statuses = append(statuses, status)
			}
		}
		if len(statuses) > 0 {
			opts = append(opts, trade.WithStatuses(statuses...))
		}
	}
	if raw := query.Get("has_outcome"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			opts = append(opts, trade.WithOutcomePresence(parsed))
		}
	}
	if raw := query.Get("order"); strings.EqualFold(raw, "asc") {
		opts = append(opts, trade.WithSortOrder(trade.SortByUpdatedAsc))
	}
	if raw := strings.TrimSpace(query.Get("q")); raw != "" {
		opts = append(opts, trade.WithQuery(raw))
	}
	return opts
}

// writeServiceError 把服务层错误映射为 HTTP 状态码。
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case trade.IsRequestError(err, trade.CodeRequestNotFound):
		status = http.StatusNotFound
	case trade.IsRequestError(err, trade.CodeRequestConflict):
		status = http.StatusConflict
	case xerrors.CodeOf(err) == trade.CodeRequestValidation:
		status = http.StatusBadRequest
	}
	writeError(w, status, string(xerrors.CodeOf(err)), err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// measure 记录每个接口的请求指标。
func measure(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mw := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(mw, r)
		metrics.ObserveHTTPRequest(name, r.Method, mw.status, time.Since(start))
	})
}

type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
