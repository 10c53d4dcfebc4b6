package trade

import (
	stdErrors "errors"

	xerrors "AgentSwap-Chain/internal/errors"
)

// Status 表示交易请求在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome 保存一次管道运行的终态。Skipped 与 Rejected 也是终态：
// 管道给出了明确答复，对应请求视为成功。
type Outcome struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Symbol       string `json:"symbol"`
	Action       string `json:"action"`
	Amount       string `json:"amount"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  string `json:"block_number,omitempty"`
	RevertReason string `json:"revert_reason,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

// Request 描述了排队处理的交易意图。
type Request struct {
	ID         string         `json:"id"`
	Intent     string         `json:"intent"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Outcome    *Outcome       `json:"outcome,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

var (
	// ErrRequestNotFound 表示指定的交易请求不存在。
	ErrRequestNotFound = xerrors.New(CodeRequestNotFound, "trade request not found")
	// ErrRequestConflict 表示请求在当前状态下无法进行所请求的操作。
	ErrRequestConflict = xerrors.New(CodeRequestConflict, "trade request conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRequestCompleted 表示请求已经成功完成。
	ErrRequestCompleted = xerrors.New(CodeRequestCompleted, "trade request already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrRequestExhausted 表示请求的重试次数已经耗尽。
	ErrRequestExhausted = xerrors.New(CodeRequestExhausted, "trade request retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeRequestNotFound   xerrors.Code = "TRADE_NOT_FOUND"
	CodeRequestConflict   xerrors.Code = "TRADE_CONFLICT"
	CodeRequestCompleted  xerrors.Code = "TRADE_COMPLETED"
	CodeRequestExhausted  xerrors.Code = "TRADE_RETRIES_EXHAUSTED"
	CodeRequestValidation xerrors.Code = "TRADE_VALIDATION_FAILED"
	CodeRequestPublish    xerrors.Code = "TRADE_PUBLISH_FAILED"
	CodeRequestProcessing xerrors.Code = "TRADE_PROCESSING_FAILED"
	// CodeNonceConsumed 标记签名后才失败的请求：nonce 已消耗，
	// 任何重试都必须是全新的授权，因此该失败永远是终态。
	CodeNonceConsumed xerrors.Code = "TRADE_NONCE_CONSUMED"
)

func init() {
	xerrors.Register(CodeRequestNotFound, xerrors.Attributes{
		Message:   "trade request not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestConflict, xerrors.Attributes{
		Message:   "trade request conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestCompleted, xerrors.Attributes{
		Message:   "trade request already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestExhausted, xerrors.Attributes{
		Message:   "trade request retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeRequestValidation, xerrors.Attributes{
		Message:   "trade request validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestPublish, xerrors.Attributes{
		Message:   "failed to publish trade request",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRequestProcessing, xerrors.Attributes{
		Message:   "trade request processing failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeNonceConsumed, xerrors.Attributes{
		Message:   "authorization nonce consumed without confirmation",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsRequestError 判断错误是否为指定的统一请求错误。
func IsRequestError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrRequestNotFound) {
		return target == CodeRequestNotFound
	}
	if stdErrors.Is(err, ErrRequestConflict) {
		return target == CodeRequestConflict
	}
	if stdErrors.Is(err, ErrRequestCompleted) {
		return target == CodeRequestCompleted
	}
	if stdErrors.Is(err, ErrRequestExhausted) {
		return target == CodeRequestExhausted
	}
	return false
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneRequest(req *Request) *Request {
	clone := *req
	if req.Outcome != nil {
		outcomeCopy := *req.Outcome
		clone.Outcome = &outcomeCopy
	}
	clone.Metadata = cloneMetadata(req.Metadata)
	return &clone
}

// IsValidStatus 检查给定的请求状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
