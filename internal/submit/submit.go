package submit

import (
	"context"
	"log/slog"

	"AgentSwap-Chain/internal/chain"
	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/signer"
	"AgentSwap-Chain/pkg/logger"
)

// CodeSubmissionFailure 表示交易在进入链上执行前因传输层原因失败。
const CodeSubmissionFailure xerrors.Code = "SUBMISSION_FAILURE"

func init() {
	xerrors.Register(CodeSubmissionFailure, xerrors.Attributes{
		Message:   "swap submission failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// Status 是一次提交的终态。
type Status string

const (
	// StatusExecuted 表示交易上链且执行成功。
	StatusExecuted Status = "executed"
	// StatusRejected 表示交易上链但被合约回滚，回滚原因原样保留。
	StatusRejected Status = "rejected"
	// StatusFailed 表示交易未能确认（传输或超时）。此时 nonce 已消耗，
	// 不允许使用同一授权重试。
	StatusFailed Status = "failed"
)

// Result 汇总一次提交的链上结果。Nonce 始终回传，供对账使用。
type Result struct {
	Status       Status `json:"status"`
	Nonce        string `json:"nonce"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	GasUsed      uint64 `json:"gas_used,omitempty"`
	RevertReason string `json:"revert_reason,omitempty"`
	Err          error  `json:"-"`
}

// SwapExecutor 是提交器对链客户端的最小依赖。
type SwapExecutor interface {
	ExecuteSwap(ctx context.Context, trade chain.TradeData, signature []byte) (chain.SwapReceipt, error)
}

// Submitter 把已签名授权送上链并把链上结果归一为三种终态。
type Submitter struct {
	executor SwapExecutor
}

// New 创建提交器。
func New(executor SwapExecutor) *Submitter {
	return &Submitter{executor: executor}
}

// Submit 执行提交。任何结果（包括失败）都写入审计日志，因为授权的
// nonce 在签名时已消耗，对账必须能追溯到每一个 nonce 的去向。
func (s *Submitter) Submit(ctx context.Context, auth signer.Authorization, signature []byte) Result {
	trade := chain.TradeData{
		TokenOut:     auth.TokenOut,
		AmountIn:     auth.AmountIn,
		MinAmountOut: auth.MinAmountOut,
		Deadline:     auth.Deadline,
		Nonce:        auth.Nonce,
	}

	receipt, err := s.executor.ExecuteSwap(ctx, trade, signature)
	if err != nil {
		result := Result{
			Status: StatusFailed,
			Nonce:  auth.Nonce.String(),
			Err: xerrors.Wrap(CodeSubmissionFailure, err, "交易提交未确认",
				xerrors.WithMetadata("nonce", auth.Nonce.String())),
		}
		s.audit(auth, result)
		return result
	}

	result := Result{
		Status:      StatusExecuted,
		Nonce:       auth.Nonce.String(),
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Reverted {
		result.Status = StatusRejected
		result.RevertReason = receipt.RevertReason
	}
	s.audit(auth, result)
	return result
}

func (s *Submitter) audit(auth signer.Authorization, result Result) {
	attrs := []any{
		slog.String("status", string(result.Status)),
		slog.String("nonce", auth.Nonce.String()),
		slog.String("token_out", auth.TokenOut.Hex()),
		slog.String("amount_in", auth.AmountIn.String()),
	}
	if result.TxHash != "" {
		attrs = append(attrs, slog.String("tx_hash", result.TxHash), slog.Uint64("block", result.BlockNumber))
	}
	if result.RevertReason != "" {
		attrs = append(attrs, slog.String("revert_reason", result.RevertReason))
	}
	if result.Err != nil {
		attrs = append(attrs, slog.String("error", result.Err.Error()))
	}
	logger.Audit().Info("交易提交结果", attrs...)
}
