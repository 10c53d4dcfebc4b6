package gate

import (
	"context"

	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/plan"
)

// SkipReason 说明策略门为何拦下一个交易计划。
type SkipReason string

const (
	// SkipHold 表示计划本身建议持有，不应执行。
	SkipHold SkipReason = "hold"
	// SkipPaused 表示委托合约处于暂停状态。
	SkipPaused SkipReason = "paused"
)

// Result 是一次门禁检查的结论。
type Result struct {
	Proceed bool
	Reason  SkipReason
}

// PauseReader 读取委托合约的实时暂停状态。
type PauseReader interface {
	Paused(ctx context.Context) (bool, error)
}

// Gate 在签名等不可逆动作之前执行前置条件检查。
// 暂停状态必须在签名前实时读取，不允许缓存，避免使用过期状态。
type Gate struct {
	pauses PauseReader
}

// New 创建策略门。
func New(pauses PauseReader) *Gate {
	return &Gate{pauses: pauses}
}

// Check 判断计划是否可以进入签名阶段。
// hold 计划直接跳过；合约暂停时跳过；暂停状态读取失败视为链访问错误。
func (g *Gate) Check(ctx context.Context, p plan.TradePlan) (Result, error) {
	if p.Action == plan.ActionHold {
		return Result{Reason: SkipHold}, nil
	}

	if g.pauses == nil {
		return Result{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置合约暂停状态读取器")
	}
	paused, err := g.pauses.Paused(ctx)
	if err != nil {
		return Result{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "读取合约暂停状态失败")
	}
	if paused {
		return Result{Reason: SkipPaused}, nil
	}
	return Result{Proceed: true}, nil
}
