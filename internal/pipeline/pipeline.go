package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/gate"
	"AgentSwap-Chain/internal/plan"
	"AgentSwap-Chain/internal/sentiment"
	"AgentSwap-Chain/internal/signer"
	"AgentSwap-Chain/internal/submit"
	"AgentSwap-Chain/internal/token"
	"AgentSwap-Chain/pkg/logger"
)

// State 标记管道当前所处的阶段，用于日志与问题定位。
type State string

const (
	StateResolving    State = "resolving"
	StateAggregating  State = "aggregating"
	StateSynthesizing State = "synthesizing"
	StateGating       State = "gating"
	StateSigning      State = "signing"
	StateSubmitting   State = "submitting"
	StateDone         State = "done"
	StateSkipped      State = "skipped"
	StateErrored      State = "errored"
)

// OutcomeKind 是一次完整管道运行的终态分类。
type OutcomeKind string

const (
	// OutcomeExecuted 表示交易已上链且执行成功。
	OutcomeExecuted OutcomeKind = "executed"
	// OutcomeRejected 表示交易上链但被合约回滚。
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeHold 表示计划建议持有，未进入签名。
	OutcomeHold OutcomeKind = "hold"
	// OutcomePaused 表示合约暂停，未进入签名。
	OutcomePaused OutcomeKind = "paused"
	// OutcomeFailed 表示签名后提交未确认，nonce 已消耗。
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeErrored 表示管道在签名之前出错，没有消耗 nonce。
	OutcomeErrored OutcomeKind = "errored"
)

// Outcome 汇总一次交易意图的处理结果。
type Outcome struct {
	Kind       OutcomeKind         `json:"kind"`
	Message    string              `json:"message"`
	Symbol     token.Symbol        `json:"symbol"`
	Sentiment  sentiment.Aggregate `json:"sentiment"`
	Plan       plan.TradePlan      `json:"plan"`
	Submission *submit.Result      `json:"submission,omitempty"`
	Err        error               `json:"-"`
}

// Terminal 报告该结果是否给出了明确答复（包括跳过与回滚）。
// 只有管道自身出错才算未答复。
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomeErrored
}

// Aggregator 聚合一个符号的情绪样本。
type Aggregator interface {
	Aggregate(ctx context.Context, symbol token.Symbol) sentiment.Aggregate
}

// Synthesizer 由情绪聚合生成交易计划。
type Synthesizer interface {
	Synthesize(symbol token.Symbol, agg sentiment.Aggregate) plan.TradePlan
}

// PolicyGate 在签名前执行前置检查。
type PolicyGate interface {
	Check(ctx context.Context, p plan.TradePlan) (gate.Result, error)
}

// AuthorizationSigner 生成已签名的交易授权。
type AuthorizationSigner interface {
	Sign(ctx context.Context, p plan.TradePlan) (signer.Authorization, []byte, error)
}

// Submitter 把授权送上链并归一结果。
type Submitter interface {
	Submit(ctx context.Context, auth signer.Authorization, signature []byte) submit.Result
}

// Pipeline 串联六个组件，是它们唯一的调用方。
// ProcessTradingRequest 是对外的唯一入口。
type Pipeline struct {
	resolver    *token.Resolver
	aggregator  Aggregator
	synthesizer Synthesizer
	gate        PolicyGate
	signer      AuthorizationSigner
	submitter   Submitter
	log         *slog.Logger
}

// New 创建管道。所有依赖都必须已初始化。
func New(resolver *token.Resolver, aggregator Aggregator, synthesizer Synthesizer, policyGate PolicyGate, authSigner AuthorizationSigner, submitter Submitter) (*Pipeline, error) {
	if resolver == nil || aggregator == nil || synthesizer == nil || policyGate == nil || authSigner == nil || submitter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "管道依赖不完整")
	}
	return &Pipeline{
		resolver:    resolver,
		aggregator:  aggregator,
		synthesizer: synthesizer,
		gate:        policyGate,
		signer:      authSigner,
		submitter:   submitter,
		log:         logger.Named("pipeline"),
	}, nil
}

// ProcessTradingRequest 处理一条自由文本交易意图，走完
// 解析 → 聚合 → 合成 → 门禁 → 签名 → 提交 的完整状态机。
// 返回值总是携带终态，调用方不需要额外判错。
func (p *Pipeline) ProcessTradingRequest(ctx context.Context, freeText string) Outcome {
	state := StateResolving
	symbol := p.resolver.Resolve(freeText)
	p.log.Debug("已解析交易标的", slog.String("state", string(state)), slog.String("symbol", string(symbol)))

	state = StateAggregating
	agg := p.aggregator.Aggregate(ctx, symbol)

	state = StateSynthesizing
	tradePlan := p.synthesizer.Synthesize(symbol, agg)
	p.log.Info("已合成交易计划",
		slog.String("symbol", string(symbol)),
		slog.String("action", string(tradePlan.Action)),
		slog.String("amount", tradePlan.Amount.String()),
		slog.Float64("score", agg.Score),
		slog.Float64("confidence", agg.Confidence),
	)

	state = StateGating
	gateResult, err := p.gate.Check(ctx, tradePlan)
	if err != nil {
		return p.errored(state, symbol, agg, tradePlan, err)
	}
	if !gateResult.Proceed {
		return p.skipped(gateResult.Reason, symbol, agg, tradePlan)
	}

	state = StateSigning
	auth, signature, err := p.signer.Sign(ctx, tradePlan)
	if err != nil {
		return p.errored(state, symbol, agg, tradePlan, err)
	}

	state = StateSubmitting
	result := p.submitter.Submit(ctx, auth, signature)

	state = StateDone
	outcome := Outcome{
		Symbol:     symbol,
		Sentiment:  agg,
		Plan:       tradePlan,
		Submission: &result,
	}
	switch result.Status {
	case submit.StatusExecuted:
		outcome.Kind = OutcomeExecuted
		outcome.Message = fmt.Sprintf("Executed %s of %s %s at target price %s, tx %s",
			tradePlan.Action, tradePlan.Amount, tradePlan.Pair, tradePlan.TargetPrice, result.TxHash)
	case submit.StatusRejected:
		outcome.Kind = OutcomeRejected
		outcome.Message = fmt.Sprintf("Swap reverted on-chain: %s", result.RevertReason)
	default:
		outcome.Kind = OutcomeFailed
		outcome.Err = result.Err
		outcome.Message = fmt.Sprintf("Swap submission did not confirm; nonce %s is consumed and will not be reused", auth.Nonce)
	}
	p.log.Info("管道运行结束", slog.String("state", string(state)), slog.String("kind", string(outcome.Kind)))
	return outcome
}

func (p *Pipeline) skipped(reason gate.SkipReason, symbol token.Symbol, agg sentiment.Aggregate, tradePlan plan.TradePlan) Outcome {
	outcome := Outcome{Symbol: symbol, Sentiment: agg, Plan: tradePlan}
	switch reason {
	case gate.SkipPaused:
		outcome.Kind = OutcomePaused
		outcome.Message = "Trading is paused on the delegation contract; no authorization was signed"
	default:
		outcome.Kind = OutcomeHold
		outcome.Message = fmt.Sprintf("Holding %s: score %.2f with confidence %.2f did not justify a trade",
			symbol, agg.Score, agg.Confidence)
	}
	p.log.Info("管道跳过执行",
		slog.String("state", string(StateSkipped)),
		slog.String("reason", string(reason)),
		slog.String("symbol", string(symbol)),
	)
	return outcome
}

func (p *Pipeline) errored(state State, symbol token.Symbol, agg sentiment.Aggregate, tradePlan plan.TradePlan, err error) Outcome {
	p.log.Error("管道运行失败",
		slog.String("state", string(state)),
		slog.String("symbol", string(symbol)),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.String("error", err.Error()),
	)
	return Outcome{
		Kind:      OutcomeErrored,
		Message:   fmt.Sprintf("Trading pipeline failed while %s: %v", state, err),
		Symbol:    symbol,
		Sentiment: agg,
		Plan:      tradePlan,
		Err:       err,
	}
}
