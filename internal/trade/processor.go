package trade

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/observability/alerting"
	"AgentSwap-Chain/internal/pipeline"
	"AgentSwap-Chain/pkg/logger"
)

// Runner 定义了处理器所需的交易管道能力。
type Runner interface {
	ProcessTradingRequest(ctx context.Context, freeText string) pipeline.Outcome
}

// Processor 负责从队列消费交易请求并交给管道执行。
type Processor struct {
	runner      Runner
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动请求处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置请求消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, requestID string) error {
	if p.store == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	req, err := p.store.Claim(ctx, requestID)
	if err != nil {
		if stdErrors.Is(err, ErrRequestNotFound) || stdErrors.Is(err, ErrRequestCompleted) || stdErrors.Is(err, ErrRequestExhausted) {
			p.logDebug("跳过交易请求", slog.String("trade_id", requestID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取交易请求失败", slog.Any("error", err), slog.String("trade_id", requestID))
		p.emitAlert(ctx, &Request{ID: requestID}, CodeRequestProcessing, err, "claim", nil)
		return err
	}

	outcome := p.runner.ProcessTradingRequest(ctx, req.Intent)

	// 管道给出的任何答复（执行、回滚、持有、暂停）都是请求成功；
	// 消耗了 nonce 却未确认的提交是终态失败，绝不重投。
	switch {
	case outcome.Kind == pipeline.OutcomeFailed:
		return p.markNonceConsumed(ctx, req, outcome)
	case outcome.Terminal():
		return p.markAnswered(ctx, req, outcome)
	default:
		return p.handlePipelineFault(ctx, req, outcome.Err)
	}
}

func (p *Processor) markAnswered(ctx context.Context, req *Request, outcome pipeline.Outcome) error {
	record := outcomeRecord(outcome)
	if err := p.store.MarkSucceeded(ctx, req.ID, record); err != nil {
		logger.L().Error("标记请求成功状态失败", slog.Any("error", err), slog.String("trade_id", req.ID))
		if storeErr := p.store.MarkFailed(ctx, req.ID, CodeRequestProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("trade_id", req.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, req.ID); pubErr != nil {
			return xerrors.Wrap(CodeRequestPublish, pubErr, fmt.Sprintf("请求 %s 在标记成功失败后重投失败", req.ID))
		}
		logger.Audit().Warn("请求标记成功失败后重试",
			slog.String("trade_id", req.ID),
			slog.String("intent", req.Intent),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Audit().Info("交易请求处理完成",
		slog.String("trade_id", req.ID),
		slog.String("intent", req.Intent),
		slog.String("kind", record.Kind),
		slog.String("tx_hash", record.TxHash),
	)
	return nil
}

// markNonceConsumed 处理签名后才失败的请求。授权的 nonce 已消耗，
// 重试会生成全新授权而不是补救旧授权，因此这里直接终结请求。
func (p *Processor) markNonceConsumed(ctx context.Context, req *Request, outcome pipeline.Outcome) error {
	message := outcome.Message
	if outcome.Err != nil {
		message = outcome.Err.Error()
	}
	if storeErr := p.store.MarkFailed(ctx, req.ID, CodeNonceConsumed, message, true); storeErr != nil {
		logger.L().Error("标记 nonce 消耗失败状态出错", slog.Any("error", storeErr), slog.String("trade_id", req.ID))
		return storeErr
	}
	nonce := ""
	if outcome.Submission != nil {
		nonce = outcome.Submission.Nonce
	}
	logger.Audit().Warn("交易提交未确认，nonce 已消耗",
		slog.String("trade_id", req.ID),
		slog.String("intent", req.Intent),
		slog.String("nonce", nonce),
		slog.String("error", message),
	)
	// 告警必须携带被消耗的 nonce，运维据此在审计日志中对账。
	p.emitAlert(ctx, req, CodeNonceConsumed, outcome.Err, "nonce_consumed", map[string]string{"nonce": nonce})
	return nil
}

func (p *Processor) handlePipelineFault(ctx context.Context, req *Request, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeRequestProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := req.Attempts >= req.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, req.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记请求失败状态出错", slog.Any("error", storeErr), slog.String("trade_id", req.ID))
		return storeErr
	}
	logger.Audit().Warn("交易请求处理失败",
		slog.String("trade_id", req.ID),
		slog.String("intent", req.Intent),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", req.Attempts),
		slog.Int("max_retries", req.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, req, code, execErr, stage, nil)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, req.ID); pubErr != nil {
			return xerrors.Wrap(CodeRequestPublish, pubErr, fmt.Sprintf("请求 %s 重投失败", req.ID))
		}
		p.logDebug("请求已重新排队", slog.String("trade_id", req.ID), slog.Int("attempts", req.Attempts))
	}
	return nil
}

func outcomeRecord(outcome pipeline.Outcome) Outcome {
	record := Outcome{
		Kind:    string(outcome.Kind),
		Message: outcome.Message,
		Symbol:  string(outcome.Symbol),
		Action:  string(outcome.Plan.Action),
		Amount:  outcome.Plan.Amount.String(),
	}
	if outcome.Submission != nil {
		record.TxHash = outcome.Submission.TxHash
		record.RevertReason = outcome.Submission.RevertReason
		record.Nonce = outcome.Submission.Nonce
		if outcome.Submission.BlockNumber > 0 {
			record.BlockNumber = strconv.FormatUint(outcome.Submission.BlockNumber, 10)
		}
	}
	return record
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, req *Request, code xerrors.Code, cause error, stage string, extra map[string]string) {
	if p == nil || p.alerter == nil || req == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	for key, value := range extra {
		metadata[key] = value
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TradeID:    req.ID,
		Attempts:   req.Attempts,
		MaxRetries: req.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("trade_id", req.ID),
			slog.String("stage", stage),
		)
	}
}
