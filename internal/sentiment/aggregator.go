package sentiment

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"AgentSwap-Chain/internal/token"
	"AgentSwap-Chain/pkg/logger"
)

// defaultFetchTimeout 限制单次情绪拉取的耗时。
const defaultFetchTimeout = 10 * time.Second

// Aggregator 负责拉取原始片段、逐条打分并归并为聚合信号。
type Aggregator struct {
	source       Source
	fetchTimeout time.Duration
}

// AggregatorOption 定义可选配置。
type AggregatorOption func(*Aggregator)

// WithFetchTimeout 设置拉取片段的超时时间。
func WithFetchTimeout(timeout time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if timeout > 0 {
			a.fetchTimeout = timeout
		}
	}
}

// NewAggregator 创建聚合器。
func NewAggregator(source Source, opts ...AggregatorOption) *Aggregator {
	agg := &Aggregator{source: source, fetchTimeout: defaultFetchTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(agg)
		}
	}
	return agg
}

// Aggregate 为指定资产生成聚合情绪。数据源超时或出错都按
// 零样本降级处理：返回中性、零置信度的结果而不是错误。
func (a *Aggregator) Aggregate(ctx context.Context, symbol token.Symbol) Aggregate {
	snippets := a.fetch(ctx, symbol)

	samples := make([]Sample, 0, len(snippets))
	for _, snippet := range snippets {
		samples = append(samples, ScoreSnippet(snippet))
	}
	return Reduce(samples)
}

func (a *Aggregator) fetch(ctx context.Context, symbol token.Symbol) []string {
	if a.source == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	snippets, err := a.source.FetchSnippets(fetchCtx, symbol)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			logger.L().Warn("情绪拉取超时，按零样本处理", slog.String("symbol", string(symbol)))
			return nil
		}
		logger.L().Warn("情绪拉取失败，按零样本处理",
			slog.String("symbol", string(symbol)),
			slog.Any("error", err),
		)
		return nil
	}
	return snippets
}
