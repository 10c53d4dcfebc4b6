package plan

import (
	"github.com/shopspring/decimal"

	"AgentSwap-Chain/internal/sentiment"
	"AgentSwap-Chain/internal/token"
)

// Action 表示交易计划建议的操作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// RiskTier 表示交易计划的风险档位。
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Pair 表示交易对，基础资产对计价资产。
type Pair struct {
	Base  token.Symbol `json:"base"`
	Quote token.Symbol `json:"quote"`
}

// String 返回 "ETH/USDC" 形式的交易对描述。
func (p Pair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// TradePlan 是一次管道运行产出的交易提案。生成后不再修改，
// 是与签名授权一一对应的审计工件。
type TradePlan struct {
	Action         Action          `json:"action"`
	Pair           Pair            `json:"pair"`
	Amount         decimal.Decimal `json:"amount"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	SentimentScore float64         `json:"sentiment_score"`
	Confidence     float64         `json:"confidence"`
	RiskTier       RiskTier        `json:"risk_tier"`
}

// Config 汇总计划合成所需的策略参数。阈值不是硬编码常量，
// 不同策略配置可以表达原系统里分叉的插件变体。
type Config struct {
	// BaseAmount 是单次运行的仓位上限（基础资产单位）。
	BaseAmount decimal.Decimal
	// BasePrice 是目标价计算的参考价。
	BasePrice decimal.Decimal
	// PriceSensitivity 控制情绪分值对目标价的影响幅度。
	PriceSensitivity decimal.Decimal
	// ActionConfidence 是触发 buy/sell 所需的最低置信度。
	ActionConfidence float64
	// QuoteSymbol 是交易对的计价资产。
	QuoteSymbol token.Symbol
}

// DefaultConfig 返回默认策略参数。
func DefaultConfig() Config {
	return Config{
		BaseAmount:       decimal.NewFromFloat(0.1),
		BasePrice:        decimal.NewFromInt(3000),
		PriceSensitivity: decimal.NewFromFloat(0.1),
		ActionConfidence: 0.6,
		QuoteSymbol:      token.USDC,
	}
}

// Synthesizer 把聚合情绪转换为有界交易提案。纯函数、无 IO。
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer 创建合成器，空字段回填默认值。
func NewSynthesizer(cfg Config) *Synthesizer {
	defaults := DefaultConfig()
	if cfg.BaseAmount.IsZero() {
		cfg.BaseAmount = defaults.BaseAmount
	}
	if cfg.BasePrice.IsZero() {
		cfg.BasePrice = defaults.BasePrice
	}
	if cfg.PriceSensitivity.IsZero() {
		cfg.PriceSensitivity = defaults.PriceSensitivity
	}
	if cfg.ActionConfidence <= 0 {
		cfg.ActionConfidence = defaults.ActionConfidence
	}
	if !token.IsValid(cfg.QuoteSymbol) {
		cfg.QuoteSymbol = defaults.QuoteSymbol
	}
	return &Synthesizer{cfg: cfg}
}

// Synthesize 根据聚合情绪生成交易计划。
//   - 仓位 = BaseAmount × |score| × confidence，信号强度与置信度共同决定规模；
//   - 目标价 = BasePrice × (1 + score × PriceSensitivity)，仅作审计参考，
//     不参与链上 minAmountOut 的计算；
//   - hold 计划同样给出仓位与目标价供审计，但由策略门禁止执行。
func (s *Synthesizer) Synthesize(symbol token.Symbol, agg sentiment.Aggregate) TradePlan {
	action := ActionHold
	switch {
	case agg.Classification == sentiment.Bullish && agg.Confidence > s.cfg.ActionConfidence:
		action = ActionBuy
	case agg.Classification == sentiment.Bearish && agg.Confidence > s.cfg.ActionConfidence:
		action = ActionSell
	}

	magnitude := decimal.NewFromFloat(abs(agg.Score)).Mul(decimal.NewFromFloat(agg.Confidence))
	amount := s.cfg.BaseAmount.Mul(magnitude).Round(4)

	drift := decimal.NewFromFloat(agg.Score).Mul(s.cfg.PriceSensitivity)
	targetPrice := s.cfg.BasePrice.Mul(decimal.NewFromInt(1).Add(drift)).Round(2)

	return TradePlan{
		Action:         action,
		Pair:           Pair{Base: symbol, Quote: s.cfg.QuoteSymbol},
		Amount:         amount,
		TargetPrice:    targetPrice,
		SentimentScore: agg.Score,
		Confidence:     agg.Confidence,
		RiskTier:       riskTier(agg.Score, agg.Confidence),
	}
}

// riskTier 对信号强度与置信度都单调：低置信度的信号永远不会被评为低风险。
func riskTier(score, confidence float64) RiskTier {
	magnitude := abs(score)
	switch {
	case confidence > 0.8 && magnitude > 0.7:
		return RiskLow
	case confidence > 0.6 && magnitude > 0.5:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
