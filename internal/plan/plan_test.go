package plan

import (
	"testing"

	"github.com/shopspring/decimal"

	"AgentSwap-Chain/internal/sentiment"
	"AgentSwap-Chain/internal/token"
)

func TestSynthesizeBuyOnConfidentBullish(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	p := s.Synthesize(token.ETH, sentiment.Aggregate{
		Score:          0.9,
		Confidence:     0.8,
		Classification: sentiment.Bullish,
	})

	if p.Action != ActionBuy {
		t.Fatalf("expected buy, got %s", p.Action)
	}
	if p.Pair.String() != "ETH/USDC" {
		t.Fatalf("unexpected pair %s", p.Pair)
	}
	if !p.Amount.IsPositive() {
		t.Fatalf("expected positive amount, got %s", p.Amount)
	}
	// 0.1 × 0.9 × 0.8 = 0.072
	if want := decimal.NewFromFloat(0.072); !p.Amount.Equal(want) {
		t.Fatalf("expected amount %s, got %s", want, p.Amount)
	}
}

func TestSynthesizeHoldBelowConfidenceThreshold(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	p := s.Synthesize(token.ETH, sentiment.Aggregate{
		Score:          0.9,
		Confidence:     0.5,
		Classification: sentiment.Bullish,
	})
	if p.Action != ActionHold {
		t.Fatalf("expected hold below confidence threshold, got %s", p.Action)
	}
	if p.Amount.IsNegative() {
		t.Fatalf("amount must never be negative, got %s", p.Amount)
	}
	if !p.TargetPrice.IsPositive() {
		t.Fatalf("target price must stay positive for audit, got %s", p.TargetPrice)
	}
}

func TestSynthesizeSellOnConfidentBearish(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	p := s.Synthesize(token.BTC, sentiment.Aggregate{
		Score:          -0.8,
		Confidence:     0.7,
		Classification: sentiment.Bearish,
	})
	if p.Action != ActionSell {
		t.Fatalf("expected sell, got %s", p.Action)
	}
	if !p.TargetPrice.LessThan(decimal.NewFromInt(3000)) {
		t.Fatalf("bearish target price should sit below base price, got %s", p.TargetPrice)
	}
}

func TestSynthesizeTargetPriceTracksSentiment(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	p := s.Synthesize(token.ETH, sentiment.Aggregate{
		Score:          0.5,
		Confidence:     0.9,
		Classification: sentiment.Bullish,
	})
	// 3000 × (1 + 0.5 × 0.1) = 3150
	if want := decimal.NewFromInt(3150); !p.TargetPrice.Equal(want) {
		t.Fatalf("expected target price %s, got %s", want, p.TargetPrice)
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	agg := sentiment.Aggregate{Score: 0.42, Confidence: 0.77, Classification: sentiment.Bullish}

	first := s.Synthesize(token.SOL, agg)
	second := s.Synthesize(token.SOL, agg)
	if first.Action != second.Action || !first.Amount.Equal(second.Amount) || !first.TargetPrice.Equal(second.TargetPrice) {
		t.Fatalf("synthesize must be deterministic: %+v vs %+v", first, second)
	}
}

func TestRiskTierMonotonic(t *testing.T) {
	cases := []struct {
		score      float64
		confidence float64
		want       RiskTier
	}{
		{0.9, 0.9, RiskLow},
		{-0.9, 0.9, RiskLow},
		{0.6, 0.7, RiskMedium},
		{0.9, 0.5, RiskHigh},
		{0.2, 0.95, RiskHigh},
		{0.0, 0.0, RiskHigh},
	}
	for _, tc := range cases {
		if got := riskTier(tc.score, tc.confidence); got != tc.want {
			t.Fatalf("riskTier(%f, %f) = %s, want %s", tc.score, tc.confidence, got, tc.want)
		}
	}
}

func TestNewSynthesizerAppliesDefaults(t *testing.T) {
	s := NewSynthesizer(Config{})
	p := s.Synthesize(token.ETH, sentiment.Aggregate{
		Score:          1,
		Confidence:     1,
		Classification: sentiment.Bullish,
	})
	if !p.Amount.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("expected default base amount cap 0.1, got %s", p.Amount)
	}
	if p.Pair.Quote != token.USDC {
		t.Fatalf("expected default quote USDC, got %s", p.Pair.Quote)
	}
}
