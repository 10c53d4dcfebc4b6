package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"AgentSwap-Chain/internal/token"
)

func TestScoreSnippetBullish(t *testing.T) {
	sample := ScoreSnippet("ETH looking bullish! Institutional adoption is growing!")
	if sample.Score < 0.7 {
		t.Fatalf("expected score >= 0.7, got %f", sample.Score)
	}
	if sample.Confidence < 0.7 {
		t.Fatalf("expected confidence >= 0.7, got %f", sample.Confidence)
	}
	if len(sample.Keywords) == 0 {
		t.Fatalf("expected keywords, got none")
	}
}

func TestScoreSnippetClampsToOne(t *testing.T) {
	sample := ScoreSnippet("bullish viral adoption breakout 🚀")
	if sample.Score != 1 {
		t.Fatalf("expected clamped score 1, got %f", sample.Score)
	}
}

func TestScoreSnippetBearish(t *testing.T) {
	sample := ScoreSnippet("Bearish signals, institutional selling pressure at resistance")
	if sample.Score >= 0 {
		t.Fatalf("expected negative score, got %f", sample.Score)
	}
}

func TestScoreSnippetConsolidationDampens(t *testing.T) {
	plain := ScoreSnippet("strong support and breakout potential")
	dampened := ScoreSnippet("strong support and breakout potential, but consolidating")
	if dampened.Score >= plain.Score {
		t.Fatalf("expected dampened score below %f, got %f", plain.Score, dampened.Score)
	}
	if dampened.Score != plain.Score*0.5 {
		t.Fatalf("expected score scaled by 0.5, got %f", dampened.Score)
	}
}

func TestReduceEmptyInput(t *testing.T) {
	agg := Reduce(nil)
	if agg.Score != 0 || agg.Confidence != 0 {
		t.Fatalf("expected zero score and confidence, got %+v", agg)
	}
	if agg.Classification != Neutral {
		t.Fatalf("expected neutral classification, got %s", agg.Classification)
	}
}

func TestReduceKeywordsDeduplicatedAndCapped(t *testing.T) {
	samples := []Sample{
		{Score: 0.8, Confidence: 0.8, Keywords: []string{"bullish", "momentum", "bullish"}},
		{Score: 0.7, Confidence: 0.7, Keywords: []string{"adoption", "institutional", "momentum"}},
		{Score: 0.9, Confidence: 0.9, Keywords: []string{"viral", "growth", "technical"}},
	}
	agg := Reduce(samples)
	if len(agg.Keywords) != 5 {
		t.Fatalf("expected 5 keywords, got %v", agg.Keywords)
	}
	if agg.Keywords[0] != "bullish" || agg.Keywords[1] != "momentum" {
		t.Fatalf("expected first-occurrence order, got %v", agg.Keywords)
	}
}

func TestClassifyThresholds(t *testing.T) {
	if Classify(0.31) != Bullish {
		t.Fatalf("expected bullish above 0.3")
	}
	if Classify(-0.31) != Bearish {
		t.Fatalf("expected bearish below -0.3")
	}
	if Classify(0.3) != Neutral || Classify(-0.3) != Neutral {
		t.Fatalf("expected neutral at the boundaries")
	}
}

type stubSource struct {
	snippets []string
	err      error
	wait     time.Duration
}

func (s *stubSource) FetchSnippets(ctx context.Context, _ token.Symbol) ([]string, error) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.snippets, nil
}

func TestAggregateHappyPath(t *testing.T) {
	agg := NewAggregator(&stubSource{snippets: []string{
		"ETH looking bullish! Institutional adoption is growing!",
	}})

	result := agg.Aggregate(context.Background(), token.ETH)
	if result.Classification != Bullish {
		t.Fatalf("expected bullish, got %s", result.Classification)
	}
	if result.SampleCount != 1 {
		t.Fatalf("expected 1 sample, got %d", result.SampleCount)
	}
}

func TestAggregateSourceErrorDegrades(t *testing.T) {
	agg := NewAggregator(&stubSource{err: errors.New("feed unavailable")})

	result := agg.Aggregate(context.Background(), token.ETH)
	if result.Classification != Neutral || result.Confidence != 0 {
		t.Fatalf("expected neutral degradation, got %+v", result)
	}
}

func TestAggregateTimeoutDegrades(t *testing.T) {
	agg := NewAggregator(&stubSource{wait: 100 * time.Millisecond, snippets: []string{"bullish"}},
		WithFetchTimeout(10*time.Millisecond))

	result := agg.Aggregate(context.Background(), token.ETH)
	if result.Classification != Neutral || result.SampleCount != 0 {
		t.Fatalf("expected timeout degradation, got %+v", result)
	}
}

func TestFixtureSourceReturnsCopies(t *testing.T) {
	source := NewFixtureSource(map[token.Symbol][]string{
		token.ETH: {"ETH trading sideways"},
	})
	first, err := source.FetchSnippets(context.Background(), token.ETH)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first[0] = "mutated"
	second, _ := source.FetchSnippets(context.Background(), token.ETH)
	if second[0] != "ETH trading sideways" {
		t.Fatalf("fixture snippets should not be mutable through results")
	}
}
