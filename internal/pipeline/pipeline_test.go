package pipeline

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"AgentSwap-Chain/internal/chain"
	"AgentSwap-Chain/internal/gate"
	"AgentSwap-Chain/internal/plan"
	"AgentSwap-Chain/internal/sentiment"
	"AgentSwap-Chain/internal/signer"
	"AgentSwap-Chain/internal/submit"
	"AgentSwap-Chain/internal/token"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type stubPauses struct {
	paused bool
	err    error
}

func (s *stubPauses) Paused(context.Context) (bool, error) { return s.paused, s.err }

type stubExecutor struct {
	receipt chain.SwapReceipt
	err     error
	calls   int
	trade   chain.TradeData
}

func (s *stubExecutor) ExecuteSwap(_ context.Context, trade chain.TradeData, _ []byte) (chain.SwapReceipt, error) {
	s.calls++
	s.trade = trade
	return s.receipt, s.err
}

type countingSigner struct {
	inner *signer.Signer
	calls int
}

func (c *countingSigner) Sign(ctx context.Context, p plan.TradePlan) (signer.Authorization, []byte, error) {
	c.calls++
	return c.inner.Sign(ctx, p)
}

func newPipeline(t *testing.T, snippets []string, pauses *stubPauses, executor *stubExecutor) (*Pipeline, *countingSigner) {
	t.Helper()

	resolver := token.NewResolver(token.DefaultSymbol)
	source := sentiment.NewFixtureSource(map[token.Symbol][]string{token.ETH: snippets})
	aggregator := sentiment.NewAggregator(source)
	synthesizer := plan.NewSynthesizer(plan.DefaultConfig())

	key, err := signer.NewLocalKey(testKeyHex)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	nonces, err := signer.NewNonceCounter(context.Background(), signer.NewMemoryNonceStore(0))
	if err != nil {
		t.Fatalf("init nonce counter: %v", err)
	}
	authSigner, err := signer.New(signer.Config{
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}, key, nonces)
	if err != nil {
		t.Fatalf("init signer: %v", err)
	}
	counting := &countingSigner{inner: authSigner}

	p, err := New(resolver, aggregator, synthesizer, gate.New(pauses), counting, submit.New(executor))
	if err != nil {
		t.Fatalf("init pipeline: %v", err)
	}
	return p, counting
}

func TestProcessTradingRequestExecutesBullishIntent(t *testing.T) {
	executor := &stubExecutor{receipt: chain.SwapReceipt{
		TxHash:      common.HexToHash("0xfeed"),
		BlockNumber: 99,
		GasUsed:     80000,
	}}
	snippets := []string{
		"ETH showing strong bullish momentum with institutional adoption",
		"Ethereum breakout confirmed, solid support holding",
	}
	p, counting := newPipeline(t, snippets, &stubPauses{}, executor)

	outcome := p.ProcessTradingRequest(context.Background(), "Analyze Ethereum and make a trade")
	if outcome.Kind != OutcomeExecuted {
		t.Fatalf("expected executed, got %s (%s)", outcome.Kind, outcome.Message)
	}
	if outcome.Symbol != token.ETH {
		t.Fatalf("expected ETH, got %s", outcome.Symbol)
	}
	if outcome.Plan.Action != plan.ActionBuy {
		t.Fatalf("expected buy plan, got %s", outcome.Plan.Action)
	}
	if executor.calls != 1 || counting.calls != 1 {
		t.Fatalf("expected exactly one sign and one submit, got %d/%d", counting.calls, executor.calls)
	}
	if executor.trade.MinAmountOut.Cmp(executor.trade.AmountIn) >= 0 {
		t.Fatalf("minAmountOut must sit below amountIn: %s vs %s", executor.trade.MinAmountOut, executor.trade.AmountIn)
	}
	if !strings.Contains(outcome.Message, "0x") {
		t.Fatalf("executed message should carry the tx hash, got %q", outcome.Message)
	}
}

func TestProcessTradingRequestHoldsOnWeakSentiment(t *testing.T) {
	executor := &stubExecutor{}
	p, counting := newPipeline(t, []string{"market trading sideways, consolidating in a tight range"}, &stubPauses{}, executor)

	outcome := p.ProcessTradingRequest(context.Background(), "should I trade ETH?")
	if outcome.Kind != OutcomeHold {
		t.Fatalf("expected hold, got %s (%s)", outcome.Kind, outcome.Message)
	}
	if counting.calls != 0 || executor.calls != 0 {
		t.Fatalf("hold must not sign or submit, got %d/%d", counting.calls, executor.calls)
	}
	if !outcome.Terminal() {
		t.Fatalf("hold is a terminal answer")
	}
}

func TestProcessTradingRequestSkipsWhenPaused(t *testing.T) {
	executor := &stubExecutor{}
	snippets := []string{"ETH bullish momentum, viral adoption exploding"}
	p, counting := newPipeline(t, snippets, &stubPauses{paused: true}, executor)

	outcome := p.ProcessTradingRequest(context.Background(), "buy some ethereum")
	if outcome.Kind != OutcomePaused {
		t.Fatalf("expected paused, got %s", outcome.Kind)
	}
	if counting.calls != 0 || executor.calls != 0 {
		t.Fatalf("paused contract must not sign or submit, got %d/%d", counting.calls, executor.calls)
	}
}

func TestProcessTradingRequestSurfacesRejection(t *testing.T) {
	executor := &stubExecutor{receipt: chain.SwapReceipt{
		TxHash:       common.HexToHash("0xdead"),
		Reverted:     true,
		RevertReason: "Invalid signature",
	}}
	snippets := []string{"ETH bullish breakout with institutional adoption"}
	p, _ := newPipeline(t, snippets, &stubPauses{}, executor)

	outcome := p.ProcessTradingRequest(context.Background(), "trade ethereum")
	if outcome.Kind != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome.Kind)
	}
	if !strings.Contains(outcome.Message, "Invalid signature") {
		t.Fatalf("rejection must carry the revert reason verbatim, got %q", outcome.Message)
	}
	if !outcome.Terminal() {
		t.Fatalf("a revert is a terminal answer")
	}
}

func TestProcessTradingRequestMarksTransportFailure(t *testing.T) {
	executor := &stubExecutor{err: errors.New("rpc timeout")}
	snippets := []string{"ETH bullish breakout with institutional adoption"}
	p, _ := newPipeline(t, snippets, &stubPauses{}, executor)

	outcome := p.ProcessTradingRequest(context.Background(), "trade ethereum")
	if outcome.Kind != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome.Kind)
	}
	if outcome.Err == nil {
		t.Fatalf("failed outcome must keep the underlying error")
	}
	if !strings.Contains(outcome.Message, "nonce") {
		t.Fatalf("failure message must mention the consumed nonce, got %q", outcome.Message)
	}
}

func TestProcessTradingRequestErrorsOnGateFault(t *testing.T) {
	executor := &stubExecutor{}
	snippets := []string{"ETH bullish breakout with institutional adoption"}
	p, counting := newPipeline(t, snippets, &stubPauses{err: errors.New("rpc down")}, executor)

	outcome := p.ProcessTradingRequest(context.Background(), "trade ethereum")
	if outcome.Kind != OutcomeErrored {
		t.Fatalf("expected errored, got %s", outcome.Kind)
	}
	if outcome.Terminal() {
		t.Fatalf("a pipeline fault is not a terminal answer")
	}
	if counting.calls != 0 {
		t.Fatalf("gate fault must prevent signing, got %d sign calls", counting.calls)
	}
}
