package signer

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/plan"
	"AgentSwap-Chain/internal/token"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestSigner(t *testing.T, opts ...Option) *Signer {
	t.Helper()
	key, err := NewLocalKey(testKeyHex)
	if err != nil {
		t.Fatalf("load test key: %v", err)
	}
	nonces, err := NewNonceCounter(context.Background(), NewMemoryNonceStore(0))
	if err != nil {
		t.Fatalf("init nonce counter: %v", err)
	}
	s, err := New(Config{
		ChainID:           big.NewInt(11155111),
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}, key, nonces, opts...)
	if err != nil {
		t.Fatalf("init signer: %v", err)
	}
	return s
}

func buyPlan(amount string) plan.TradePlan {
	return plan.TradePlan{
		Action:      plan.ActionBuy,
		Pair:        plan.Pair{Base: token.ETH, Quote: token.USDC},
		Amount:      decimal.RequireFromString(amount),
		TargetPrice: decimal.NewFromInt(3150),
	}
}

func TestNonceCounterConcurrentAllocation(t *testing.T) {
	nonces, err := NewNonceCounter(context.Background(), NewMemoryNonceStore(100))
	if err != nil {
		t.Fatalf("init nonce counter: %v", err)
	}

	const workers = 64
	results := make(chan uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := nonces.Next(context.Background())
			if err != nil {
				t.Errorf("next nonce: %v", err)
				return
			}
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool, workers)
	for n := range results {
		if seen[n] {
			t.Fatalf("nonce %d allocated twice", n)
		}
		seen[n] = true
	}
	// 并发分配必须得到恰好 {101..164}，无重复无空洞。
	for n := uint64(101); n <= uint64(100+workers); n++ {
		if !seen[n] {
			t.Fatalf("nonce %d missing from allocation", n)
		}
	}
}

type failingNonceStore struct {
	fail bool
}

func (s *failingNonceStore) Load(context.Context) (uint64, error) { return 7, nil }

func (s *failingNonceStore) Save(context.Context, uint64) error {
	if s.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestNonceCounterSaveFailureLeavesNoGap(t *testing.T) {
	store := &failingNonceStore{fail: true}
	nonces, err := NewNonceCounter(context.Background(), store)
	if err != nil {
		t.Fatalf("init nonce counter: %v", err)
	}

	if _, err := nonces.Next(context.Background()); err == nil {
		t.Fatalf("expected storage failure")
	}
	if got := nonces.Current(); got != 7 {
		t.Fatalf("counter advanced despite save failure: %d", got)
	}

	store.fail = false
	n, err := nonces.Next(context.Background())
	if err != nil {
		t.Fatalf("next after recovery: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected nonce 8 after recovery, got %d", n)
	}
}

func TestSignAppliesSlippageTolerance(t *testing.T) {
	s := newTestSigner(t)

	auth, sig, err := s.Sign(context.Background(), buyPlan("0.072"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("expected V in {27, 28}, got %d", v)
	}

	wantIn, _ := new(big.Int).SetString("72000000000000000", 10)
	if auth.AmountIn.Cmp(wantIn) != 0 {
		t.Fatalf("expected amountIn %s, got %s", wantIn, auth.AmountIn)
	}
	// minAmountOut = amountIn × 0.98，恒小于 amountIn。
	wantMin, _ := new(big.Int).SetString("70560000000000000", 10)
	if auth.MinAmountOut.Cmp(wantMin) != 0 {
		t.Fatalf("expected minAmountOut %s, got %s", wantMin, auth.MinAmountOut)
	}
	if auth.MinAmountOut.Cmp(auth.AmountIn) >= 0 {
		t.Fatalf("minAmountOut %s must be below amountIn %s", auth.MinAmountOut, auth.AmountIn)
	}
}

func TestSignDeadlineUsesExecutionWindow(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, WithClock(func() time.Time { return fixed }))

	auth, _, err := s.Sign(context.Background(), buyPlan("0.1"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := fixed.Add(time.Hour).Unix()
	if auth.Deadline.Int64() != want {
		t.Fatalf("expected deadline %d, got %s", want, auth.Deadline)
	}
}

func TestSignConsumesNoncesSequentially(t *testing.T) {
	s := newTestSigner(t)

	first, _, err := s.Sign(context.Background(), buyPlan("0.05"))
	if err != nil {
		t.Fatalf("first sign: %v", err)
	}
	second, _, err := s.Sign(context.Background(), buyPlan("0.05"))
	if err != nil {
		t.Fatalf("second sign: %v", err)
	}
	if first.Nonce.Uint64() != 1 || second.Nonce.Uint64() != 2 {
		t.Fatalf("expected nonces 1 then 2, got %s and %s", first.Nonce, second.Nonce)
	}
	if s.LastNonce() != 2 {
		t.Fatalf("expected last nonce 2, got %d", s.LastNonce())
	}
}

func TestSignRejectsNonPositiveAmount(t *testing.T) {
	s := newTestSigner(t)

	_, _, err := s.Sign(context.Background(), plan.TradePlan{
		Action: plan.ActionBuy,
		Pair:   plan.Pair{Base: token.ETH, Quote: token.USDC},
		Amount: decimal.Zero,
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDigestDeterministic(t *testing.T) {
	s := newTestSigner(t)
	auth := Authorization{
		TokenOut:     TokenAddress(token.WETH),
		AmountIn:     big.NewInt(1_000_000),
		MinAmountOut: big.NewInt(980_000),
		Deadline:     big.NewInt(1_900_000_000),
		Nonce:        big.NewInt(42),
	}

	first, err := s.Digest(auth)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	second, err := s.Digest(auth)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("digest must be deterministic for identical payloads")
	}

	auth.Nonce = big.NewInt(43)
	changed, err := s.Digest(auth)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(first, changed) {
		t.Fatalf("nonce change must alter the digest")
	}
}

func TestSignatureRecoversToSignerAddress(t *testing.T) {
	s := newTestSigner(t)

	auth, sig, err := s.Sign(context.Background(), buyPlan("0.1"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	digest, err := s.Digest(auth)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	recovery := make([]byte, len(sig))
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(digest, recovery)
	if err != nil {
		t.Fatalf("recover public key: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != s.Address() {
		t.Fatalf("recovered %s, want signer %s", got.Hex(), s.Address().Hex())
	}
}

func TestDomainSeparatorBindsChainAndContract(t *testing.T) {
	s := newTestSigner(t)

	first, err := s.DomainSeparator()
	if err != nil {
		t.Fatalf("domain separator: %v", err)
	}
	if first == ([32]byte{}) {
		t.Fatalf("domain separator must not be zero")
	}
	again, err := s.DomainSeparator()
	if err != nil {
		t.Fatalf("domain separator: %v", err)
	}
	if first != again {
		t.Fatalf("domain separator must be deterministic")
	}

	key, err := NewLocalKey(testKeyHex)
	if err != nil {
		t.Fatalf("load test key: %v", err)
	}
	nonces, err := NewNonceCounter(context.Background(), NewMemoryNonceStore(0))
	if err != nil {
		t.Fatalf("init nonce counter: %v", err)
	}
	other, err := New(Config{
		ChainID:           big.NewInt(1),
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}, key, nonces)
	if err != nil {
		t.Fatalf("init signer: %v", err)
	}
	separator, err := other.DomainSeparator()
	if err != nil {
		t.Fatalf("domain separator: %v", err)
	}
	if separator == first {
		t.Fatalf("different chain ids must yield different separators")
	}
}

func TestTokenAddressFallsBackToDefault(t *testing.T) {
	if TokenAddress(token.BTC) != defaultTokenOut {
		t.Fatalf("unmapped symbols must fall back to the default token address")
	}
	if TokenAddress(token.DAI) == defaultTokenOut {
		t.Fatalf("mapped symbols must not use the fallback")
	}
}
