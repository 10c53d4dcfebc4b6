package main

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"AgentSwap-Chain/internal/chain"
	"AgentSwap-Chain/internal/signer"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeChainClient struct {
	snapshot chain.Snapshot
	funds    *big.Int
}

func (f *fakeChainClient) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (f *fakeChainClient) Paused(context.Context) (bool, error) {
	return f.snapshot.Paused, nil
}

func (f *fakeChainClient) AuthorizedSigner(context.Context) (common.Address, error) {
	return f.snapshot.AuthorizedSigner, nil
}

func (f *fakeChainClient) UserFunds(context.Context, common.Address) (*big.Int, error) {
	if f.funds == nil {
		return nil, errors.New("funds unavailable")
	}
	return new(big.Int).Set(f.funds), nil
}

func (f *fakeChainClient) DomainSeparator(context.Context) ([32]byte, error) {
	return [32]byte{}, nil
}

func (f *fakeChainClient) ExecuteSwap(context.Context, chain.TradeData, []byte) (chain.SwapReceipt, error) {
	return chain.SwapReceipt{}, errors.New("not supported")
}

func (f *fakeChainClient) FetchSnapshot(context.Context) (chain.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeChainClient) Close() {}

var _ chain.Client = (*fakeChainClient)(nil)

func newTestSigner(t *testing.T, lastNonce uint64) *signer.Signer {
	t.Helper()
	credential, err := signer.NewLocalKey(testSignerKey)
	if err != nil {
		t.Fatalf("load signer key: %v", err)
	}
	nonces, err := signer.NewNonceCounter(context.Background(), signer.NewMemoryNonceStore(lastNonce))
	if err != nil {
		t.Fatalf("build nonce counter: %v", err)
	}
	authSigner, err := signer.New(signer.Config{
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}, credential, nonces)
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	return authSigner
}

func TestDaemonStatusReportsContractState(t *testing.T) {
	authSigner := newTestSigner(t, 4)
	client := &fakeChainClient{
		snapshot: chain.Snapshot{
			ChainID:          "0x7a69",
			BlockNumber:      "0x10",
			Paused:           true,
			AuthorizedSigner: authSigner.Address(),
		},
		funds: big.NewInt(42_000),
	}

	status := &daemonStatus{
		client:       client,
		signer:       authSigner,
		defaultChain: "local",
		chains:       []string{"local"},
	}
	report, err := status.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if !report.Paused {
		t.Fatal("expected paused flag from the contract snapshot")
	}
	if report.AuthorizedSigner != authSigner.Address().Hex() {
		t.Fatalf("unexpected authorized signer: %s", report.AuthorizedSigner)
	}
	if !report.SignerAuthorized {
		t.Fatal("local signer matches the contract signer, expected authorized")
	}
	if report.SignerFunds != "42000" {
		t.Fatalf("unexpected signer funds: %s", report.SignerFunds)
	}
	if report.ChainID != "0x7a69" || report.BlockNumber != "0x10" {
		t.Fatalf("snapshot fields not carried through: %+v", report)
	}
	if report.LastNonce != 4 {
		t.Fatalf("unexpected last nonce: %d", report.LastNonce)
	}
	if report.DefaultChain != "local" || len(report.Chains) != 1 {
		t.Fatalf("unexpected chain metadata: %+v", report)
	}
}

func TestDaemonStatusFlagsForeignAuthorizedSigner(t *testing.T) {
	authSigner := newTestSigner(t, 0)
	client := &fakeChainClient{
		snapshot: chain.Snapshot{
			AuthorizedSigner: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		},
		funds: big.NewInt(0),
	}

	status := &daemonStatus{client: client, signer: authSigner}
	report, err := status.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.SignerAuthorized {
		t.Fatal("contract trusts a different signer, report must say so")
	}
	if report.SignerAddress == report.AuthorizedSigner {
		t.Fatalf("addresses should differ: %+v", report)
	}
}
