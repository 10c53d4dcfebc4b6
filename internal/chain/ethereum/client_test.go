package ethereum

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"AgentSwap-Chain/internal/chain"
)

func TestAgentABIPacksTradeTuple(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(agentABI))
	if err != nil {
		t.Fatalf("parse agent ABI: %v", err)
	}

	trade := chain.TradeData{
		TokenOut:     common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		AmountIn:     big.NewInt(1_000_000),
		MinAmountOut: big.NewInt(980_000),
		Deadline:     big.NewInt(1_900_000_000),
		Nonce:        big.NewInt(7),
	}
	data, err := parsed.Pack("executeSwap", trade, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("pack executeSwap: %v", err)
	}
	if want := parsed.Methods["executeSwap"].ID; !bytes.Equal(data[:4], want) {
		t.Fatalf("selector mismatch: got %x, want %x", data[:4], want)
	}
}

func TestAgentABICoversContractSurface(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(agentABI))
	if err != nil {
		t.Fatalf("parse agent ABI: %v", err)
	}
	for _, name := range []string{"executeSwap", "getPausedState", "getAuthorizedSigner", "getUserFunds", "getDomainSeparator"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("method %s missing from ABI", name)
		}
	}
}

type stubDataError struct {
	data any
}

func (e stubDataError) Error() string  { return "execution reverted" }
func (e stubDataError) ErrorData() any { return e.data }

func TestRevertReasonDecodesABIError(t *testing.T) {
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("build string type: %v", err)
	}
	encoded, err := abi.Arguments{{Type: stringTy}}.Pack("nonce already used")
	if err != nil {
		t.Fatalf("pack revert payload: %v", err)
	}
	payload := append(crypto.Keccak256([]byte("Error(string)"))[:4], encoded...)

	got := RevertReason(stubDataError{data: hexutil.Encode(payload)})
	if got != "nonce already used" {
		t.Fatalf("expected decoded reason, got %q", got)
	}
}

func TestRevertReasonFallsBackToErrorText(t *testing.T) {
	plain := errors.New("connection refused")
	if got := RevertReason(plain); got != "connection refused" {
		t.Fatalf("expected raw error text, got %q", got)
	}
}

func newInProcClient(t *testing.T) *Client {
	t.Helper()
	srv := gethrpc.NewServer()
	t.Cleanup(srv.Stop)
	rpcClient := gethrpc.DialInProc(srv)

	parsed, err := abi.JSON(strings.NewReader(agentABI))
	if err != nil {
		t.Fatalf("parse agent ABI: %v", err)
	}
	eth := ethclient.NewClient(rpcClient)
	contractAddr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	return &Client{
		name:         "local",
		rpcClient:    rpcClient,
		eth:          eth,
		chainID:      big.NewInt(31337),
		contractAddr: contractAddr,
		contractABI:  parsed,
		contract:     bind.NewBoundContract(contractAddr, parsed, eth, eth, eth),
	}
}

func TestCloseIsSafeDuringInFlightReads(t *testing.T) {
	c := newInProcClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = c.Paused(context.Background())
		}
	}()

	c.Close()
	c.Close()
	<-done

	if id, err := c.ChainID(context.Background()); err != nil || id.Cmp(big.NewInt(31337)) != 0 {
		t.Fatalf("chain id must stay readable after close: %v %v", id, err)
	}
	if _, err := c.Paused(context.Background()); err == nil {
		t.Fatal("contract reads after close must fail with an error")
	}
}
