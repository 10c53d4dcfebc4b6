package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TradeData mirrors the on-chain TradeData tuple accepted by the
// delegation contract. Field order matches the ABI component order.
type TradeData struct {
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Deadline     *big.Int
	Nonce        *big.Int
}

// SwapReceipt captures the outcome of a mined executeSwap transaction.
type SwapReceipt struct {
	TxHash       common.Hash
	BlockNumber  uint64
	GasUsed      uint64
	Reverted     bool
	RevertReason string
}

// Snapshot summarizes contract and network state for status reporting.
type Snapshot struct {
	ChainID          string
	BlockNumber      string
	Paused           bool
	AuthorizedSigner common.Address
	Notes            string
}

// Client defines the contract surface higher layers depend on. Any
// network implementation must provide live reads: pause state and
// signer authority are never cached by the client.
type Client interface {
	// ChainID reports the network identifier bound into signed payloads.
	ChainID(ctx context.Context) (*big.Int, error)
	// Paused reads the contract pause flag.
	Paused(ctx context.Context) (bool, error)
	// AuthorizedSigner reads the signer address the contract accepts.
	AuthorizedSigner(ctx context.Context) (common.Address, error)
	// UserFunds reads the balance the contract holds for a user.
	UserFunds(ctx context.Context, user common.Address) (*big.Int, error)
	// DomainSeparator reads the EIP-712 domain separator the contract
	// verifies signatures against.
	DomainSeparator(ctx context.Context) ([32]byte, error)
	// ExecuteSwap submits a signed trade and waits for it to mine.
	// A mined-but-reverted transaction is reported through the receipt,
	// not the error.
	ExecuteSwap(ctx context.Context, trade TradeData, signature []byte) (SwapReceipt, error)
	// FetchSnapshot gathers metadata for the status endpoint.
	FetchSnapshot(ctx context.Context) (Snapshot, error)
	// Close releases network connections held by the client.
	Close()
}
