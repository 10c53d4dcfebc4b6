package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"AgentSwap-Chain/internal/chain"
)

// agentABI covers the delegation contract surface the daemon uses.
const agentABI = `[
  {"type":"function","name":"executeSwap","stateMutability":"nonpayable","inputs":[{"name":"trade","type":"tuple","components":[{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"nonce","type":"uint256"}]},{"name":"signature","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"getPausedState","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getAuthorizedSigner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getUserFunds","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDomainSeparator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
]`

// Config describes how to construct a client for an EVM compatible chain.
type Config struct {
	Name            string
	RPCURL          string
	ContractAddress string
	Notes           string
}

// Client implements chain.Client against a delegation contract on an
// EVM compatible network.
type Client struct {
	name         string
	notes        string
	rpcClient    *gethrpc.Client
	eth          *ethclient.Client
	chainID      *big.Int
	contractAddr common.Address
	contractABI  abi.ABI
	contract     *bind.BoundContract
	transactor   *bind.TransactOpts

	// mu serializes transaction submission so the account nonce
	// assigned by the node stays monotonic. Close reuses it to stay
	// idempotent.
	mu     sync.Mutex
	closed bool
}

// NewClient dials the configured RPC endpoint and binds the delegation
// contract. The key is used both for transaction submission and must
// match the contract's authorized signer for trades to be accepted.
func NewClient(ctx context.Context, cfg Config, key *ecdsa.PrivateKey) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	if key == nil {
		return nil, errors.New("未配置交易发送私钥")
	}
	contractAddr := strings.TrimSpace(cfg.ContractAddress)
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("非法的委托合约地址: %q", cfg.ContractAddress)
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(agentABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析合约 ABI 失败: %w", err)
	}

	transactor, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("构造交易签名器失败: %w", err)
	}

	addr := common.HexToAddress(contractAddr)
	return &Client{
		name:         cfg.Name,
		notes:        cfg.Notes,
		rpcClient:    rpcClient,
		eth:          eth,
		chainID:      chainID,
		contractAddr: addr,
		contractABI:  parsedABI,
		contract:     bind.NewBoundContract(addr, parsedABI, eth, eth, eth),
		transactor:   transactor,
	}, nil
}

// Close releases network connections held by the client. The fields
// stay populated so reads racing a shutdown fail with a closed-client
// error instead of a nil dereference.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.eth.Close()
	c.rpcClient.Close()
}

// ChainID reports the network identifier captured at dial time.
func (c *Client) ChainID(context.Context) (*big.Int, error) {
	if c == nil || c.chainID == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	return new(big.Int).Set(c.chainID), nil
}

// Paused reads the live pause flag from the contract.
func (c *Client) Paused(ctx context.Context) (bool, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPausedState"); err != nil {
		return false, fmt.Errorf("读取合约暂停状态失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// AuthorizedSigner reads the signer address the contract accepts.
func (c *Client) AuthorizedSigner(ctx context.Context) (common.Address, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAuthorizedSigner"); err != nil {
		return common.Address{}, fmt.Errorf("读取授权签名者失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// UserFunds reads the balance the contract custodies for a user.
func (c *Client) UserFunds(ctx context.Context, user common.Address) (*big.Int, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserFunds", user); err != nil {
		return nil, fmt.Errorf("读取用户托管资金失败: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// DomainSeparator reads the EIP-712 domain separator published by the
// contract, used at startup to cross-check signing configuration.
func (c *Client) DomainSeparator(ctx context.Context) ([32]byte, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getDomainSeparator"); err != nil {
		return [32]byte{}, fmt.Errorf("读取域分隔符失败: %w", err)
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// ExecuteSwap submits the signed trade and waits for it to mine.
// Transport errors surface as errors; a mined-but-reverted transaction
// comes back as a receipt with Reverted set and a best-effort reason.
func (c *Client) ExecuteSwap(ctx context.Context, trade chain.TradeData, signature []byte) (chain.SwapReceipt, error) {
	c.mu.Lock()
	opts := *c.transactor
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "executeSwap", trade, signature)
	c.mu.Unlock()
	if err != nil {
		return chain.SwapReceipt{}, fmt.Errorf("提交 executeSwap 交易失败: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return chain.SwapReceipt{}, fmt.Errorf("等待交易 %s 上链失败: %w", tx.Hash(), err)
	}

	result := chain.SwapReceipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Status == coretypes.ReceiptStatusFailed {
		result.Reverted = true
		result.RevertReason = c.replayForRevertReason(ctx, trade, signature, receipt.BlockNumber)
	}
	return result, nil
}

// replayForRevertReason re-executes the failed call at the block it
// mined in to recover the revert string. Failure to recover a reason is
// not an error; the receipt already proves the revert.
func (c *Client) replayForRevertReason(ctx context.Context, trade chain.TradeData, signature []byte, block *big.Int) string {
	data, err := c.contractABI.Pack("executeSwap", trade, signature)
	if err != nil {
		return ""
	}
	_, err = c.eth.CallContract(ctx, gethcore.CallMsg{
		From: c.transactor.From,
		To:   &c.contractAddr,
		Data: data,
	}, block)
	if err == nil {
		return ""
	}
	return RevertReason(err)
}

// RevertReason extracts the ABI-encoded revert string carried by an RPC
// error, falling back to the raw error text.
func RevertReason(err error) string {
	var dataErr interface{ ErrorData() any }
	if errors.As(err, &dataErr) {
		if encoded, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(encoded); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}

// FetchSnapshot gathers contract and network metadata for reporting.
func (c *Client) FetchSnapshot(ctx context.Context) (chain.Snapshot, error) {
	if c == nil || c.eth == nil {
		return chain.Snapshot{}, errors.New("未初始化的以太坊客户端")
	}

	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return chain.Snapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	paused, err := c.Paused(ctx)
	if err != nil {
		return chain.Snapshot{}, err
	}
	signer, err := c.AuthorizedSigner(ctx)
	if err != nil {
		return chain.Snapshot{}, err
	}

	return chain.Snapshot{
		ChainID:          "0x" + c.chainID.Text(16),
		BlockNumber:      fmt.Sprintf("0x%x", blockNumber),
		Paused:           paused,
		AuthorizedSigner: signer,
		Notes:            c.notes,
	}, nil
}

var _ chain.Client = (*Client)(nil)
