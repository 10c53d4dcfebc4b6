package signer

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/internal/plan"
	"AgentSwap-Chain/internal/token"
	"AgentSwap-Chain/pkg/logger"
)

const (
	CodeSigningFailure xerrors.Code = "SIGNING_FAILURE"
	CodeNonceRecovery  xerrors.Code = "NONCE_RECOVERY_FAILURE"
)

func init() {
	xerrors.Register(CodeSigningFailure, xerrors.Attributes{
		Message:   "authorization signing failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeNonceRecovery, xerrors.Attributes{
		Message:   "nonce recovery failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// Authorization 是提交给委托合约的已签名载荷。字段与链上
// TradeData 结构一一对应，金额均为最小单位整数。
type Authorization struct {
	TokenOut     common.Address `json:"token_out"`
	AmountIn     *big.Int       `json:"amount_in"`
	MinAmountOut *big.Int       `json:"min_amount_out"`
	Deadline     *big.Int       `json:"deadline"`
	Nonce        *big.Int       `json:"nonce"`
}

// 域与消息结构是与验证合约互操作的协议常量：
// 字段顺序参与摘要计算，任何调整都会破坏链上验签。
const (
	domainName      = "Agent"
	domainVersion   = "1"
	primaryTypeName = "TradeData"
)

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryTypeName: {
		{Name: "tokenOut", Type: "address"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "minAmountOut", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// tokenAddresses 是符号到链上地址的固定映射。
var tokenAddresses = map[token.Symbol]common.Address{
	token.ETH:  {},
	token.WETH: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	token.USDC: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	token.DAI:  common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
}

// defaultTokenOut 是未登记符号的回退地址（USDC）。这是显式策略：
// 枚举之外的符号不会让签名失败，而是落到稳定币。
var defaultTokenOut = tokenAddresses[token.USDC]

// tokenDecimals 记录各资产的最小单位精度，未登记的按 18 处理。
var tokenDecimals = map[token.Symbol]int32{
	token.USDC: 6,
}

const defaultDecimals int32 = 18

// TokenAddress 返回符号对应的链上地址，未登记时回退到默认地址。
func TokenAddress(symbol token.Symbol) common.Address {
	if addr, ok := tokenAddresses[symbol]; ok {
		return addr
	}
	return defaultTokenOut
}

// Credential 抽象签名凭据，既可以是本地私钥也可以是远程签名服务。
type Credential interface {
	// SignDigest 对 32 字节摘要产生 65 字节 [R || S || V] 签名，V 为 27/28。
	SignDigest(digest []byte) ([]byte, error)
	// Address 返回凭据对应的签名者地址。
	Address() common.Address
}

// LocalKey 用进程内私钥实现 Credential。
type LocalKey struct {
	key *ecdsa.PrivateKey
}

// NewLocalKey 从十六进制私钥字符串构造本地凭据。
func NewLocalKey(hexKey string) (*LocalKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名私钥不能为空")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析签名私钥失败")
	}
	return &LocalKey{key: key}, nil
}

// SignDigest 实现 Credential。
func (k *LocalKey) SignDigest(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, k.key)
	if err != nil {
		return nil, err
	}
	// 合约侧 ecrecover 期望 V 为 27/28。
	sig[64] += 27
	return sig, nil
}

// Address 实现 Credential。
func (k *LocalKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.key.PublicKey)
}

// Key 返回底层私钥，供链客户端构造交易签名器复用。
func (k *LocalKey) Key() *ecdsa.PrivateKey {
	return k.key
}

// Config 汇总签名器的构造参数。
type Config struct {
	// ChainID 在启动阶段从链上查询，绑定进 EIP-712 域。
	ChainID *big.Int
	// VerifyingContract 是委托合约地址。
	VerifyingContract common.Address
	// SlippageTolerance 是允许的最大滑点，(0, 1) 区间的小数。
	SlippageTolerance decimal.Decimal
	// ExecutionWindow 决定 deadline 相对当前时间的提前量。
	ExecutionWindow time.Duration
}

const (
	defaultSlippage  = "0.02"
	defaultExecution = time.Hour
)

// Signer 依据交易计划构造规范化的 EIP-712 授权并签名。
// 它独占 nonce 计数器，是管道中唯一持有可变共享状态的组件。
type Signer struct {
	cfg        Config
	credential Credential
	nonces     *NonceCounter
	now        func() time.Time
}

// Option 定义可选配置。
type Option func(*Signer)

// WithClock 替换时间源，主要用于测试 deadline 计算。
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// New 创建签名器。
func New(cfg Config, credential Credential, nonces *NonceCounter, opts ...Option) (*Signer, error) {
	if credential == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名凭据")
	}
	if nonces == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置 nonce 计数器")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "chain id 必须为正整数")
	}
	if cfg.SlippageTolerance.IsZero() {
		cfg.SlippageTolerance = decimal.RequireFromString(defaultSlippage)
	}
	if cfg.SlippageTolerance.IsNegative() || cfg.SlippageTolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "滑点容忍度必须位于 (0, 1) 区间")
	}
	if cfg.ExecutionWindow <= 0 {
		cfg.ExecutionWindow = defaultExecution
	}
	s := &Signer{cfg: cfg, credential: credential, nonces: nonces, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Address 返回签名者地址。
func (s *Signer) Address() common.Address {
	return s.credential.Address()
}

// LastNonce 返回最近一次分配的 nonce，用于状态上报。
func (s *Signer) LastNonce() uint64 {
	return s.nonces.Current()
}

// Sign 把交易计划转换为已签名授权：
//  1. 解析目标资产地址与最小单位金额；
//  2. 按滑点容忍度推导 minAmountOut（对任意正容忍度恒小于 amountIn）；
//  3. 设定 deadline = now + ExecutionWindow；
//  4. 原子分配 nonce（分配即消耗，之后任何失败都不回收）；
//  5. 对固定字段序的 EIP-712 摘要签名。
func (s *Signer) Sign(ctx context.Context, p plan.TradePlan) (Authorization, []byte, error) {
	if !p.Amount.IsPositive() {
		return Authorization{}, nil, xerrors.New(xerrors.CodeInvalidArgument, "授权金额必须为正数")
	}

	amountIn := toSmallestUnit(p.Amount, decimalsOf(p.Pair.Base))
	minAmountOut := applySlippage(amountIn, s.cfg.SlippageTolerance)
	deadline := s.now().Add(s.cfg.ExecutionWindow).Unix()

	nonce, err := s.nonces.Next(ctx)
	if err != nil {
		return Authorization{}, nil, err
	}

	auth := Authorization{
		TokenOut:     TokenAddress(p.Pair.Base),
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		Deadline:     big.NewInt(deadline),
		Nonce:        new(big.Int).SetUint64(nonce),
	}

	digest, err := s.Digest(auth)
	if err != nil {
		return Authorization{}, nil, xerrors.Wrap(CodeSigningFailure, err, "计算授权摘要失败",
			xerrors.WithMetadata("nonce", auth.Nonce.String()))
	}
	signature, err := s.credential.SignDigest(digest)
	if err != nil {
		return Authorization{}, nil, xerrors.Wrap(CodeSigningFailure, err, "签署授权失败",
			xerrors.WithMetadata("nonce", auth.Nonce.String()))
	}

	logger.Audit().Info("已签署交易授权",
		slog.String("pair", p.Pair.String()),
		slog.String("action", string(p.Action)),
		slog.String("token_out", auth.TokenOut.Hex()),
		slog.String("amount_in", auth.AmountIn.String()),
		slog.String("min_amount_out", auth.MinAmountOut.String()),
		slog.Int64("deadline", deadline),
		slog.Uint64("nonce", nonce),
		slog.String("signer", s.credential.Address().Hex()),
	)
	return auth, signature, nil
}

// TypedData 构造授权对应的 EIP-712 结构。
func (s *Signer) TypedData(auth Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: primaryTypeName,
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(s.cfg.ChainID),
			VerifyingContract: s.cfg.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"tokenOut":     auth.TokenOut.Hex(),
			"amountIn":     (*math.HexOrDecimal256)(auth.AmountIn),
			"minAmountOut": (*math.HexOrDecimal256)(auth.MinAmountOut),
			"deadline":     (*math.HexOrDecimal256)(auth.Deadline),
			"nonce":        (*math.HexOrDecimal256)(auth.Nonce),
		},
	}
}

// Digest 返回授权的签名摘要。同样的输入必然产生同样的摘要。
func (s *Signer) Digest(auth Authorization) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(s.TypedData(auth))
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// DomainSeparator 计算本地 EIP-712 域的哈希。启动时与合约公布的
// getDomainSeparator 对账，域不一致时所有签名都会被合约拒绝。
func (s *Signer) DomainSeparator() ([32]byte, error) {
	typed := s.TypedData(Authorization{})
	hash, err := typed.HashStruct("EIP712Domain", typed.Domain.Map())
	if err != nil {
		return [32]byte{}, err
	}
	var separator [32]byte
	copy(separator[:], hash)
	return separator, nil
}

func decimalsOf(symbol token.Symbol) int32 {
	if d, ok := tokenDecimals[symbol]; ok {
		return d
	}
	return defaultDecimals
}

func toSmallestUnit(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func applySlippage(amountIn *big.Int, tolerance decimal.Decimal) *big.Int {
	keep := decimal.NewFromInt(1).Sub(tolerance)
	return decimal.NewFromBigInt(amountIn, 0).Mul(keep).Truncate(0).BigInt()
}
