package token

import "strings"

// Symbol 表示系统支持的规范化资产符号。
type Symbol string

const (
	ETH  Symbol = "ETH"
	BTC  Symbol = "BTC"
	SOL  Symbol = "SOL"
	USDC Symbol = "USDC"
	DAI  Symbol = "DAI"
	WETH Symbol = "WETH"
)

// DefaultSymbol 是无法从文本中识别资产时的回退符号。
const DefaultSymbol = ETH

// IsValid 检查符号是否属于支持的枚举集合。
func IsValid(symbol Symbol) bool {
	switch symbol {
	case ETH, BTC, SOL, USDC, DAI, WETH:
		return true
	default:
		return false
	}
}

// alias 将文本别名映射到规范符号。列表按优先级排列：
// 全名在前、代码在后，避免 "ethereum" 先被 "eth" 短路。
type alias struct {
	match  string
	symbol Symbol
}

var aliases = []alias{
	{"ethereum", ETH},
	{"bitcoin", BTC},
	{"solana", SOL},
	{"usd coin", USDC},
	// WETH 必须先于 ETH 匹配，否则 "weth" 会命中 "eth"。
	{"weth", WETH},
	{"usdc", USDC},
	{"dai", DAI},
	{"eth", ETH},
	{"btc", BTC},
	{"sol", SOL},
}

// Resolver 将自由文本解析为规范符号。解析永不失败：
// 未命中任何别名时返回配置的默认符号。
type Resolver struct {
	fallback Symbol
}

// NewResolver 创建解析器。fallback 非法时使用 DefaultSymbol。
func NewResolver(fallback Symbol) *Resolver {
	if !IsValid(fallback) {
		fallback = DefaultSymbol
	}
	return &Resolver{fallback: fallback}
}

// Resolve 在输入文本中按优先级查找资产别名，首个命中即返回。
func (r *Resolver) Resolve(freeText string) Symbol {
	text := strings.ToLower(freeText)
	for _, a := range aliases {
		if strings.Contains(text, a.match) {
			return a.symbol
		}
	}
	return r.fallback
}
