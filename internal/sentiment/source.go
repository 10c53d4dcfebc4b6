package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"AgentSwap-Chain/internal/token"
)

// Source 抽象情绪数据源：为指定资产返回若干原始文本片段。
// 返回空切片是正常结果，管道不会因此报错。
type Source interface {
	FetchSnippets(ctx context.Context, symbol token.Symbol) ([]string, error)
}

// FixtureSource 从 JSON 文件（或内置样例）提供静态文本片段，
// 主要用于演示与测试环境。
type FixtureSource struct {
	snippets map[token.Symbol][]string
}

// NewFixtureSource 使用给定的符号到片段映射创建静态数据源。
func NewFixtureSource(snippets map[token.Symbol][]string) *FixtureSource {
	if snippets == nil {
		snippets = map[token.Symbol][]string{}
	}
	return &FixtureSource{snippets: snippets}
}

// LoadFixtureSource 从 JSON 文件加载静态片段，文件结构为
// {"ETH": ["...", "..."], "BTC": [...]}。
func LoadFixtureSource(path string) (*FixtureSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("情绪样本文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析情绪样本路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取情绪样本文件失败: %w", err)
	}
	defer file.Close()

	var raw map[string][]string
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("解析情绪样本文件失败: %w", err)
	}

	snippets := make(map[token.Symbol][]string, len(raw))
	for symbol, texts := range raw {
		snippets[token.Symbol(strings.ToUpper(symbol))] = texts
	}
	return NewFixtureSource(snippets), nil
}

// FetchSnippets 返回该符号的全部静态片段。
func (s *FixtureSource) FetchSnippets(_ context.Context, symbol token.Symbol) ([]string, error) {
	texts := s.snippets[symbol]
	out := make([]string, len(texts))
	copy(out, texts)
	return out, nil
}

// HTTPSourceConfig 描述外部情绪接口的访问参数。
type HTTPSourceConfig struct {
	Endpoint string
	APIKey   string
	Limit    int
	Timeout  time.Duration
}

// HTTPSource 通过 REST 接口拉取文本片段。接口约定：
// GET {endpoint}?symbol=ETH&limit=N 返回 {"snippets": ["...", ...]}。
type HTTPSource struct {
	client *resty.Client
	limit  int
}

// NewHTTPSource 创建 HTTP 情绪数据源。
func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("情绪接口地址不能为空")
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(timeout).
		SetRetryCount(2)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPSource{client: client, limit: limit}, nil
}

type snippetsResponse struct {
	Snippets []string `json:"snippets"`
}

// FetchSnippets 调用远端接口获取片段。
func (s *HTTPSource) FetchSnippets(ctx context.Context, symbol token.Symbol) ([]string, error) {
	var payload snippetsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", string(symbol)).
		SetQueryParam("limit", fmt.Sprintf("%d", s.limit)).
		SetResult(&payload).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("拉取情绪片段失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("情绪接口返回错误状态: %s", resp.Status())
	}
	return payload.Snippets, nil
}
