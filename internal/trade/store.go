package trade

import (
	"context"

	xerrors "AgentSwap-Chain/internal/errors"
)

// Store 抽象了交易请求状态的持久化接口。
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Claim(ctx context.Context, id string) (*Request, error)
	MarkSucceeded(ctx context.Context, id string, outcome Outcome) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Request, error)
	Stats(ctx context.Context, opts ListOptions) (RequestStats, error)
	Close() error
}
