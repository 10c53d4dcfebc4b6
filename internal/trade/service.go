package trade

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AgentSwap-Chain/internal/errors"
	"AgentSwap-Chain/pkg/logger"
)

// SubmitRequest 描述一次交易意图的提交。
type SubmitRequest struct {
	// ID 允许调用方指定幂等键；为空时自动生成 uuid。
	ID string `json:"id,omitempty"`
	// Intent 是自由文本交易意图。
	Intent string `json:"intent"`
	// Metadata 是调用方附加的上下文信息。
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Service 负责交易请求的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造交易请求服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的交易请求并推送到队列。重复提交同一 ID 返回已有记录。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Request, error) {
	if strings.TrimSpace(req.Intent) == "" {
		return nil, xerrors.New(CodeRequestValidation, "交易意图不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易请求服务未初始化")
	}

	requestID := strings.TrimSpace(req.ID)
	if requestID != "" {
		existing, err := s.store.Get(ctx, requestID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrRequestNotFound) {
			return nil, err
		}
	} else {
		requestID = uuid.NewString()
	}

	record := &Request{
		ID:         requestID,
		Intent:     req.Intent,
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, record); err != nil {
		if stdErrors.Is(err, ErrRequestConflict) {
			existing, getErr := s.store.Get(ctx, requestID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrRequestNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, requestID); err != nil {
		logger.L().Error("交易请求入队失败", slog.Any("error", err), slog.String("trade_id", requestID))
		wrapped := xerrors.Wrap(CodeRequestPublish, err, "发布交易请求到队列失败")
		_ = s.store.MarkFailed(ctx, requestID, CodeRequestPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("交易请求入队成功",
		slog.String("trade_id", requestID),
		slog.String("intent", record.Intent),
		slog.Int("max_retries", record.MaxRetries),
	)
	return record, nil
}

// Get 返回指定交易请求的状态。
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易请求存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的请求列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Request, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易请求存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的请求统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (RequestStats, error) {
	if s.store == nil {
		return RequestStats{}, xerrors.New(xerrors.CodeInitializationFailure, "交易请求存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询请求状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Request, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if req.Status == StatusSucceeded || req.Status == StatusFailed {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
