package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"AgentSwap-Chain/internal/signer"
)

const nonceSchema = `
CREATE TABLE IF NOT EXISTS signer_nonces (
    signer     VARCHAR(64) NOT NULL,
    nonce      BIGINT UNSIGNED NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    PRIMARY KEY (signer)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// SQLNonceStore 把签名 nonce 的高水位线持久化到 MySQL。
// 每个签名地址一行，写入只允许单调推进。
type SQLNonceStore struct {
	db     *sql.DB
	signer string
}

// NewSQLNonceStore 建立连接并确保表结构存在。signerAddr 区分
// 同一数据库中不同签名者的水位线。
func NewSQLNonceStore(ctx context.Context, cfg Config, signerAddr string) (*SQLNonceStore, error) {
	if strings.TrimSpace(signerAddr) == "" {
		return nil, fmt.Errorf("签名地址不能为空")
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, nonceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化 nonce 表失败: %w", err)
	}
	return &SQLNonceStore{db: db, signer: strings.ToLower(signerAddr)}, nil
}

// Load 实现 signer.NonceStore。从未写入时返回 0。
func (s *SQLNonceStore) Load(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT nonce FROM signer_nonces WHERE signer = ?", s.signer,
	).Scan(&nonce)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取 nonce 高水位线失败: %w", err)
	}
	return nonce, nil
}

// Save 实现 signer.NonceStore。GREATEST 保证并发写入不会回退水位线。
func (s *SQLNonceStore) Save(ctx context.Context, nonce uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO signer_nonces (signer, nonce) VALUES (?, ?)
ON DUPLICATE KEY UPDATE nonce = GREATEST(nonce, VALUES(nonce))`,
		s.signer, nonce,
	)
	if err != nil {
		return fmt.Errorf("持久化 nonce 高水位线失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接。
func (s *SQLNonceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FileNonceStore 以本地文件保存高水位线，供未配置 MySQL 的部署使用。
// 写入通过临时文件加重命名保证原子性。
type FileNonceStore struct {
	mu   sync.Mutex
	path string
}

// NewFileNonceStore 在 dataDir 下为指定签名地址创建文件存储。
func NewFileNonceStore(dataDir, signerAddr string) (*FileNonceStore, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("数据目录不能为空")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	name := "nonce-" + strings.ToLower(strings.TrimPrefix(signerAddr, "0x")) + ".hwm"
	return &FileNonceStore{path: filepath.Join(dataDir, name)}, nil
}

// Load 实现 signer.NonceStore。
func (s *FileNonceStore) Load(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if stdErrors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取 nonce 文件失败: %w", err)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 nonce 文件失败: %w", err)
	}
	return value, nil
}

// Save 实现 signer.NonceStore。低于已有水位线的写入被忽略。
func (s *FileNonceStore) Save(ctx context.Context, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, err := os.ReadFile(s.path); err == nil {
		if current, parseErr := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64); parseErr == nil && current >= nonce {
			return nil
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(nonce, 10)), 0o644); err != nil {
		return fmt.Errorf("写入 nonce 临时文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("替换 nonce 文件失败: %w", err)
	}
	return nil
}

var (
	_ signer.NonceStore = (*SQLNonceStore)(nil)
	_ signer.NonceStore = (*FileNonceStore)(nil)
)
