package trade

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AgentSwap-Chain/internal/errors"
)

// MySQLStore 使用 MySQL 记录交易请求状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS trade_requests (
        id VARCHAR(64) PRIMARY KEY,
        intent TEXT NOT NULL,
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        outcome_kind VARCHAR(32) DEFAULT '',
        outcome_message TEXT,
        outcome_symbol VARCHAR(16) DEFAULT '',
        outcome_action VARCHAR(16) DEFAULT '',
        outcome_amount VARCHAR(64) DEFAULT '',
        outcome_tx_hash VARCHAR(66) DEFAULT '',
        outcome_block VARCHAR(66) DEFAULT '',
        outcome_revert_reason TEXT,
        outcome_nonce VARCHAR(32) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_trade_status (status),
        INDEX idx_trade_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 trade_requests 表失败")
	}
	return nil
}

// Create 插入新的交易请求记录。
func (s *MySQLStore) Create(ctx context.Context, req *Request) error {
	if req == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if strings.TrimSpace(req.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求 ID 不能为空")
	}

	now := time.Now().Unix()
	req.CreatedAt = now
	req.UpdatedAt = now

	metadataValue, err := marshalMetadata(req.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码请求 metadata 失败")
	}

	const stmt = `INSERT INTO trade_requests
        (id, intent, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		req.ID,
		req.Intent,
		metadataValue,
		req.Status,
		req.Attempts,
		req.MaxRetries,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrRequestConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入交易请求失败")
	}
	return nil
}

const selectColumns = `id, intent, metadata, status, attempts, max_retries, last_error, error_code,
        outcome_kind, outcome_message, outcome_symbol, outcome_action, outcome_amount,
        outcome_tx_hash, outcome_block, outcome_revert_reason, outcome_nonce, created_at, updated_at`

// Get 查询指定交易请求。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM trade_requests WHERE id = ?`, id)

	req, err := scanRequest(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易请求失败")
	}
	return req, nil
}

// Claim 将请求标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Request, error) {
	const updateStmt = `UPDATE trade_requests SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新请求状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		req, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch req.Status {
		case StatusSucceeded:
			return req, ErrRequestCompleted
		case StatusRunning:
			return req, ErrRequestConflict
		default:
			if req.Attempts >= req.MaxRetries {
				return req, ErrRequestExhausted
			}
			return req, ErrRequestConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将请求标记为成功并写入终态结果。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, outcome Outcome) error {
	const stmt = `UPDATE trade_requests SET status = ?, outcome_kind = ?, outcome_message = ?, outcome_symbol = ?,
        outcome_action = ?, outcome_amount = ?, outcome_tx_hash = ?, outcome_block = ?, outcome_revert_reason = ?,
        outcome_nonce = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		outcome.Kind,
		outcome.Message,
		outcome.Symbol,
		outcome.Action,
		outcome.Amount,
		outcome.TxHash,
		outcome.BlockNumber,
		outcome.RevertReason,
		outcome.Nonce,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记请求成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// MarkFailed 将请求标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE trade_requests SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记请求失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// List 返回最近的交易请求。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Request, error) {
	opts.applyDefaults()

	query := `SELECT ` + selectColumns + ` FROM trade_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求列表失败")
	}
	defer rows.Close()

	requests := make([]*Request, 0, opts.Limit)
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析请求记录失败")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历请求失败")
	}
	return requests, nil
}

// Stats 返回符合过滤条件的请求聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (RequestStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM trade_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats RequestStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return RequestStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRequest(scan func(dest ...any) error) (*Request, error) {
	var req Request
	var outcome Outcome
	var metadata sql.NullString
	if err := scan(
		&req.ID,
		&req.Intent,
		&metadata,
		&req.Status,
		&req.Attempts,
		&req.MaxRetries,
		&req.LastError,
		&req.ErrorCode,
		&outcome.Kind,
		&outcome.Message,
		&outcome.Symbol,
		&outcome.Action,
		&outcome.Amount,
		&outcome.TxHash,
		&outcome.BlockNumber,
		&outcome.RevertReason,
		&outcome.Nonce,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	decodedMetadata, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	req.Metadata = decodedMetadata

	if outcome.Kind != "" || outcome.Message != "" || outcome.TxHash != "" || outcome.RevertReason != "" {
		req.Outcome = &outcome
	}
	return &req, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasOutcome != nil {
		if *opts.HasOutcome {
			conditions = append(conditions, "(outcome_kind <> '' OR outcome_message <> '' OR outcome_tx_hash <> '' OR outcome_revert_reason <> '')")
		} else {
			conditions = append(conditions, "(outcome_kind = '' AND (outcome_message IS NULL OR outcome_message = '') AND outcome_tx_hash = '' AND (outcome_revert_reason IS NULL OR outcome_revert_reason = ''))")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR intent LIKE ? OR metadata LIKE ? OR last_error LIKE ? OR outcome_kind LIKE ? OR outcome_message LIKE ? OR outcome_symbol LIKE ? OR outcome_action LIKE ? OR outcome_tx_hash LIKE ? OR outcome_revert_reason LIKE ?)")
		for i := 0; i < 10; i++ {
			args = append(args, pattern)
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
