package domain

import (
	"context"
	"time"
)

// Reservation 是预占步骤的输入：一次事务里完成限购检查、批次 / 兑换码计数的条件自增和记录创建。
type Reservation struct {
	Code   *Code
	Record *Record
	Now    time.Time
}

// Release 是发放失败后的补偿：回退计数并恢复状态。
type Release struct {
	CodeID       uint64
	CodeRestore  Status
	BatchID      *uint64 // 为空表示预占时没有动批次计数
	BatchRestore Status
	ReleasedAt   time.Time
}

// RedemptionRepository 定义了批次、兑换码和兑换记录的持久化接口。
// 所有对共享计数 (used_count / status) 的修改都必须是带条件的更新。
type RedemptionRepository interface {
	// FindCodeByCode 按规范化后的码查找，并预加载批次；不存在返回 ErrInvalidCode。
	FindCodeByCode(ctx context.Context, code string) (*Code, error)
	FindCodeByID(ctx context.Context, id uint64) (*Code, error)

	FindRecord(ctx context.Context, id string) (*Record, error)
	// FindSuccessRecord 查找 (code, user) 的成功记录，没有时返回 nil, nil。
	FindSuccessRecord(ctx context.Context, codeID uint64, address string) (*Record, error)

	// MarkCodeExpired / MarkBatchExpired 只收紧状态 (active|exhausted -> expired)，可以在事务外执行。
	MarkCodeExpired(ctx context.Context, codeID uint64) error
	MarkBatchExpired(ctx context.Context, batchID uint64) error
	// MarkCodeExhausted / MarkBatchExhausted 仅在 used_count 达到上限时把 active 翻成 exhausted。
	MarkCodeExhausted(ctx context.Context, codeID uint64) error
	MarkBatchExhausted(ctx context.Context, batchID uint64) error

	// Reserve 原子地完成预占；失败时返回 ErrUserLimitReached / ErrBatchUsedUp / ErrCodeUsedUp。
	Reserve(ctx context.Context, r Reservation) error
	// CompleteRecord / FailRecord 只对 pending 记录生效，返回是否真的发生了状态迁移。
	CompleteRecord(ctx context.Context, id string, meta RecordMeta) (bool, error)
	FailRecord(ctx context.Context, id string, meta RecordMeta) (bool, error)
	Release(ctx context.Context, r Release) error

	// ListStalePending 列出 updated_at 早于 before 的 pending 记录。
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Record, error)
	// ClaimStale 用条件更新认领一条陈旧记录 (attempts+1, updated_at=now)，返回是否认领成功。
	ClaimStale(ctx context.Context, id string, before, now time.Time) (bool, error)

	// 以下由管理操作使用
	CreateBatch(ctx context.Context, batch *Batch) error
	CreateCode(ctx context.Context, code *Code) error
	SetBatchStatus(ctx context.Context, batchID uint64, status Status) error
	SetCodeStatus(ctx context.Context, codeID uint64, status Status) error
}
