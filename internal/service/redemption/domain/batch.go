package domain

import "time"

// Batch 是一组共享同一奖励定义的兑换码。
// 只会被状态下线，不会被删除。
type Batch struct {
	ID            uint64
	Title         string
	Description   string
	RewardType    RewardType
	RewardPayload map[string]any
	Status        Status
	MaxRedeem     *int64 // 批次总兑换上限，nil 表示不限
	UsedCount     int64

	// EligibilityRule 是可选的 CEL 表达式，为空表示不限制
	EligibilityRule string

	StartsAt  *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCap 批次是否设置了总量上限。
func (b *Batch) HasCap() bool {
	return b != nil && b.MaxRedeem != nil
}

// UsedUp 批次总量是否已耗尽。
func (b *Batch) UsedUp() bool {
	return b.HasCap() && b.UsedCount >= *b.MaxRedeem
}
