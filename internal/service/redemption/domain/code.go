package domain

import "time"

const (
	DefaultMaxRedeem        int64 = 1
	DefaultMaxRedeemPerUser int64 = 1
)

// Code 是用户实际提交的兑换码，可以属于某个批次，也可以是独立码。
type Code struct {
	ID               uint64
	Code             string
	BatchID          *uint64
	Batch            *Batch
	RewardType       RewardType // 为空时继承批次
	RewardPayload    map[string]any
	Status           Status
	MaxRedeem        int64
	MaxRedeemPerUser int64
	UsedCount        int64
	StartsAt         *time.Time
	ExpiresAt        *time.Time
	LastRedeemedAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveReward 返回实际生效的奖励定义：码自己的优先，否则用批次的。
func (c *Code) EffectiveReward() (RewardType, map[string]any) {
	if c.RewardType != "" {
		return c.RewardType, c.RewardPayload
	}
	if c.Batch != nil {
		return c.Batch.RewardType, c.Batch.RewardPayload
	}
	return "", nil
}

// EffectiveWindow 返回生效的开始 / 过期时间。
// fromBatch 表示过期时间来自批次，此时过期也需要回写批次状态。
func (c *Code) EffectiveWindow() (startsAt, expiresAt *time.Time, fromBatch bool) {
	startsAt = c.StartsAt
	if startsAt == nil && c.Batch != nil {
		startsAt = c.Batch.StartsAt
	}
	expiresAt = c.ExpiresAt
	if expiresAt == nil && c.Batch != nil {
		expiresAt = c.Batch.ExpiresAt
		fromBatch = expiresAt != nil
	}
	return startsAt, expiresAt, fromBatch
}

// ExpiredAt 判断在 now 时刻是否已经过期。
func (c *Code) ExpiredAt(now time.Time) bool {
	_, expiresAt, _ := c.EffectiveWindow()
	return expiresAt != nil && !now.Before(*expiresAt)
}

// UsedUp 兑换码总次数是否已耗尽。
func (c *Code) UsedUp() bool {
	return c.UsedCount >= c.MaxRedeem
}

// PerUserLimit 返回单用户兑换上限，未设置时为 1。
func (c *Code) PerUserLimit() int64 {
	if c.MaxRedeemPerUser <= 0 {
		return DefaultMaxRedeemPerUser
	}
	return c.MaxRedeemPerUser
}
