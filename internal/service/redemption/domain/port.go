package domain

import (
	"context"
	"time"
)

// CreditResult 是账本入账的结果。
type CreditResult struct {
	NewBalance    int64
	SettlementRef string // 结算网络上的交易 digest，积分账本为空
	Duplicated    bool   // 幂等键已处理过
}

// PointsLedger 是积分 (mantou) 账本的出站端口。
type PointsLedger interface {
	Credit(ctx context.Context, address string, amount int64, idempotencyKey, note string) (*CreditResult, error)
}

// CurrencyLedger 是链上结算货币 (diamond) 账本的出站端口。
type CurrencyLedger interface {
	Credit(ctx context.Context, address string, amount int64, idempotencyKey, note string) (*CreditResult, error)
}

// MembershipTier 是会员等级。
type MembershipTier struct {
	ID        string
	Name      string
	Level     int
	Status    string
	SortOrder int
}

const (
	TierStatusActive   = "active"
	MemberStatusActive = "active"
)

// Member 是用户的会员资格。
type Member struct {
	ID          string
	UserAddress string
	TierID      string
	Status      string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MembershipGrant 是一次会员发放，RecordID 是幂等键。
type MembershipGrant struct {
	RecordID string
	Address  string
	TierID   string
	Days     int64
	Now      time.Time
}

// MembershipGrantResult 是发放后的会员状态。Duplicated 时 ExpiresAt 是第一次发放的结果
type MembershipGrantResult struct {
	Member     *Member
	ExpiresAt  time.Time
	Duplicated bool
}

// ExtendExpiry 未过期的会员在原到期时间上顺延，否则从 now 开始算。
func ExtendExpiry(current *time.Time, now time.Time, days int64) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

// MembershipStore 是会员系统的出站端口。查不到时返回 nil, nil。
// GrantMembership 必须把幂等检查、读取到期时间和续期放在同一个原子操作里，
// 同一地址的并发发放不能互相覆盖
type MembershipStore interface {
	GetTierByID(ctx context.Context, id string) (*MembershipTier, error)
	ListActiveTiers(ctx context.Context) ([]*MembershipTier, error)
	GetMemberByAddress(ctx context.Context, address string) (*Member, error)
	GrantMembership(ctx context.Context, grant MembershipGrant) (*MembershipGrantResult, error)
}

// Coupon 是优惠券系统中的券定义。
type Coupon struct {
	ID       string
	Code     string
	Title    string
	Status   string
	StartsAt *time.Time
	EndsAt   *time.Time
}

const CouponStatusActive = "active"

// CouponStore 是优惠券系统的出站端口。查不到时返回 nil, nil。
type CouponStore interface {
	GetByID(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
}

// RuleEngine 评估批次上的资格规则。
type RuleEngine interface {
	Evaluate(ctx context.Context, rule string, fact EligibilityFact) (bool, error)
}

// EligibilityFact 是资格规则能看到的事实。
type EligibilityFact struct {
	Address string
	Code    string
	BatchID uint64
	Now     time.Time
}

// EventPublisher 把兑换结果发布给分析系统，失败不影响主流程。
type EventPublisher interface {
	PublishRedemption(ctx context.Context, event *RedemptionEvent) error
}
