package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"promocode/internal/pkg/logger"
	"promocode/internal/service/redemption/domain"
)

const creditNote = "promo code redemption"

var errLedgerNotConfigured = errors.New("ledger is not configured")

// RewardApplicator 把已解析的奖励发放到对应的外部系统。
// 每种发放都以兑换记录 ID 作为幂等键，同一条记录重复发放不会重复到账
type RewardApplicator struct {
	points     domain.PointsLedger
	currency   domain.CurrencyLedger
	membership domain.MembershipStore
	coupons    domain.CouponStore
	tracer     trace.Tracer
	now        func() time.Time
}

func NewRewardApplicator(
	points domain.PointsLedger,
	currency domain.CurrencyLedger,
	membership domain.MembershipStore,
	coupons domain.CouponStore,
	tracer trace.Tracer,
) *RewardApplicator {
	return &RewardApplicator{
		points:     points,
		currency:   currency,
		membership: membership,
		coupons:    coupons,
		tracer:     tracer,
		now:        time.Now,
	}
}

// Apply 发放奖励，返回摘要和外部系统的不透明元数据
func (a *RewardApplicator) Apply(ctx context.Context, reward domain.Reward, address, recordID string) (summary *domain.RewardSummary, detail map[string]any, err error) {
	ctx, span := a.tracer.Start(ctx, "applicator.Apply")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("reward.type", string(reward.Kind())),
		attribute.String("record.id", recordID),
	)

	switch r := reward.(type) {
	case domain.MantouReward:
		return a.applyPoints(ctx, r, address, recordID)
	case domain.DiamondReward:
		return a.applyCurrency(ctx, r, address, recordID)
	case domain.VIPReward:
		return a.applyVIP(ctx, r, address, recordID)
	case domain.CouponReward:
		return a.applyCoupon(ctx, r)
	case domain.CustomReward:
		return &domain.RewardSummary{Type: domain.RewardCustom, Message: r.Message}, nil, nil
	default:
		return nil, nil, domain.ErrRewardTypeInvalid
	}
}

func (a *RewardApplicator) applyPoints(ctx context.Context, r domain.MantouReward, address, recordID string) (*domain.RewardSummary, map[string]any, error) {
	if a.points == nil {
		return nil, nil, errLedgerNotConfigured
	}
	res, err := a.points.Credit(ctx, address, r.Amount, recordID, creditNote)
	if err != nil {
		return nil, nil, err
	}
	if res.Duplicated {
		logger.Ctx(ctx).Info().Str("record_id", recordID).Msg("points credit already applied")
	}
	balance := res.NewBalance
	summary := &domain.RewardSummary{Type: domain.RewardMantou, Amount: r.Amount, Balance: &balance}
	return summary, map[string]any{"balance": balance, "duplicated": res.Duplicated}, nil
}

func (a *RewardApplicator) applyCurrency(ctx context.Context, r domain.DiamondReward, address, recordID string) (*domain.RewardSummary, map[string]any, error) {
	if a.currency == nil {
		return nil, nil, errLedgerNotConfigured
	}
	res, err := a.currency.Credit(ctx, address, r.Amount, recordID, creditNote)
	if err != nil {
		return nil, nil, err
	}
	balance := res.NewBalance
	summary := &domain.RewardSummary{
		Type:    domain.RewardDiamond,
		Amount:  r.Amount,
		Balance: &balance,
		Digest:  res.SettlementRef,
	}
	return summary, map[string]any{"balance": balance, "digest": res.SettlementRef, "duplicated": res.Duplicated}, nil
}

func (a *RewardApplicator) applyVIP(ctx context.Context, r domain.VIPReward, address, recordID string) (*domain.RewardSummary, map[string]any, error) {
	tier, err := a.resolveTier(ctx, r.TierID)
	if err != nil {
		return nil, nil, err
	}

	summary := &domain.RewardSummary{
		Type:     domain.RewardVIP,
		Days:     r.Days,
		TierID:   tier.ID,
		TierName: tier.Name,
	}

	// 续期和幂等检查都在存储层的一个事务里完成，同一地址并发发放不会丢天数
	res, err := a.membership.GrantMembership(ctx, domain.MembershipGrant{
		RecordID: recordID,
		Address:  address,
		TierID:   tier.ID,
		Days:     r.Days,
		Now:      a.now(),
	})
	if err != nil {
		return nil, nil, err
	}
	expiresAt := res.ExpiresAt
	summary.ExpiresAt = &expiresAt
	detail := map[string]any{"memberId": res.Member.ID}
	if res.Duplicated {
		detail["duplicated"] = true
	}
	return summary, detail, nil
}

// resolveTier 指定了 tierId 就必须存在，否则取排序最靠前的可用等级
func (a *RewardApplicator) resolveTier(ctx context.Context, tierID string) (*domain.MembershipTier, error) {
	if tierID != "" {
		tier, err := a.membership.GetTierByID(ctx, tierID)
		if err != nil {
			return nil, err
		}
		if tier == nil {
			return nil, domain.ErrVIPTierMissing
		}
		return tier, nil
	}
	tiers, err := a.membership.ListActiveTiers(ctx)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, domain.ErrVIPTierMissing
	}
	return tiers[0], nil
}

// applyCoupon 只校验券是否可用并返回券信息，券本身由优惠券系统在用户领取时处理
func (a *RewardApplicator) applyCoupon(ctx context.Context, r domain.CouponReward) (*domain.RewardSummary, map[string]any, error) {
	var (
		coupon *domain.Coupon
		err    error
	)
	if r.CouponID != "" {
		if coupon, err = a.coupons.GetByID(ctx, r.CouponID); err != nil {
			return nil, nil, err
		}
	}
	if coupon == nil && r.CouponCode != "" {
		if coupon, err = a.coupons.GetByCode(ctx, r.CouponCode); err != nil {
			return nil, nil, err
		}
	}
	if coupon == nil {
		return nil, nil, domain.ErrCouponNotFound
	}

	now := a.now()
	switch {
	case coupon.Status != domain.CouponStatusActive:
		return nil, nil, domain.ErrCouponUnavailable
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return nil, nil, domain.ErrCouponNotStarted
	case coupon.EndsAt != nil && !now.Before(*coupon.EndsAt):
		return nil, nil, domain.ErrCouponExpired
	}

	return &domain.RewardSummary{
		Type:        domain.RewardCoupon,
		CouponID:    coupon.ID,
		CouponCode:  coupon.Code,
		CouponTitle: coupon.Title,
		CouponEnds:  coupon.EndsAt,
	}, nil, nil
}
