package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"promocode/internal/service/redemption/domain"
	"promocode/internal/service/redemption/infrastructure"
)

func newApplicatorWithStores(t *testing.T) (*RewardApplicator, *infrastructure.GormMembershipStore, *fakeLedger, *fakeLedger) {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.Create(&[]infrastructure.MembershipTierModel{
		{ID: "gold", Name: "Gold", Level: 2, Status: "active", SortOrder: 2},
		{ID: "silver", Name: "Silver", Level: 1, Status: "active", SortOrder: 1},
		{ID: "legacy", Name: "Legacy", Level: 0, Status: "retired", SortOrder: 0},
	}).Error)

	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	require.NoError(t, db.Create(&[]infrastructure.CouponModel{
		{ID: "c-live", Code: "LIVE10", Title: "10% off", Status: "active", EndsAt: &future},
		{ID: "c-off", Code: "OFF", Title: "off", Status: "disabled"},
		{ID: "c-soon", Code: "SOON", Title: "soon", Status: "active", StartsAt: &future},
		{ID: "c-old", Code: "OLD", Title: "old", Status: "active", EndsAt: &past},
	}).Error)

	membership := infrastructure.NewGormMembershipStore(db)
	points, currency := newFakeLedger(), newFakeLedger()
	a := NewRewardApplicator(points, currency, membership, infrastructure.NewGormCouponStore(db), otel.Tracer("test"))
	return a, membership, points, currency
}

func TestRewardApplicator_Ledgers(t *testing.T) {
	a, _, points, currency := newApplicatorWithStores(t)
	ctx := context.Background()

	summary, detail, err := a.Apply(ctx, domain.MantouReward{Amount: 10}, "0xa", "rec-1")
	require.NoError(t, err)
	require.Equal(t, domain.RewardMantou, summary.Type)
	require.EqualValues(t, 10, *summary.Balance)
	require.Equal(t, false, detail["duplicated"])

	// 同一记录重放不会重复入账
	summary, _, err = a.Apply(ctx, domain.MantouReward{Amount: 10}, "0xa", "rec-1")
	require.NoError(t, err)
	require.EqualValues(t, 10, *summary.Balance)
	require.EqualValues(t, 10, points.balances["0xa"])

	summary, detail, err = a.Apply(ctx, domain.DiamondReward{Amount: 5}, "0xa", "rec-2")
	require.NoError(t, err)
	require.Equal(t, "0xdigest-rec-2", summary.Digest)
	require.Equal(t, "0xdigest-rec-2", detail["digest"])
	require.EqualValues(t, 5, currency.balances["0xa"])

	custom, _, err := a.Apply(ctx, domain.CustomReward{Message: "hello"}, "0xa", "rec-3")
	require.NoError(t, err)
	require.Equal(t, "hello", custom.Message)
}

func TestRewardApplicator_VIP(t *testing.T) {
	a, membership, _, _ := newApplicatorWithStores(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	// 未指定等级时取排序最靠前的可用等级
	summary, _, err := a.Apply(ctx, domain.VIPReward{Days: 30}, "0xa", "rec-1")
	require.NoError(t, err)
	require.Equal(t, "silver", summary.TierID)
	require.True(t, summary.ExpiresAt.Equal(now.Add(30*24*time.Hour)))

	// 未过期的会员在原到期时间上顺延
	summary, _, err = a.Apply(ctx, domain.VIPReward{Days: 10, TierID: "gold"}, "0xa", "rec-2")
	require.NoError(t, err)
	require.Equal(t, "Gold", summary.TierName)
	require.True(t, summary.ExpiresAt.Equal(now.Add(40*24*time.Hour)))

	// 同一记录重放不会再次顺延
	summary, detail, err := a.Apply(ctx, domain.VIPReward{Days: 10, TierID: "gold"}, "0xa", "rec-2")
	require.NoError(t, err)
	require.Equal(t, true, detail["duplicated"])
	require.True(t, summary.ExpiresAt.Equal(now.Add(40*24*time.Hour)))

	member, err := membership.GetMemberByAddress(ctx, "0xa")
	require.NoError(t, err)
	require.Equal(t, "gold", member.TierID)
	require.True(t, member.ExpiresAt.Equal(now.Add(40*24*time.Hour)))

	// 已过期的会员从现在开始算
	later := now.Add(100 * 24 * time.Hour)
	a.now = func() time.Time { return later }
	summary, _, err = a.Apply(ctx, domain.VIPReward{Days: 7}, "0xa", "rec-3")
	require.NoError(t, err)
	require.True(t, summary.ExpiresAt.Equal(later.Add(7*24*time.Hour)))

	_, _, err = a.Apply(ctx, domain.VIPReward{Days: 7, TierID: "platinum"}, "0xb", "rec-4")
	require.ErrorIs(t, err, domain.ErrVIPTierMissing)
}

func TestRewardApplicator_VIPReplayAfterLaterGrant(t *testing.T) {
	a, membership, _, _ := newApplicatorWithStores(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	_, _, err := a.Apply(ctx, domain.VIPReward{Days: 30}, "0xa", "rec-a")
	require.NoError(t, err)
	_, _, err = a.Apply(ctx, domain.VIPReward{Days: 10}, "0xa", "rec-b")
	require.NoError(t, err)

	// rec-a 不是最近一次发放，补偿扫描重放它也不能再次顺延
	summary, detail, err := a.Apply(ctx, domain.VIPReward{Days: 30}, "0xa", "rec-a")
	require.NoError(t, err)
	require.Equal(t, true, detail["duplicated"])
	require.True(t, summary.ExpiresAt.Equal(now.Add(30*24*time.Hour)))

	member, err := membership.GetMemberByAddress(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, member.ExpiresAt.Equal(now.Add(40*24*time.Hour)))
}

func TestRewardApplicator_VIPConcurrentGrantsAccumulate(t *testing.T) {
	a, membership, _, _ := newApplicatorWithStores(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	_, _, err := a.Apply(ctx, domain.VIPReward{Days: 30}, "0xa", "rec-0")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = a.Apply(ctx, domain.VIPReward{Days: 10}, "0xa", fmt.Sprintf("rec-%d", i+1))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	member, err := membership.GetMemberByAddress(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, member.ExpiresAt.Equal(now.Add((30+n*10)*24*time.Hour)), "expiry %s", member.ExpiresAt)
}

func TestRewardApplicator_Coupon(t *testing.T) {
	a, _, _, _ := newApplicatorWithStores(t)
	ctx := context.Background()

	summary, _, err := a.Apply(ctx, domain.CouponReward{CouponID: "c-live"}, "0xa", "rec-1")
	require.NoError(t, err)
	require.Equal(t, "LIVE10", summary.CouponCode)
	require.Equal(t, "10% off", summary.CouponTitle)
	require.NotNil(t, summary.CouponEnds)

	// id 查不到时按 code 查
	summary, _, err = a.Apply(ctx, domain.CouponReward{CouponID: "gone", CouponCode: "LIVE10"}, "0xa", "rec-2")
	require.NoError(t, err)
	require.Equal(t, "c-live", summary.CouponID)

	tests := []struct {
		reward domain.CouponReward
		want   *domain.Error
	}{
		{domain.CouponReward{CouponID: "nope"}, domain.ErrCouponNotFound},
		{domain.CouponReward{CouponCode: "OFF"}, domain.ErrCouponUnavailable},
		{domain.CouponReward{CouponCode: "SOON"}, domain.ErrCouponNotStarted},
		{domain.CouponReward{CouponCode: "OLD"}, domain.ErrCouponExpired},
	}
	for _, tt := range tests {
		_, _, err := a.Apply(ctx, tt.reward, "0xa", "rec-x")
		require.ErrorIs(t, err, tt.want)
	}
}

func TestRewardApplicator_LedgerFailureIsRaw(t *testing.T) {
	a, _, points, _ := newApplicatorWithStores(t)
	points.fail = context.DeadlineExceeded

	_, _, err := a.Apply(context.Background(), domain.MantouReward{Amount: 1}, "0xa", "rec-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, domain.AsError(err, nil))

	noLedger := NewRewardApplicator(nil, nil, nil, nil, otel.Tracer("test"))
	_, _, err = noLedger.Apply(context.Background(), domain.DiamondReward{Amount: 1}, "0xa", "rec-2")
	require.Error(t, err)
}
