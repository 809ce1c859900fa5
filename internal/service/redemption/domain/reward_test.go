package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveReward(t *testing.T) {
	tests := []struct {
		name    string
		typ     RewardType
		payload map[string]any
		want    Reward
		wantErr error
	}{
		{"mantou float", RewardMantou, map[string]any{"amount": float64(100)}, MantouReward{Amount: 100}, nil},
		{"mantou string", RewardMantou, map[string]any{"amount": " 20 "}, MantouReward{Amount: 20}, nil},
		{"mantou zero", RewardMantou, map[string]any{"amount": 0}, nil, ErrRewardAmountRequired},
		{"mantou fraction", RewardMantou, map[string]any{"amount": 1.5}, nil, ErrRewardAmountRequired},
		{"mantou missing", RewardMantou, map[string]any{}, nil, ErrRewardAmountRequired},
		{"mantou 2^63 float", RewardMantou, map[string]any{"amount": float64(1 << 63)}, nil, ErrRewardAmountRequired},
		{"mantou 2^63 string", RewardMantou, map[string]any{"amount": "9223372036854775808"}, nil, ErrRewardAmountRequired},
		{"diamond json number", RewardDiamond, map[string]any{"amount": json.Number("50")}, DiamondReward{Amount: 50}, nil},
		{"diamond negative", RewardDiamond, map[string]any{"amount": -3}, nil, ErrRewardAmountRequired},
		{"diamond text", RewardDiamond, map[string]any{"amount": "lots"}, nil, ErrRewardAmountRequired},
		{"vip with tier", RewardVIP, map[string]any{"days": 30, "tierId": "gold"}, VIPReward{Days: 30, TierID: "gold"}, nil},
		{"vip without tier", RewardVIP, map[string]any{"days": int64(7)}, VIPReward{Days: 7}, nil},
		{"vip no days", RewardVIP, map[string]any{"tierId": "gold"}, nil, ErrRewardDaysRequired},
		{"coupon by id", RewardCoupon, map[string]any{"couponId": "c-1"}, CouponReward{CouponID: "c-1"}, nil},
		{"coupon by code", RewardCoupon, map[string]any{"couponCode": "SPRING"}, CouponReward{CouponCode: "SPRING"}, nil},
		{"coupon blank", RewardCoupon, map[string]any{"couponId": "  "}, nil, ErrRewardCouponRequired},
		{"custom message", RewardCustom, map[string]any{"message": "thanks"}, CustomReward{Message: "thanks"}, nil},
		{"custom nil payload", RewardCustom, nil, CustomReward{}, nil},
		{"upper-case tag", RewardType("MANTOU"), map[string]any{"amount": 1}, MantouReward{Amount: 1}, nil},
		{"unknown tag", RewardType("gems"), map[string]any{"amount": 1}, nil, ErrRewardTypeInvalid},
		{"empty tag", RewardType(""), nil, nil, ErrRewardTypeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveReward(tt.typ, tt.payload)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRewardIsDeterministic(t *testing.T) {
	payload := map[string]any{"days": "15", "tierId": "silver"}
	first, err := ResolveReward(RewardVIP, payload)
	require.NoError(t, err)
	second, err := ResolveReward(RewardVIP, payload)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, map[string]any{"days": "15", "tierId": "silver"}, payload, "payload must not be mutated")
	require.Equal(t, map[string]any{"days": int64(15), "tierId": "silver"}, first.Payload())
}

func TestStatusErrorMapping(t *testing.T) {
	require.Equal(t, ErrBatchDisabled, StatusError("batch", StatusDisabled))
	require.Equal(t, ErrCodeExpired, StatusError("code", StatusExpired))

	other := StatusError("batch", Status("archived"))
	require.Equal(t, "batch_archived", other.Code)
	require.Equal(t, 409, other.Status)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	dynamic := &Error{Code: "code_used_up", Status: 409}
	require.ErrorIs(t, dynamic, ErrCodeUsedUp)
	require.NotErrorIs(t, dynamic, ErrBatchUsedUp)
	require.Equal(t, ErrRedeemFailed, AsError(assertErr("boom"), ErrRedeemFailed))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
