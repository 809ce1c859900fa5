package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RewardType 是奖励类型标签。
type RewardType string

const (
	RewardMantou  RewardType = "mantou"  // 积分
	RewardDiamond RewardType = "diamond" // 链上结算的货币
	RewardVIP     RewardType = "vip"
	RewardCoupon  RewardType = "coupon"
	RewardCustom  RewardType = "custom"
)

// Reward 是经过校验的奖励描述，每种类型一个具体结构体。
type Reward interface {
	Kind() RewardType
	// Payload 返回规范化后的 payload，用于写入兑换记录快照。
	Payload() map[string]any
}

type MantouReward struct {
	Amount int64
}

func (r MantouReward) Kind() RewardType        { return RewardMantou }
func (r MantouReward) Payload() map[string]any { return map[string]any{"amount": r.Amount} }

type DiamondReward struct {
	Amount int64
}

func (r DiamondReward) Kind() RewardType        { return RewardDiamond }
func (r DiamondReward) Payload() map[string]any { return map[string]any{"amount": r.Amount} }

type VIPReward struct {
	Days   int64
	TierID string
}

func (r VIPReward) Kind() RewardType { return RewardVIP }
func (r VIPReward) Payload() map[string]any {
	p := map[string]any{"days": r.Days}
	if r.TierID != "" {
		p["tierId"] = r.TierID
	}
	return p
}

type CouponReward struct {
	CouponID   string
	CouponCode string
}

func (r CouponReward) Kind() RewardType { return RewardCoupon }
func (r CouponReward) Payload() map[string]any {
	p := map[string]any{}
	if r.CouponID != "" {
		p["couponId"] = r.CouponID
	}
	if r.CouponCode != "" {
		p["couponCode"] = r.CouponCode
	}
	return p
}

type CustomReward struct {
	Message string
}

func (r CustomReward) Kind() RewardType { return RewardCustom }
func (r CustomReward) Payload() map[string]any {
	if r.Message == "" {
		return map[string]any{}
	}
	return map[string]any{"message": r.Message}
}

// ResolveReward 校验 rewardType 与 payload 并转换成类型化的奖励描述。
// 纯函数，无副作用。
func ResolveReward(rewardType RewardType, payload map[string]any) (Reward, error) {
	switch RewardType(strings.ToLower(strings.TrimSpace(string(rewardType)))) {
	case RewardMantou:
		amount, ok := positiveInt(payload["amount"])
		if !ok {
			return nil, ErrRewardAmountRequired
		}
		return MantouReward{Amount: amount}, nil
	case RewardDiamond:
		amount, ok := positiveInt(payload["amount"])
		if !ok {
			return nil, ErrRewardAmountRequired
		}
		return DiamondReward{Amount: amount}, nil
	case RewardVIP:
		days, ok := positiveInt(payload["days"])
		if !ok {
			return nil, ErrRewardDaysRequired
		}
		return VIPReward{Days: days, TierID: stringField(payload["tierId"])}, nil
	case RewardCoupon:
		r := CouponReward{
			CouponID:   stringField(payload["couponId"]),
			CouponCode: stringField(payload["couponCode"]),
		}
		if r.CouponID == "" && r.CouponCode == "" {
			return nil, ErrRewardCouponRequired
		}
		return r, nil
	case RewardCustom:
		return CustomReward{Message: stringField(payload["message"])}, nil
	default:
		return nil, ErrRewardTypeInvalid
	}
}

// positiveInt 接受 JSON 数字、Go 整数和数字字符串，要求是大于 0 的整数。
func positiveInt(v any) (int64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		return int64(n), n > 0
	case int32:
		return int64(n), n > 0
	case int64:
		return n, n > 0
	case uint:
		return int64(n), n > 0 && uint64(n) <= math.MaxInt64
	case uint32:
		return int64(n), n > 0
	case uint64:
		return int64(n), n > 0 && n <= math.MaxInt64
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, i > 0
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, i > 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	// float64(MaxInt64) 会舍入成 2^63，所以用 >= 拒绝
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f <= 0 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func stringField(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// RewardSummary 是发放成功后返回给调用方、同时写入兑换记录的奖励摘要。
type RewardSummary struct {
	Type RewardType `json:"type"`

	Amount  int64  `json:"amount,omitempty"`
	Balance *int64 `json:"balance,omitempty"`
	Digest  string `json:"digest,omitempty"`

	Days      int64      `json:"days,omitempty"`
	TierID    string     `json:"tierId,omitempty"`
	TierName  string     `json:"tierName,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	CouponID    string     `json:"couponId,omitempty"`
	CouponCode  string     `json:"couponCode,omitempty"`
	CouponTitle string     `json:"couponTitle,omitempty"`
	CouponEnds  *time.Time `json:"couponEndsAt,omitempty"`

	Message string `json:"message,omitempty"`
}
