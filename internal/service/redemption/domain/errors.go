package domain

import (
	"errors"
	"net/http"
)

// Error 是兑换流程对外暴露的业务错误：一个稳定的机器可读错误码加一个 HTTP 等价状态码。
// 内部异常文本永远不会出现在 Code 里。
type Error struct {
	Code   string
	Status int
}

func (e *Error) Error() string { return e.Code }

// Is 按错误码比较，这样动态构造的 batch_<status> 之类的错误也能用 errors.Is 判断。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code string, status int) *Error {
	return &Error{Code: code, Status: status}
}

// 输入校验
var (
	ErrInvalidAddress = newError("invalid_address", http.StatusBadRequest)
	ErrCodeRequired   = newError("code_required", http.StatusBadRequest)
)

// 不存在
var ErrInvalidCode = newError("invalid_code", http.StatusNotFound)

// 状态冲突
var (
	ErrBatchDisabled    = newError("batch_disabled", http.StatusForbidden)
	ErrBatchExpired     = newError("batch_expired", http.StatusGone)
	ErrBatchUsedUp      = newError("batch_used_up", http.StatusConflict)
	ErrCodeDisabled     = newError("code_disabled", http.StatusForbidden)
	ErrCodeExpired      = newError("code_expired", http.StatusGone)
	ErrCodeUsedUp       = newError("code_used_up", http.StatusConflict)
	ErrCodeNotStarted   = newError("code_not_started", http.StatusForbidden)
	ErrCodeNotEligible  = newError("code_not_eligible", http.StatusForbidden)
	ErrUserLimitReached = newError("user_limit_reached", http.StatusConflict)
)

// 奖励校验
var (
	ErrRewardAmountRequired = newError("reward_amount_required", http.StatusBadRequest)
	ErrRewardDaysRequired   = newError("reward_days_required", http.StatusBadRequest)
	ErrRewardCouponRequired = newError("reward_coupon_required", http.StatusBadRequest)
	ErrRewardTypeInvalid    = newError("reward_type_invalid", http.StatusBadRequest)
	ErrVIPTierMissing       = newError("vip_tier_missing", http.StatusNotFound)
	ErrCouponNotFound       = newError("coupon_not_found", http.StatusNotFound)
	ErrCouponUnavailable    = newError("coupon_unavailable", http.StatusForbidden)
	ErrCouponNotStarted     = newError("coupon_not_started", http.StatusForbidden)
	ErrCouponExpired        = newError("coupon_expired", http.StatusGone)
)

// 外部失败 / 兜底
var (
	ErrRewardFailed = newError("reward_failed", http.StatusInternalServerError)
	ErrRedeemFailed = newError("redeem_failed", http.StatusInternalServerError)
)

// StatusError 把批次 / 兑换码的非 active 状态映射成错误。
// exhausted 不在这里处理，交给后面的容量检查报告 *_used_up。
func StatusError(scope string, status Status) *Error {
	switch status {
	case StatusDisabled:
		if scope == "batch" {
			return ErrBatchDisabled
		}
		return ErrCodeDisabled
	case StatusExpired:
		if scope == "batch" {
			return ErrBatchExpired
		}
		return ErrCodeExpired
	default:
		return newError(scope+"_"+string(status), http.StatusConflict)
	}
}

// AsError 把任意错误归一化成 *Error；未知错误一律视为 fallback。
func AsError(err error, fallback *Error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return fallback
}
