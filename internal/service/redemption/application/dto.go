package application

import "promocode/internal/service/redemption/domain"

// RedeemRequest 是兑换请求，IP / UserAgent 只用于审计
type RedeemRequest struct {
	Code      string
	Address   string
	IP        string
	UserAgent string
}

// RedeemResult 是兑换成功的返回
type RedeemResult struct {
	RecordID   string                `json:"recordId"`
	Reward     *domain.RewardSummary `json:"reward"`
	Duplicated bool                  `json:"duplicated,omitempty"`
}
