package domain

import "time"

// RedemptionEvent 在一次已预占的兑换走到终态时发布。
type RedemptionEvent struct {
	RecordID    string       `json:"recordId"`
	Code        string       `json:"code"`
	CodeID      uint64       `json:"codeId"`
	BatchID     *uint64      `json:"batchId,omitempty"`
	UserAddress string       `json:"userAddress"`
	RewardType  RewardType   `json:"rewardType"`
	Status      RecordStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Source      string       `json:"source"` // redeem | sweeper
	OccurredAt  time.Time    `json:"occurredAt"`
}
