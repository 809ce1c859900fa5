package domain

import "time"

// Record 是某个用户对某个兑换码的一次兑换尝试，是永久保留的审计记录。
type Record struct {
	ID            string
	CodeID        uint64
	BatchID       *uint64
	UserAddress   string
	RewardType    RewardType
	RewardPayload map[string]any // 尝试时刻的奖励快照
	Status        RecordStatus
	Attempts      int
	IP            string
	UserAgent     string
	Meta          RecordMeta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordMeta 记录发放结果或失败原因。
type RecordMeta struct {
	Reward *RewardSummary `json:"reward,omitempty"`
	Error  string         `json:"error,omitempty"`
	// Detail 是外部系统返回的不透明元数据（结算 digest、余额、内部错误文本等）
	Detail map[string]any `json:"detail,omitempty"`
}
