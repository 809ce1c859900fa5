package domain

// Status 是批次和兑换码共用的生命周期状态。
type Status string

const (
	StatusActive    Status = "active"
	StatusDisabled  Status = "disabled"
	StatusExhausted Status = "exhausted"
	StatusExpired   Status = "expired"
)

// RecordStatus 是单次兑换记录的状态，只会从 pending 走到 success 或 failed。
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// IsTerminal 终态不可回退。
func (s RecordStatus) IsTerminal() bool {
	return s == RecordSuccess || s == RecordFailed
}
