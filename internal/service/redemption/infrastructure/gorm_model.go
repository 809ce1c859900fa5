package infrastructure

import (
	"time"

	"gorm.io/gorm"
	"promocode/internal/service/redemption/domain"
)

// BatchModel 对应数据库中的 redeem_batch 表
type BatchModel struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	Title           string         `gorm:"size:128;not null"`
	Description     string         `gorm:"type:text"`
	RewardType      string         `gorm:"size:32;not null"`
	RewardPayload   map[string]any `gorm:"serializer:json;type:text"`
	Status          string         `gorm:"size:16;not null;index"`
	MaxRedeem       *int64
	UsedCount       int64  `gorm:"not null;default:0"`
	EligibilityRule string `gorm:"type:text"`
	StartsAt        *time.Time
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName 指定 GORM 应该使用的表名
func (BatchModel) TableName() string {
	return "redeem_batch"
}

// CodeModel 对应数据库中的 redeem_code 表
type CodeModel struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement"`
	Code             string         `gorm:"size:64;not null;uniqueIndex"`
	BatchID          *uint64        `gorm:"index"`
	RewardType       string         `gorm:"size:32"`
	RewardPayload    map[string]any `gorm:"serializer:json;type:text"`
	Status           string         `gorm:"size:16;not null;index"`
	MaxRedeem        int64          `gorm:"not null"`
	MaxRedeemPerUser int64          `gorm:"not null"`
	UsedCount        int64          `gorm:"not null;default:0"`
	StartsAt         *time.Time
	ExpiresAt        *time.Time
	LastRedeemedAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// 关联关系
	Batch *BatchModel `gorm:"foreignKey:BatchID"`
}

// TableName 指定 GORM 应该使用的表名
func (CodeModel) TableName() string {
	return "redeem_code"
}

// RecordModel 对应数据库中的 redeem_record 表
type RecordModel struct {
	ID            string            `gorm:"primaryKey;size:36"`
	CodeID        uint64            `gorm:"not null;index:idx_record_code_user,priority:1"`
	BatchID       *uint64           `gorm:"index"`
	UserAddress   string            `gorm:"size:66;not null;index:idx_record_code_user,priority:2"`
	RewardType    string            `gorm:"size:32;not null"`
	RewardPayload map[string]any    `gorm:"serializer:json;type:text"`
	Status        string            `gorm:"size:16;not null;index:idx_record_code_user,priority:3;index:idx_record_status_updated,priority:1"`
	Attempts      int               `gorm:"not null;default:0"`
	IP            string            `gorm:"size:64"`
	UserAgent     string            `gorm:"size:512"`
	Meta          domain.RecordMeta `gorm:"serializer:json;type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index:idx_record_status_updated,priority:2"`
}

// TableName 指定 GORM 应该使用的表名
func (RecordModel) TableName() string {
	return "redeem_record"
}

// MembershipTierModel 对应会员等级表
type MembershipTierModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:64;not null"`
	Level     int
	Status    string `gorm:"size:16;not null;index"`
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MembershipTierModel) TableName() string {
	return "membership_tier"
}

// MemberModel 对应会员表，一个地址一条
type MemberModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserAddress string `gorm:"size:66;not null;uniqueIndex"`
	TierID      string `gorm:"size:64"`
	Status      string `gorm:"size:16;not null"`
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (MemberModel) TableName() string {
	return "membership_member"
}

// MembershipGrantModel 每条兑换记录最多一行，主键就是幂等键
type MembershipGrantModel struct {
	RecordID    string `gorm:"primaryKey;size:36"`
	MemberID    string `gorm:"size:36;index"`
	UserAddress string `gorm:"size:66;not null"`
	TierID      string `gorm:"size:64"`
	Days        int64  `gorm:"not null"`
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

func (MembershipGrantModel) TableName() string {
	return "membership_grant"
}

// CouponModel 对应优惠券定义表，这里只读
type CouponModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Code      string `gorm:"size:64;uniqueIndex"`
	Title     string `gorm:"size:128"`
	Status    string `gorm:"size:16;not null"`
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CouponModel) TableName() string {
	return "coupon"
}

// AutoMigrate 创建 / 升级本服务用到的所有表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BatchModel{},
		&CodeModel{},
		&RecordModel{},
		&MembershipTierModel{},
		&MemberModel{},
		&MembershipGrantModel{},
		&CouponModel{},
	)
}
