package infrastructure

import (
	"promocode/internal/service/redemption/domain"
)

// ToDomainBatch 将数据库模型转换为领域模型
func ToDomainBatch(model *BatchModel) *domain.Batch {
	if model == nil {
		return nil
	}
	return &domain.Batch{
		ID:              model.ID,
		Title:           model.Title,
		Description:     model.Description,
		RewardType:      domain.RewardType(model.RewardType),
		RewardPayload:   model.RewardPayload,
		Status:          domain.Status(model.Status),
		MaxRedeem:       model.MaxRedeem,
		UsedCount:       model.UsedCount,
		EligibilityRule: model.EligibilityRule,
		StartsAt:        model.StartsAt,
		ExpiresAt:       model.ExpiresAt,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// FromDomainBatch 将领域模型转换为数据库模型 (用于插入)
func FromDomainBatch(dmn *domain.Batch) *BatchModel {
	if dmn == nil {
		return nil
	}
	status := dmn.Status
	if status == "" {
		status = domain.StatusActive
	}
	return &BatchModel{
		ID:              dmn.ID,
		Title:           dmn.Title,
		Description:     dmn.Description,
		RewardType:      string(dmn.RewardType),
		RewardPayload:   dmn.RewardPayload,
		Status:          string(status),
		MaxRedeem:       dmn.MaxRedeem,
		UsedCount:       dmn.UsedCount,
		EligibilityRule: dmn.EligibilityRule,
		StartsAt:        dmn.StartsAt,
		ExpiresAt:       dmn.ExpiresAt,
	}
}

// ToDomainCode 将数据库模型转换为领域模型，预加载的批次一并转换
func ToDomainCode(model *CodeModel) *domain.Code {
	if model == nil {
		return nil
	}
	code := &domain.Code{
		ID:               model.ID,
		Code:             model.Code,
		BatchID:          model.BatchID,
		RewardType:       domain.RewardType(model.RewardType),
		RewardPayload:    model.RewardPayload,
		Status:           domain.Status(model.Status),
		MaxRedeem:        model.MaxRedeem,
		MaxRedeemPerUser: model.MaxRedeemPerUser,
		UsedCount:        model.UsedCount,
		StartsAt:         model.StartsAt,
		ExpiresAt:        model.ExpiresAt,
		LastRedeemedAt:   model.LastRedeemedAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
	if code.MaxRedeem <= 0 {
		code.MaxRedeem = domain.DefaultMaxRedeem
	}
	if code.MaxRedeemPerUser <= 0 {
		code.MaxRedeemPerUser = domain.DefaultMaxRedeemPerUser
	}
	if model.Batch != nil {
		code.Batch = ToDomainBatch(model.Batch)
	}
	return code
}

// FromDomainCode 将领域模型转换为数据库模型，码会被规范化，缺省上限补成 1
func FromDomainCode(dmn *domain.Code) *CodeModel {
	if dmn == nil {
		return nil
	}
	model := &CodeModel{
		ID:               dmn.ID,
		Code:             domain.NormalizeCode(dmn.Code),
		BatchID:          dmn.BatchID,
		RewardType:       string(dmn.RewardType),
		RewardPayload:    dmn.RewardPayload,
		Status:           string(dmn.Status),
		MaxRedeem:        dmn.MaxRedeem,
		MaxRedeemPerUser: dmn.MaxRedeemPerUser,
		UsedCount:        dmn.UsedCount,
		StartsAt:         dmn.StartsAt,
		ExpiresAt:        dmn.ExpiresAt,
		LastRedeemedAt:   dmn.LastRedeemedAt,
	}
	if model.Status == "" {
		model.Status = string(domain.StatusActive)
	}
	if model.MaxRedeem <= 0 {
		model.MaxRedeem = domain.DefaultMaxRedeem
	}
	if model.MaxRedeemPerUser <= 0 {
		model.MaxRedeemPerUser = domain.DefaultMaxRedeemPerUser
	}
	return model
}

func ToDomainRecord(model *RecordModel) *domain.Record {
	if model == nil {
		return nil
	}
	return &domain.Record{
		ID:            model.ID,
		CodeID:        model.CodeID,
		BatchID:       model.BatchID,
		UserAddress:   model.UserAddress,
		RewardType:    domain.RewardType(model.RewardType),
		RewardPayload: model.RewardPayload,
		Status:        domain.RecordStatus(model.Status),
		Attempts:      model.Attempts,
		IP:            model.IP,
		UserAgent:     model.UserAgent,
		Meta:          model.Meta,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func FromDomainRecord(dmn *domain.Record) *RecordModel {
	if dmn == nil {
		return nil
	}
	return &RecordModel{
		ID:            dmn.ID,
		CodeID:        dmn.CodeID,
		BatchID:       dmn.BatchID,
		UserAddress:   dmn.UserAddress,
		RewardType:    string(dmn.RewardType),
		RewardPayload: dmn.RewardPayload,
		Status:        string(dmn.Status),
		Attempts:      dmn.Attempts,
		IP:            dmn.IP,
		UserAgent:     dmn.UserAgent,
		Meta:          dmn.Meta,
	}
}

// ToDomainTier 将会员等级模型转换为领域模型
func ToDomainTier(model *MembershipTierModel) *domain.MembershipTier {
	if model == nil {
		return nil
	}
	return &domain.MembershipTier{
		ID:        model.ID,
		Name:      model.Name,
		Level:     model.Level,
		Status:    model.Status,
		SortOrder: model.SortOrder,
	}
}

func ToDomainMember(model *MemberModel) *domain.Member {
	if model == nil {
		return nil
	}
	return &domain.Member{
		ID:          model.ID,
		UserAddress: model.UserAddress,
		TierID:      model.TierID,
		Status:      model.Status,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func FromDomainMember(dmn *domain.Member) *MemberModel {
	if dmn == nil {
		return nil
	}
	return &MemberModel{
		ID:          dmn.ID,
		UserAddress: dmn.UserAddress,
		TierID:      dmn.TierID,
		Status:      dmn.Status,
		ExpiresAt:   dmn.ExpiresAt,
	}
}

func ToDomainCoupon(model *CouponModel) *domain.Coupon {
	if model == nil {
		return nil
	}
	return &domain.Coupon{
		ID:       model.ID,
		Code:     model.Code,
		Title:    model.Title,
		Status:   model.Status,
		StartsAt: model.StartsAt,
		EndsAt:   model.EndsAt,
	}
}
