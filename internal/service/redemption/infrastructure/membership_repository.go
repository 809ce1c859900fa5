package infrastructure

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"promocode/internal/service/redemption/domain"
)

// GormMembershipStore 是 MembershipStore 的 GORM 实现
type GormMembershipStore struct {
	db *gorm.DB
}

func NewGormMembershipStore(db *gorm.DB) *GormMembershipStore {
	return &GormMembershipStore{db: db}
}

func (s *GormMembershipStore) GetTierByID(ctx context.Context, id string) (*domain.MembershipTier, error) {
	var model MembershipTierModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get tier %s", id)
	}
	return ToDomainTier(&model), nil
}

// ListActiveTiers 按 sort_order 升序返回可用的会员等级
func (s *GormMembershipStore) ListActiveTiers(ctx context.Context) ([]*domain.MembershipTier, error) {
	var models []MembershipTierModel
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.TierStatusActive).
		Order("sort_order ASC").Order("level ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list active tiers")
	}
	tiers := make([]*domain.MembershipTier, 0, len(models))
	for i := range models {
		tiers = append(tiers, ToDomainTier(&models[i]))
	}
	return tiers, nil
}

func (s *GormMembershipStore) GetMemberByAddress(ctx context.Context, address string) (*domain.Member, error) {
	var model MemberModel
	if err := s.db.WithContext(ctx).Where("user_address = ?", address).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get member")
	}
	return ToDomainMember(&model), nil
}

// GrantMembership 在一个事务里完成：登记发放记录、锁住会员行、在当前到期时间上续期。
// 发放记录的主键是兑换记录 ID，同一条兑换记录无论重放多少次只续期一次
func (s *GormMembershipStore) GrantMembership(ctx context.Context, g domain.MembershipGrant) (*domain.MembershipGrantResult, error) {
	var result *domain.MembershipGrantResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 先占住幂等键，并发重放的另一方会在这里落空
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&MembershipGrantModel{
			RecordID:    g.RecordID,
			UserAddress: g.Address,
			TierID:      g.TierID,
			Days:        g.Days,
		})
		if created.Error != nil {
			return errors.Wrap(created.Error, "create membership grant")
		}
		if created.RowsAffected == 0 {
			prior, err := s.priorGrant(tx, g)
			if err != nil {
				return err
			}
			result = prior
			return nil
		}

		// 2. 首次发放时建会员行，并发首发靠 user_address 唯一索引收敛到同一行
		err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_address"}}, DoNothing: true}).
			Create(FromDomainMember(&domain.Member{
				ID:          uuid.NewString(),
				UserAddress: g.Address,
				TierID:      g.TierID,
				Status:      domain.MemberStatusActive,
			})).Error
		if err != nil {
			return errors.Wrap(err, "create member")
		}

		// 3. 锁住会员行后再读到期时间，同一地址的并发发放在这里排队
		q := tx.Where("user_address = ?", g.Address)
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var member MemberModel
		if err := q.First(&member).Error; err != nil {
			return errors.Wrap(err, "lock member")
		}

		expiresAt := domain.ExtendExpiry(member.ExpiresAt, g.Now, g.Days)
		err = tx.Model(&MemberModel{}).Where("id = ?", member.ID).
			Updates(map[string]interface{}{
				"tier_id":    g.TierID,
				"status":     domain.MemberStatusActive,
				"expires_at": expiresAt,
			}).Error
		if err != nil {
			return errors.Wrapf(err, "extend member %s", member.ID)
		}
		err = tx.Model(&MembershipGrantModel{}).Where("record_id = ?", g.RecordID).
			Updates(map[string]interface{}{
				"member_id":  member.ID,
				"expires_at": expiresAt,
			}).Error
		if err != nil {
			return errors.Wrap(err, "settle membership grant")
		}

		member.TierID, member.Status, member.ExpiresAt = g.TierID, domain.MemberStatusActive, &expiresAt
		result = &domain.MembershipGrantResult{Member: ToDomainMember(&member), ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// priorGrant 返回同一兑换记录第一次发放的结果
func (s *GormMembershipStore) priorGrant(tx *gorm.DB, g domain.MembershipGrant) (*domain.MembershipGrantResult, error) {
	var grant MembershipGrantModel
	if err := tx.Where("record_id = ?", g.RecordID).First(&grant).Error; err != nil {
		return nil, errors.Wrapf(err, "load membership grant %s", g.RecordID)
	}
	var member MemberModel
	if err := tx.Where("user_address = ?", grant.UserAddress).First(&member).Error; err != nil {
		return nil, errors.Wrapf(err, "load member of grant %s", g.RecordID)
	}
	res := &domain.MembershipGrantResult{Member: ToDomainMember(&member), Duplicated: true}
	if grant.ExpiresAt != nil {
		res.ExpiresAt = *grant.ExpiresAt
	}
	return res, nil
}
