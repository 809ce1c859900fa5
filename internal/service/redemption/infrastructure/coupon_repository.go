package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"promocode/internal/service/redemption/domain"
)

// GormCouponStore 只读地访问优惠券定义
type GormCouponStore struct {
	db *gorm.DB
}

func NewGormCouponStore(db *gorm.DB) *GormCouponStore {
	return &GormCouponStore{db: db}
}

func (s *GormCouponStore) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormCouponStore) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return s.first(ctx, "code = ?", code)
}

func (s *GormCouponStore) first(ctx context.Context, query string, arg string) (*domain.Coupon, error) {
	var model CouponModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "find coupon by %s", arg)
	}
	return ToDomainCoupon(&model), nil
}
