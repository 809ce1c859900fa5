package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"promocode/internal/service/redemption/domain"
)

var tracer = otel.Tracer("redemption-store")

// GormRedemptionRepository 是 RedemptionRepository 的 GORM 实现
type GormRedemptionRepository struct {
	db *gorm.DB
}

// NewGormRedemptionRepository 创建一个新的 GORM 仓储实例
func NewGormRedemptionRepository(db *gorm.DB) *GormRedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

// FindCodeByCode 查找兑换码并预加载批次
func (r *GormRedemptionRepository) FindCodeByCode(ctx context.Context, code string) (*domain.Code, error) {
	var model CodeModel
	err := r.db.WithContext(ctx).Preload("Batch").Where("code = ?", domain.NormalizeCode(code)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCode
		}
		return nil, errors.Wrapf(err, "find code %q", code)
	}
	return ToDomainCode(&model), nil
}

func (r *GormRedemptionRepository) FindCodeByID(ctx context.Context, id uint64) (*domain.Code, error) {
	var model CodeModel
	err := r.db.WithContext(ctx).Preload("Batch").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCode
		}
		return nil, errors.Wrapf(err, "find code %d", id)
	}
	return ToDomainCode(&model), nil
}

func (r *GormRedemptionRepository) FindRecord(ctx context.Context, id string) (*domain.Record, error) {
	var model RecordModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, errors.Wrapf(err, "find record %s", id)
	}
	return ToDomainRecord(&model), nil
}

// FindSuccessRecord 返回 (code, user) 最近一条成功记录
func (r *GormRedemptionRepository) FindSuccessRecord(ctx context.Context, codeID uint64, address string) (*domain.Record, error) {
	var model RecordModel
	err := r.db.WithContext(ctx).
		Where("code_id = ? AND user_address = ? AND status = ?", codeID, address, domain.RecordSuccess).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find success record")
	}
	return ToDomainRecord(&model), nil
}

func (r *GormRedemptionRepository) MarkCodeExpired(ctx context.Context, codeID uint64) error {
	err := r.db.WithContext(ctx).Model(&CodeModel{}).
		Where("id = ? AND status IN ?", codeID, []domain.Status{domain.StatusActive, domain.StatusExhausted}).
		Update("status", domain.StatusExpired).Error
	return errors.Wrapf(err, "mark code %d expired", codeID)
}

func (r *GormRedemptionRepository) MarkBatchExpired(ctx context.Context, batchID uint64) error {
	err := r.db.WithContext(ctx).Model(&BatchModel{}).
		Where("id = ? AND status IN ?", batchID, []domain.Status{domain.StatusActive, domain.StatusExhausted}).
		Update("status", domain.StatusExpired).Error
	return errors.Wrapf(err, "mark batch %d expired", batchID)
}

func (r *GormRedemptionRepository) MarkCodeExhausted(ctx context.Context, codeID uint64) error {
	err := r.db.WithContext(ctx).Model(&CodeModel{}).
		Where("id = ? AND status = ? AND used_count >= max_redeem", codeID, domain.StatusActive).
		Update("status", domain.StatusExhausted).Error
	return errors.Wrapf(err, "mark code %d exhausted", codeID)
}

func (r *GormRedemptionRepository) MarkBatchExhausted(ctx context.Context, batchID uint64) error {
	err := r.db.WithContext(ctx).Model(&BatchModel{}).
		Where("id = ? AND status = ? AND max_redeem IS NOT NULL AND used_count >= max_redeem", batchID, domain.StatusActive).
		Update("status", domain.StatusExhausted).Error
	return errors.Wrapf(err, "mark batch %d exhausted", batchID)
}

// Reserve 在一个事务里完成：单用户限购检查、批次计数条件自增、兑换码计数条件自增、创建 pending 记录。
// 任一步失败整个事务回滚，计数不会被部分修改。
func (r *GormRedemptionRepository) Reserve(ctx context.Context, res domain.Reservation) (err error) {
	ctx, span := tracer.Start(ctx, "store.Reserve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	code, rec := res.Code, res.Record
	span.SetAttributes(
		attribute.Int64("code.id", int64(code.ID)),
		attribute.String("record.id", rec.ID),
	)
	limit := code.PerUserLimit()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUserLimit(tx, code.ID, rec.UserAddress, limit, false); err != nil {
			return err
		}

		if code.BatchID != nil {
			// 不限量的批次无条件自增，限量的批次必须仍是 active 且未满
			result := tx.Model(&BatchModel{}).
				Where("id = ? AND (max_redeem IS NULL OR (status = ? AND used_count < max_redeem))", *code.BatchID, domain.StatusActive).
				Update("used_count", gorm.Expr("used_count + ?", 1))
			if result.Error != nil {
				return errors.Wrap(result.Error, "increment batch used_count")
			}
			if result.RowsAffected == 0 {
				return domain.ErrBatchUsedUp
			}
		}

		result := tx.Model(&CodeModel{}).
			Where("id = ? AND status = ? AND used_count < max_redeem", code.ID, domain.StatusActive).
			Updates(map[string]interface{}{
				"used_count":       gorm.Expr("used_count + ?", 1),
				"last_redeemed_at": res.Now,
			})
		if result.Error != nil {
			return errors.Wrap(result.Error, "increment code used_count")
		}
		if result.RowsAffected == 0 {
			return domain.ErrCodeUsedUp
		}

		// 兑换码行已被本事务锁住，同一用户的并发请求在这里排队，再数一次
		if err := checkUserLimit(tx, code.ID, rec.UserAddress, limit, true); err != nil {
			return err
		}

		rec.Status = domain.RecordPending
		model := FromDomainRecord(rec)
		if err := tx.Create(model).Error; err != nil {
			return errors.Wrap(err, "create pending record")
		}
		rec.CreatedAt = model.CreatedAt
		rec.UpdatedAt = model.UpdatedAt
		return nil
	})
}

func checkUserLimit(tx *gorm.DB, codeID uint64, address string, limit int64, locking bool) error {
	q := tx.Model(&RecordModel{}).
		Where("code_id = ? AND user_address = ? AND status IN ?", codeID, address,
			[]domain.RecordStatus{domain.RecordPending, domain.RecordSuccess})
	// SQLite 没有行锁，整个库的写事务本来就是串行的
	if locking && tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return errors.Wrap(err, "count user records")
	}
	if n >= limit {
		return domain.ErrUserLimitReached
	}
	return nil
}

// CompleteRecord 把 pending 记录标记为成功
func (r *GormRedemptionRepository) CompleteRecord(ctx context.Context, id string, meta domain.RecordMeta) (bool, error) {
	return r.finalize(ctx, id, domain.RecordSuccess, meta)
}

// FailRecord 把 pending 记录标记为失败
func (r *GormRedemptionRepository) FailRecord(ctx context.Context, id string, meta domain.RecordMeta) (bool, error) {
	return r.finalize(ctx, id, domain.RecordFailed, meta)
}

func (r *GormRedemptionRepository) finalize(ctx context.Context, id string, status domain.RecordStatus, meta domain.RecordMeta) (bool, error) {
	// 用结构体 + Select 更新，保证 meta 走 json serializer
	result := r.db.WithContext(ctx).Model(&RecordModel{}).
		Where("id = ? AND status = ?", id, domain.RecordPending).
		Select("status", "meta").
		Updates(&RecordModel{Status: string(status), Meta: meta})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "finalize record %s as %s", id, status)
	}
	return result.RowsAffected > 0, nil
}

// Release 回退预占的计数，disabled 状态不会被覆盖
func (r *GormRedemptionRepository) Release(ctx context.Context, rel domain.Release) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&CodeModel{}).
			Where("id = ? AND used_count > 0", rel.CodeID).
			Updates(map[string]interface{}{
				"used_count": gorm.Expr("used_count - ?", 1),
				"status":     restoreExpr(rel.CodeRestore),
			}).Error
		if err != nil {
			return errors.Wrapf(err, "release code %d", rel.CodeID)
		}
		if rel.BatchID == nil {
			return nil
		}
		err = tx.Model(&BatchModel{}).
			Where("id = ? AND used_count > 0", *rel.BatchID).
			Updates(map[string]interface{}{
				"used_count": gorm.Expr("used_count - ?", 1),
				"status":     restoreExpr(rel.BatchRestore),
			}).Error
		return errors.Wrapf(err, "release batch %d", *rel.BatchID)
	})
}

func restoreExpr(restore domain.Status) clause.Expr {
	if restore == "" {
		restore = domain.StatusActive
	}
	return gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END", domain.StatusDisabled, restore)
}

func (r *GormRedemptionRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.RecordPending, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list stale pending records")
	}
	records := make([]*domain.Record, 0, len(models))
	for i := range models {
		records = append(records, ToDomainRecord(&models[i]))
	}
	return records, nil
}

// ClaimStale 认领成功后 updated_at 被推到 now，其他实例的同一条件更新会落空
func (r *GormRedemptionRepository) ClaimStale(ctx context.Context, id string, before, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&RecordModel{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, domain.RecordPending, before).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "claim record %s", id)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormRedemptionRepository) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	model := FromDomainBatch(batch)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "create batch")
	}
	batch.ID = model.ID
	batch.Status = domain.Status(model.Status)
	batch.CreatedAt, batch.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (r *GormRedemptionRepository) CreateCode(ctx context.Context, code *domain.Code) error {
	model := FromDomainCode(code)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrapf(err, "create code %q", model.Code)
	}
	code.ID = model.ID
	code.Code = model.Code
	code.Status = domain.Status(model.Status)
	code.MaxRedeem, code.MaxRedeemPerUser = model.MaxRedeem, model.MaxRedeemPerUser
	code.CreatedAt, code.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (r *GormRedemptionRepository) SetBatchStatus(ctx context.Context, batchID uint64, status domain.Status) error {
	err := r.db.WithContext(ctx).Model(&BatchModel{}).Where("id = ?", batchID).Update("status", status).Error
	return errors.Wrapf(err, "set batch %d status", batchID)
}

func (r *GormRedemptionRepository) SetCodeStatus(ctx context.Context, codeID uint64, status domain.Status) error {
	err := r.db.WithContext(ctx).Model(&CodeModel{}).Where("id = ?", codeID).Update("status", status).Error
	return errors.Wrapf(err, "set code %d status", codeID)
}
