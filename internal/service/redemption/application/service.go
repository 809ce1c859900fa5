package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"promocode/internal/pkg/logger"
	"promocode/internal/service/redemption/domain"
)

const (
	sourceRedeem  = "redeem"
	sourceSweeper = "sweeper"

	defaultApplyTimeout = 15 * time.Second
)

// Applicator 发放奖励，RewardApplicator 是它的实现
type Applicator interface {
	Apply(ctx context.Context, reward domain.Reward, address, recordID string) (*domain.RewardSummary, map[string]any, error)
}

// MetricsRecorder 是编排器用到的指标
type MetricsRecorder interface {
	ObserveAttempt(result string)
	ObserveCompensation(outcome string)
	ObserveApply(rewardType string, elapsed time.Duration)
	ObserveSweep(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAttempt(string)              {}
func (noopMetrics) ObserveCompensation(string)         {}
func (noopMetrics) ObserveApply(string, time.Duration) {}
func (noopMetrics) ObserveSweep(string)                {}

// RedemptionService 定义了兑换服务提供的业务用例。
// 流程是 saga 式的两段：短事务预占容量，事务外发放奖励，然后落终态或补偿
type RedemptionService struct {
	repo         domain.RedemptionRepository
	applicator   Applicator
	rules        domain.RuleEngine
	events       domain.EventPublisher
	metrics      MetricsRecorder
	tracer       trace.Tracer
	applyTimeout time.Duration
	now          func() time.Time
}

// NewRedemptionService 创建一个新的兑换服务实例，rules / events / metrics 可以为 nil
func NewRedemptionService(
	repo domain.RedemptionRepository,
	applicator Applicator,
	rules domain.RuleEngine,
	events domain.EventPublisher,
	metrics MetricsRecorder,
	tracer trace.Tracer,
	applyTimeout time.Duration,
) *RedemptionService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if applyTimeout <= 0 {
		applyTimeout = defaultApplyTimeout
	}
	return &RedemptionService{
		repo:         repo,
		applicator:   applicator,
		rules:        rules,
		events:       events,
		metrics:      metrics,
		tracer:       tracer,
		applyTimeout: applyTimeout,
		now:          time.Now,
	}
}

// Redeem 兑换一个码。返回的错误总是 *domain.Error，内部错误统一收敛为 redeem_failed
func (s *RedemptionService) Redeem(ctx context.Context, req *RedeemRequest) (result *RedeemResult, err error) {
	ctx, span := s.tracer.Start(ctx, "service.Redeem")
	defer func() {
		outcome := "success"
		switch {
		case err != nil:
			outcome = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		case result.Duplicated:
			outcome = "duplicated"
		}
		s.metrics.ObserveAttempt(outcome)
		span.End()
	}()
	span.SetAttributes(attribute.String("redeem.code", req.Code))

	result, err = s.redeem(ctx, req)
	if err != nil {
		de := domain.AsError(err, nil)
		if de == nil {
			logger.Ctx(ctx).Error().Err(err).Str("code", req.Code).Msg("redeem failed unexpectedly")
			return nil, domain.ErrRedeemFailed
		}
		return nil, de
	}
	return result, nil
}

func (s *RedemptionService) redeem(ctx context.Context, req *RedeemRequest) (*RedeemResult, error) {
	// 1. 规范化输入
	address, err := domain.NormalizeAddress(req.Address)
	if err != nil {
		return nil, err
	}
	normalized := domain.NormalizeCode(req.Code)
	if normalized == "" {
		return nil, domain.ErrCodeRequired
	}

	// 2. 查码和批次
	code, err := s.repo.FindCodeByCode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	now := s.now()

	// 3-4. 状态检查，exhausted 交给容量检查
	if code.Batch != nil && code.Batch.Status != domain.StatusActive && code.Batch.Status != domain.StatusExhausted {
		return nil, domain.StatusError("batch", code.Batch.Status)
	}
	if code.Status != domain.StatusActive && code.Status != domain.StatusExhausted {
		return nil, domain.StatusError("code", code.Status)
	}

	// 5. 生效窗口，过期优先于容量
	startsAt, expiresAt, expiryFromBatch := code.EffectiveWindow()
	if startsAt != nil && now.Before(*startsAt) {
		return nil, domain.ErrCodeNotStarted
	}
	if expiresAt != nil && !now.Before(*expiresAt) {
		s.markExpired(ctx, code, expiryFromBatch)
		return nil, domain.ErrCodeExpired
	}

	// 6. 单次兑换的重复请求直接返回已有结果
	if code.PerUserLimit() <= 1 {
		existing, err := s.repo.FindSuccessRecord(ctx, code.ID, address)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return duplicateResult(existing), nil
		}
	}

	// 7. 资格规则
	if err := s.checkEligibility(ctx, code, address, now); err != nil {
		return nil, err
	}

	// 8. 容量预检查，满了顺手把状态翻成 exhausted
	if code.UsedUp() {
		if err := s.repo.MarkCodeExhausted(ctx, code.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("code_id", code.ID).Msg("mark code exhausted failed")
		}
		return nil, domain.ErrCodeUsedUp
	}
	if code.Batch.UsedUp() {
		if err := s.repo.MarkBatchExhausted(ctx, code.Batch.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("batch_id", code.Batch.ID).Msg("mark batch exhausted failed")
		}
		return nil, domain.ErrBatchUsedUp
	}

	rewardType, payload := code.EffectiveReward()
	reward, err := domain.ResolveReward(rewardType, payload)
	if err != nil {
		return nil, err
	}

	// 9. 原子预占
	rec := &domain.Record{
		ID:            uuid.NewString(),
		CodeID:        code.ID,
		BatchID:       code.BatchID,
		UserAddress:   address,
		RewardType:    reward.Kind(),
		RewardPayload: reward.Payload(),
		IP:            req.IP,
		UserAgent:     req.UserAgent,
	}
	if err := s.repo.Reserve(ctx, domain.Reservation{Code: code, Record: rec, Now: now}); err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("record.id", rec.ID))

	// 10. 发放并落终态
	summary, err := s.applyAndSettle(ctx, code, rec, reward, sourceRedeem)
	if err != nil {
		return nil, err
	}
	return &RedeemResult{RecordID: rec.ID, Reward: summary}, nil
}

func duplicateResult(rec *domain.Record) *RedeemResult {
	summary := rec.Meta.Reward
	if summary == nil {
		summary = &domain.RewardSummary{Type: rec.RewardType}
	}
	return &RedeemResult{RecordID: rec.ID, Reward: summary, Duplicated: true}
}

func (s *RedemptionService) markExpired(ctx context.Context, code *domain.Code, expiryFromBatch bool) {
	if err := s.repo.MarkCodeExpired(ctx, code.ID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Uint64("code_id", code.ID).Msg("mark code expired failed")
	}
	if expiryFromBatch && code.BatchID != nil {
		if err := s.repo.MarkBatchExpired(ctx, *code.BatchID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("batch_id", *code.BatchID).Msg("mark batch expired failed")
		}
	}
}

func (s *RedemptionService) checkEligibility(ctx context.Context, code *domain.Code, address string, now time.Time) error {
	if code.Batch == nil || code.Batch.EligibilityRule == "" || s.rules == nil {
		return nil
	}
	ok, err := s.rules.Evaluate(ctx, code.Batch.EligibilityRule, domain.EligibilityFact{
		Address: address,
		Code:    code.Code,
		BatchID: code.Batch.ID,
		Now:     now,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("batch_id", code.Batch.ID).Msg("eligibility rule is broken")
		return domain.ErrRedeemFailed
	}
	if !ok {
		return domain.ErrCodeNotEligible
	}
	return nil
}

// applyAndSettle 在脱离调用方取消信号的 context 上发放奖励，然后落终态；失败时补偿。
// 编排器和补偿扫描共用这一段，只有真正把记录从 pending 迁走的一方才会回退计数
func (s *RedemptionService) applyAndSettle(ctx context.Context, code *domain.Code, rec *domain.Record, reward domain.Reward, source string) (*domain.RewardSummary, error) {
	detached := context.WithoutCancel(ctx)
	applyCtx, cancel := context.WithTimeout(detached, s.applyTimeout)
	defer cancel()

	start := time.Now()
	summary, detail, applyErr := s.applicator.Apply(applyCtx, reward, rec.UserAddress, rec.ID)
	s.metrics.ObserveApply(string(reward.Kind()), time.Since(start))

	if applyErr == nil {
		s.complete(detached, code, rec, summary, detail, source)
		return summary, nil
	}

	de := domain.AsError(applyErr, domain.ErrRewardFailed)
	logger.Ctx(ctx).Error().Err(applyErr).
		Str("record_id", rec.ID).
		Str("reward_type", string(reward.Kind())).
		Str("error_code", de.Code).
		Msg("reward apply failed, compensating")
	s.fail(detached, code, rec, de, applyErr, source)
	return nil, de
}

func (s *RedemptionService) complete(ctx context.Context, code *domain.Code, rec *domain.Record, summary *domain.RewardSummary, detail map[string]any, source string) {
	log := logger.Ctx(ctx)
	ok, err := s.repo.CompleteRecord(ctx, rec.ID, domain.RecordMeta{Reward: summary, Detail: detail})
	switch {
	case err != nil:
		// 奖励已经到账，记录留在 pending，由补偿扫描幂等重放后落终态
		log.Error().Err(err).Str("record_id", rec.ID).Msg("complete record failed")
		return
	case !ok:
		log.Warn().Str("record_id", rec.ID).Msg("record already finalized")
		return
	}

	if err := s.repo.MarkCodeExhausted(ctx, code.ID); err != nil {
		log.Warn().Err(err).Uint64("code_id", code.ID).Msg("mark code exhausted failed")
	}
	if rec.BatchID != nil {
		if err := s.repo.MarkBatchExhausted(ctx, *rec.BatchID); err != nil {
			log.Warn().Err(err).Uint64("batch_id", *rec.BatchID).Msg("mark batch exhausted failed")
		}
	}
	s.publish(ctx, code, rec, domain.RecordSuccess, "", source)
}

func (s *RedemptionService) fail(ctx context.Context, code *domain.Code, rec *domain.Record, de *domain.Error, cause error, source string) {
	log := logger.Ctx(ctx)
	ok, err := s.repo.FailRecord(ctx, rec.ID, domain.RecordMeta{
		Error:  de.Code,
		Detail: map[string]any{"error": cause.Error()},
	})
	switch {
	case err != nil:
		log.Error().Err(err).Str("record_id", rec.ID).Msg("fail record failed, leaving it to the sweeper")
		s.metrics.ObserveCompensation("skipped")
		return
	case !ok:
		log.Warn().Str("record_id", rec.ID).Msg("record already finalized, skip compensation")
		s.metrics.ObserveCompensation("skipped")
		return
	}

	now := s.now()
	release := domain.Release{
		CodeID:      code.ID,
		CodeRestore: restoreStatus(code.ExpiredAt(now)),
		BatchID:     rec.BatchID,
		ReleasedAt:  now,
	}
	if code.Batch != nil {
		release.BatchRestore = restoreStatus(code.Batch.ExpiresAt != nil && !now.Before(*code.Batch.ExpiresAt))
	}
	if err := s.repo.Release(ctx, release); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID).Msg("compensation failed")
		s.metrics.ObserveCompensation("error")
	} else {
		s.metrics.ObserveCompensation("ok")
	}
	s.publish(ctx, code, rec, domain.RecordFailed, de.Code, source)
}

func restoreStatus(expired bool) domain.Status {
	if expired {
		return domain.StatusExpired
	}
	return domain.StatusActive
}

func (s *RedemptionService) publish(ctx context.Context, code *domain.Code, rec *domain.Record, status domain.RecordStatus, errCode, source string) {
	if s.events == nil {
		return
	}
	event := &domain.RedemptionEvent{
		RecordID:    rec.ID,
		Code:        code.Code,
		CodeID:      code.ID,
		BatchID:     rec.BatchID,
		UserAddress: rec.UserAddress,
		RewardType:  rec.RewardType,
		Status:      status,
		Error:       errCode,
		Source:      source,
		OccurredAt:  s.now(),
	}
	if err := s.events.PublishRedemption(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("publish redemption event failed")
	}
}
