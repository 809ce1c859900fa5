package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"promocode/internal/pkg/logger"
	"promocode/internal/service/redemption/domain"
)

var errAttemptsExhausted = errors.New("max reconciliation attempts exceeded")

// Locker 是扫描任务的领导权锁，多实例部署时只有拿到锁的实例执行扫描
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock() error
}

// SweeperConfig 控制补偿扫描的节奏
type SweeperConfig struct {
	Interval    time.Duration // 扫描间隔
	StaleAfter  time.Duration // pending 超过这个时间视为卡住
	BatchSize   int           // 每次最多处理的记录数
	MaxAttempts int           // 超过后直接判失败并补偿
	Concurrency int
}

func (c *SweeperConfig) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Sweeper 重试在发放阶段崩溃、一直停在 pending 的记录。
// 每种发放都以记录 ID 幂等，所以重放是安全的
type Sweeper struct {
	svc    *RedemptionService
	locker Locker
	cfg    SweeperConfig
}

// NewSweeper locker 为 nil 时每个实例都会扫描，依赖 ClaimStale 的条件更新避免重复处理
func NewSweeper(svc *RedemptionService, locker Locker, cfg SweeperConfig) *Sweeper {
	cfg.withDefaults()
	return &Sweeper{svc: svc, locker: locker, cfg: cfg}
}

// Run 按固定间隔扫描，直到 ctx 结束
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	logger.L().Printf("Reconciliation sweeper started, interval=%s staleAfter=%s", w.cfg.Interval, w.cfg.StaleAfter)
	for {
		select {
		case <-ctx.Done():
			logger.L().Printf("Reconciliation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				logger.L().Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep 执行一轮扫描，返回本轮认领并处理的记录数
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := w.svc.tracer.Start(ctx, "sweeper.Sweep")
	defer span.End()

	if w.locker != nil {
		ok, err := w.locker.TryLock(ctx)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("not the leader, skip")
			return 0, nil
		}
		defer func() {
			if err := w.locker.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("release sweeper lock failed")
			}
		}()
	}

	now := w.svc.now()
	cutoff := now.Add(-w.cfg.StaleAfter)
	records, err := w.svc.repo.ListStalePending(ctx, cutoff, w.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("sweeper.candidates", len(records)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	claimed := make([]bool, len(records))
	for i, rec := range records {
		g.Go(func() error {
			ok, err := w.svc.repo.ClaimStale(gctx, rec.ID, cutoff, w.svc.now())
			if err != nil {
				return err
			}
			if !ok {
				w.svc.metrics.ObserveSweep("lost_claim")
				return nil
			}
			claimed[i] = true
			rec.Attempts++
			w.reconcile(gctx, rec)
			return nil
		})
	}
	err = g.Wait()

	n := 0
	for _, c := range claimed {
		if c {
			n++
		}
	}
	span.SetAttributes(attribute.Int("sweeper.claimed", n))
	return n, err
}

// reconcile 处理一条已认领的记录
func (w *Sweeper) reconcile(ctx context.Context, rec *domain.Record) {
	log := logger.Ctx(ctx).With().Str("record_id", rec.ID).Int("attempts", rec.Attempts).Logger()
	trace.SpanFromContext(ctx).AddEvent("reconcile", trace.WithAttributes(attribute.String("record.id", rec.ID)))

	code, err := w.svc.repo.FindCodeByID(ctx, rec.CodeID)
	if err != nil {
		log.Error().Err(err).Msg("load code for stale record failed")
		w.svc.metrics.ObserveSweep("error")
		return
	}

	reward, err := domain.ResolveReward(rec.RewardType, rec.RewardPayload)
	if err != nil {
		log.Error().Err(err).Msg("stale record carries an invalid reward snapshot")
		w.svc.fail(ctx, code, rec, domain.AsError(err, domain.ErrRewardFailed), err, sourceSweeper)
		w.svc.metrics.ObserveSweep("failed")
		return
	}

	if rec.Attempts > w.cfg.MaxAttempts {
		log.Warn().Msg("stale record exceeded max attempts, failing it")
		w.svc.fail(ctx, code, rec, domain.ErrRewardFailed, errAttemptsExhausted, sourceSweeper)
		w.svc.metrics.ObserveSweep("failed")
		return
	}

	if _, err := w.svc.applyAndSettle(ctx, code, rec, reward, sourceSweeper); err != nil {
		log.Warn().Err(err).Msg("stale record failed on retry")
		w.svc.metrics.ObserveSweep("failed")
		return
	}
	log.Info().Msg("stale record reconciled")
	w.svc.metrics.ObserveSweep("success")
}
