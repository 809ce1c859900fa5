package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"promocode/internal/service/redemption/domain"
	"promocode/internal/service/redemption/infrastructure"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infrastructure.AutoMigrate(db))
	return db
}

// applyFunc 是可编程的 Applicator
type applyFunc func(ctx context.Context, reward domain.Reward, address, recordID string) (*domain.RewardSummary, map[string]any, error)

func (f applyFunc) Apply(ctx context.Context, reward domain.Reward, address, recordID string) (*domain.RewardSummary, map[string]any, error) {
	return f(ctx, reward, address, recordID)
}

// echoApplicator 总是成功，返回奖励的原样摘要
var echoApplicator = applyFunc(func(_ context.Context, reward domain.Reward, _, _ string) (*domain.RewardSummary, map[string]any, error) {
	summary := &domain.RewardSummary{Type: reward.Kind()}
	switch r := reward.(type) {
	case domain.CustomReward:
		summary.Message = r.Message
	case domain.MantouReward:
		summary.Amount = r.Amount
	case domain.DiamondReward:
		summary.Amount = r.Amount
	}
	return summary, nil, nil
})

// fakeLedger 以 idempotencyKey 去重的内存账本
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	seen     map[string]*domain.CreditResult
	calls    int
	fail     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[string]int64{}, seen: map[string]*domain.CreditResult{}}
}

func (l *fakeLedger) Credit(_ context.Context, address string, amount int64, key, _ string) (*domain.CreditResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.fail != nil {
		return nil, l.fail
	}
	if prev, ok := l.seen[key]; ok {
		dup := *prev
		dup.Duplicated = true
		return &dup, nil
	}
	l.balances[address] += amount
	res := &domain.CreditResult{NewBalance: l.balances[address], SettlementRef: "0xdigest-" + key}
	l.seen[key] = res
	return res, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.RedemptionEvent
}

func (f *fakeEvents) PublishRedemption(_ context.Context, e *domain.RedemptionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEvents) all() []*domain.RedemptionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.RedemptionEvent(nil), f.events...)
}

type fixture struct {
	db     *gorm.DB
	repo   *infrastructure.GormRedemptionRepository
	events *fakeEvents
	svc    *RedemptionService
}

func newFixture(t *testing.T, applicator Applicator, rules domain.RuleEngine) *fixture {
	t.Helper()
	db := newTestDB(t)
	repo := infrastructure.NewGormRedemptionRepository(db)
	events := &fakeEvents{}
	svc := NewRedemptionService(repo, applicator, rules, events, nil, otel.Tracer("test"), time.Second)
	return &fixture{db: db, repo: repo, events: events, svc: svc}
}

func (f *fixture) seed(t *testing.T, batch *domain.Batch, code *domain.Code) *domain.Code {
	t.Helper()
	ctx := context.Background()
	if batch != nil {
		require.NoError(t, f.repo.CreateBatch(ctx, batch))
		code.BatchID = &batch.ID
	}
	require.NoError(t, f.repo.CreateCode(ctx, code))
	found, err := f.repo.FindCodeByID(ctx, code.ID)
	require.NoError(t, err)
	return found
}

func (f *fixture) reload(t *testing.T, id uint64) *domain.Code {
	t.Helper()
	code, err := f.repo.FindCodeByID(context.Background(), id)
	require.NoError(t, err)
	return code
}

func customCode(code string) *domain.Code {
	return &domain.Code{
		Code:          code,
		RewardType:    domain.RewardCustom,
		RewardPayload: map[string]any{"message": "thanks"},
	}
}

func addr(n int) string {
	return fmt.Sprintf("0x%x", n)
}

func int64Ptr(v int64) *int64 { return &v }

func requireDomainError(t *testing.T, err error, want *domain.Error) {
	t.Helper()
	require.Error(t, err)
	got := domain.AsError(err, nil)
	require.NotNil(t, got, "expected *domain.Error, got %v", err)
	require.Equal(t, want.Code, got.Code)
	require.Equal(t, want.Status, got.Status)
}
