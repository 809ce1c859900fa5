package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"promocode/internal/pkg/redis"
	"promocode/internal/service/redemption/domain"
)

const creditScriptName = "points_credit"

// creditScript 原子地完成：幂等检查、余额自增、流水追加。
// KEYS[1] 余额  KEYS[2] 幂等标记  KEYS[3] 流水
// ARGV[1] 金额  ARGV[2] 流水条目  ARGV[3] 幂等标记 TTL 秒 (0 表示永久)  ARGV[4] 流水保留条数
// 返回 {余额, 是否重复}
const creditScript = `
local done = redis.call('GET', KEYS[2])
if done then
  return {tonumber(done), 1}
end
local balance = redis.call('INCRBY', KEYS[1], ARGV[1])
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[2], balance, 'EX', ARGV[3])
else
  redis.call('SET', KEYS[2], balance)
end
redis.call('LPUSH', KEYS[3], ARGV[2])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[4]) - 1)
return {balance, 0}
`

// PointsRedisAdapter 把积分账本放在 Redis 上，实现 domain.PointsLedger。
// 同一地址的所有 key 使用相同的 hash tag，cluster 模式下落在同一个 slot
type PointsRedisAdapter struct {
	client     *redis.Client
	dedupTTL   time.Duration
	journalLen int
	now        func() time.Time
}

func NewPointsRedisAdapter(client *redis.Client, dedupTTL time.Duration) (*PointsRedisAdapter, error) {
	if err := client.LoadScriptFromContent(creditScriptName, creditScript); err != nil {
		return nil, err
	}
	return &PointsRedisAdapter{client: client, dedupTTL: dedupTTL, journalLen: 1000, now: time.Now}, nil
}

type journalEntry struct {
	Amount int64  `json:"amount"`
	Ref    string `json:"ref"`
	Note   string `json:"note,omitempty"`
	At     int64  `json:"at"`
}

func balanceKey(address string) string { return fmt.Sprintf("points:{%s}:balance", address) }
func journalKey(address string) string { return fmt.Sprintf("points:{%s}:journal", address) }
func dedupKey(address, ref string) string {
	return fmt.Sprintf("points:{%s}:dedup:%s", address, ref)
}

// Credit 给地址加积分，idempotencyKey 相同的重复调用只生效一次
func (a *PointsRedisAdapter) Credit(ctx context.Context, address string, amount int64, idempotencyKey, note string) (*domain.CreditResult, error) {
	entry, err := json.Marshal(journalEntry{Amount: amount, Ref: idempotencyKey, Note: note, At: a.now().Unix()})
	if err != nil {
		return nil, errors.Wrap(err, "marshal journal entry")
	}
	res, err := a.client.RunScript(ctx, creditScriptName,
		[]string{balanceKey(address), dedupKey(address, idempotencyKey), journalKey(address)},
		amount, string(entry), int64(a.dedupTTL/time.Second), a.journalLen,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "credit %d points to %s", amount, address)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected credit script reply %v", res)
	}
	balance, _ := values[0].(int64)
	duplicated, _ := values[1].(int64)
	return &domain.CreditResult{NewBalance: balance, Duplicated: duplicated == 1}, nil
}

// balance 读取当前余额，不存在时为 0
func (a *PointsRedisAdapter) balance(ctx context.Context, address string) (int64, error) {
	v, err := a.client.GetClient().Get(ctx, balanceKey(address)).Int64()
	if err != nil {
		if redis.IsNil(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "get points balance")
	}
	return v, nil
}
