package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"promocode/internal/pkg/mq"
	"promocode/internal/service/redemption/domain"
)

// KafkaEventPublisher 把兑换结果写入分析 topic，消息 key 为用户地址，同一用户的事件保持有序
type KafkaEventPublisher struct {
	writer mq.Writer
}

func NewKafkaEventPublisher(writer mq.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) PublishRedemption(ctx context.Context, event *domain.RedemptionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal redemption event")
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.UserAddress), value); err != nil {
		return errors.Wrapf(err, "publish redemption event %s", event.RecordID)
	}
	return nil
}

// NoopEventPublisher 在没有配置 Kafka 时使用
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishRedemption(context.Context, *domain.RedemptionEvent) error {
	return nil
}
