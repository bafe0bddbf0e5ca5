package service

import (
	"context"
	"encoding/json"

	"edu_insight_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

const alertChannel = "alerts:gap"

// RedisAlertNotifier 通过 Redis 发布订阅向下游通知服务（邮件、站内信）广播预警。
type RedisAlertNotifier struct {
	Client *redis.Client
}

func NewRedisAlertNotifier(client *redis.Client) *RedisAlertNotifier {
	return &RedisAlertNotifier{Client: client}
}

func (n *RedisAlertNotifier) NotifyAlert(ctx context.Context, alert *model.CrossCourseGapAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return n.Client.Publish(ctx, alertChannel, payload).Err()
}

// NoopAlertNotifier 未配置 Redis 时的空实现。
type NoopAlertNotifier struct{}

func (NoopAlertNotifier) NotifyAlert(context.Context, *model.CrossCourseGapAlert) error { return nil }
