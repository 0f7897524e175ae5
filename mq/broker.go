package mq

import (
	"context"
	"log/slog"

	"polls-backend/config"
)

// NewBroker builds the broker named by cfg.MQDriver. A broker that cannot
// reach its server is replaced by a MemoryBroker, so live results keep
// working on a single instance.
func NewBroker(ctx context.Context, cfg config.Config) Broker {
	switch cfg.MQDriver {
	case config.MQRedis:
		client, err := NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Warn("redis broker unavailable, using in-memory broker", "addr", cfg.RedisAddr, "error", err)
			break
		}
		slog.Info("vote events on redis", "addr", cfg.RedisAddr, "channel", TopicVoteEvents)
		return NewRedisBroker(client)

	case config.MQRocketMQ:
		b, err := NewRocketBroker(cfg.RocketMQNameSrv, cfg.RocketMQGroupName)
		if err != nil {
			slog.Warn("rocketmq broker unavailable, using in-memory broker", "namesrv", cfg.RocketMQNameSrv, "error", err)
			break
		}
		slog.Info("vote events on rocketmq", "namesrv", cfg.RocketMQNameSrv, "topic", TopicVoteEvents)
		return b
	}

	return NewMemoryBroker()
}
