package mq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

const voteTag = "vote"

// RocketBroker publishes vote events to a RocketMQ topic. Subscribers use a
// broadcasting push consumer so that each server instance receives every
// event for its own websocket clients.
type RocketBroker struct {
	nameServer []string
	group      string
	producer   rocketmq.Producer

	mu        sync.Mutex
	closed    bool
	consumers []rocketmq.PushConsumer
}

// NewRocketBroker starts a producer against nameServer.
func NewRocketBroker(nameServer, group string) (*RocketBroker, error) {
	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName(group+"_producer"),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer %s: %w", nameServer, err)
	}

	return &RocketBroker{
		nameServer: []string{nameServer},
		group:      group,
		producer:   p,
	}, nil
}

func (b *RocketBroker) Name() string { return "rocketmq" }

// Publish sends synchronously. Events of one question share a sharding key
// so they land on the same queue in order.
func (b *RocketBroker) Publish(ctx context.Context, ev VoteEvent) error {
	msg, err := newRocketMessage(ev)
	if err != nil {
		return err
	}

	res, err := b.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send vote event %s: %w", ev.MessageID, err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send vote event %s: status %d", ev.MessageID, res.Status)
	}
	return nil
}

// newRocketMessage tags ev for the consumer selector, keys it by message id
// and shards it by question.
func newRocketMessage(ev VoteEvent) (*primitive.Message, error) {
	body, err := encodeEvent(ev)
	if err != nil {
		return nil, err
	}
	return primitive.NewMessage(TopicVoteEvents, body).
		WithTag(voteTag).
		WithKeys([]string{ev.MessageID}).
		WithShardingKey(strconv.FormatUint(uint64(ev.QuestionID), 10)), nil
}

// Subscribe starts a broadcasting consumer with its own group for h.
func (b *RocketBroker) Subscribe(h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer(b.nameServer),
		consumer.WithGroupName(fmt.Sprintf("%s_live_%d", b.group, len(b.consumers))),
		consumer.WithConsumerModel(consumer.BroadCasting),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	)
	if err != nil {
		return fmt.Errorf("create rocketmq consumer: %w", err)
	}

	err = c.Subscribe(TopicVoteEvents, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: voteTag,
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, m := range msgs {
			ev, err := decodeEvent(m.Body)
			if err != nil {
				// Redelivery cannot fix a malformed body.
				slog.Warn("dropping malformed vote event", "msg_id", m.MsgId, "error", err)
				continue
			}
			deliver(h, ev)
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicVoteEvents, err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("start rocketmq consumer: %w", err)
	}

	b.consumers = append(b.consumers, c)
	return nil
}

// Close shuts down the consumers and then the producer.
func (b *RocketBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, c := range b.consumers {
		if err := c.Shutdown(); err != nil {
			slog.Warn("shutting down rocketmq consumer", "error", err)
		}
	}
	b.consumers = nil
	return b.producer.Shutdown()
}
