package worker

import (
	"context"
	"fmt"
	"os"

	"mailsync_server/internal/stream"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// StreamConsumer - Redis Stream → Worker Pool 연결
// =============================================================================

// StreamConsumer reads jobs off the Redis streams and feeds the pool. A
// message is acked once submitted; failures after that point are handled by
// the retry scheduler and watchdog, not stream redelivery.
type StreamConsumer struct {
	stream *stream.RedisStream
	pool   *Pool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewStreamConsumer(s *stream.RedisStream, pool *Pool) *StreamConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamConsumer{
		stream: s,
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start creates the consumer groups and begins consuming both streams.
func (c *StreamConsumer) Start() error {
	for _, name := range []string{stream.StreamMailSync, stream.StreamMailEmbed} {
		if err := c.stream.CreateGroup(c.ctx, name); err != nil {
			return fmt.Errorf("failed to create group for %s: %w", name, err)
		}
	}

	consumerName := consumerID()
	go c.stream.Consume(c.ctx, stream.StreamMailSync, consumerName, c.handle)
	go c.stream.Consume(c.ctx, stream.StreamMailEmbed, consumerName, c.handle)

	logger.Info("[StreamConsumer] Started as %s", consumerName)
	return nil
}

func (c *StreamConsumer) Stop() {
	logger.Info("[StreamConsumer] Stopping...")
	c.cancel()
}

func (c *StreamConsumer) handle(id string, data []byte) error {
	job, err := DecodeJob(data)
	if err != nil {
		// 디코딩 불가능한 메시지는 재전달해도 소용없으므로 ack 처리
		logger.Error("[StreamConsumer] Dropping undecodable message %s: %v", id, err)
		return nil
	}

	if !c.pool.Submit(job) {
		return fmt.Errorf("pool not accepting jobs")
	}
	return nil
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
