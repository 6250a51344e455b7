package history

import (
	"context"
	"time"

	"proconnect/internal/redis/redis_functions"
	"proconnect/internal/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	Stream      = "chat_stream"
	CountersKey = "rooms:message_count"

	writeTimeout = 1500 * time.Millisecond
)

// functionCaller is the slice of *redis.Client the sink needs.
type functionCaller interface {
	FCall(ctx context.Context, function string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisSink records accepted messages into the chat stream. Record never
// blocks the relay: when the queue is full the message is dropped and logged.
type RedisSink struct {
	rdc    functionCaller
	queue  chan relay.Message
	maxLen int64
}

var _ relay.Sink = (*RedisSink)(nil)

func NewRedisSink(rdc functionCaller, buffer int, maxLen int64) *RedisSink {
	return &RedisSink{rdc: rdc, queue: make(chan relay.Message, buffer), maxLen: maxLen}
}

func (s *RedisSink) Record(msg relay.Message) {
	select {
	case s.queue <- msg:
	default:
		zap.L().Warn("history.sink_full", zap.String("room", msg.RoomID), zap.Uint64("seq", msg.Seq))
	}
}

// Run drains the queue until ctx is done.
func (s *RedisSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.write(ctx, msg); err != nil {
				zap.L().Warn("history.record_failed", zap.String("room", msg.RoomID), zap.Error(err))
			}
		}
	}
}

func (s *RedisSink) write(ctx context.Context, msg relay.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	sender := ""
	if msg.Sender != nil {
		sender = msg.Sender.UserID
	}
	return s.rdc.FCall(ctx, redis_functions.ChatRecord,
		[]string{Stream, CountersKey},
		msg.RoomID,
		msg.ConnID,
		sender,
		string(msg.Payload),
		msg.Seq,
		msg.SentAt.UnixMilli(),
		s.maxLen,
	).Err()
}
