package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"proconnect/internal/access"
	"proconnect/internal/redis/redis_functions"
	"proconnect/internal/relay"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fcall struct {
	fn   string
	keys []string
	args []interface{}
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []fcall
	err   error
	seen  chan struct{}
}

func (f *fakeCaller) FCall(_ context.Context, fn string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	f.calls = append(f.calls, fcall{fn, keys, args})
	f.mu.Unlock()
	if f.seen != nil {
		f.seen <- struct{}{}
	}
	return redis.NewCmdResult("1-0", f.err)
}

func TestRedisSink_WritesThroughChatRecord(t *testing.T) {
	fc := &fakeCaller{seen: make(chan struct{}, 4)}
	sink := NewRedisSink(fc, 4, 5000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	at := time.UnixMilli(1_700_000_000_123)
	sink.Record(relay.Message{
		RoomID:  "general",
		ConnID:  "c1",
		Sender:  &access.Identity{UserID: "u1"},
		Payload: json.RawMessage(`{"text":"hi"}`),
		Seq:     7,
		SentAt:  at,
	})
	sink.Record(relay.Message{RoomID: "general", ConnID: "c2", Payload: json.RawMessage(`"x"`), Seq: 8, SentAt: at})

	for i := 0; i < 2; i++ {
		select {
		case <-fc.seen:
		case <-time.After(time.Second):
			t.Fatal("sink did not write")
		}
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.calls, 2)
	first := fc.calls[0]
	require.Equal(t, redis_functions.ChatRecord, first.fn)
	require.Equal(t, []string{Stream, CountersKey}, first.keys)
	require.Equal(t, []interface{}{"general", "c1", "u1", `{"text":"hi"}`, uint64(7), int64(1_700_000_000_123), int64(5000)}, first.args)
	// anonymous sender is recorded as an empty id
	require.Equal(t, "", fc.calls[1].args[2])
}

func TestRedisSink_RecordNeverBlocks(t *testing.T) {
	sink := NewRedisSink(&fakeCaller{}, 1, 10)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sink.Record(relay.Message{RoomID: "r", Seq: uint64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	require.Len(t, sink.queue, 1)
}

func TestRedisSink_WriteErrorsAreSwallowed(t *testing.T) {
	fc := &fakeCaller{err: errors.New("NOSCRIPT"), seen: make(chan struct{}, 2)}
	sink := NewRedisSink(fc, 2, 10)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { sink.Run(ctx); close(stopped) }()

	sink.Record(relay.Message{RoomID: "r", Seq: 1})
	sink.Record(relay.Message{RoomID: "r", Seq: 2})
	for i := 0; i < 2; i++ {
		<-fc.seen
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
