package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient dials Redis and pings it. The pool is sized for the history
// writer, the stream tailer, the occupancy mirror and the retirement
// subscription all sharing one client.
func NewRedisClient(ctx context.Context, host string, port int) (*redis.Client, error) {
	maxPool := min(runtime.NumCPU()*8, 512)

	rc := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", host, port),
		PoolSize:   maxPool,
		ClientName: "proconnect-relay",
		// XREAD BLOCK holds a connection for up to 2 s.
		ReadTimeout: 5 * time.Second,
	})

	ctx, cancelFunc := context.WithTimeout(ctx, 5*time.Second)
	defer cancelFunc()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("redis_connect", zap.String("host", host), zap.Int("port", port), zap.Error(err))
		return nil, err
	}
	return rc, nil
}
