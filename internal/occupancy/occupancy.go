package occupancy

import (
	"context"
	"sort"
	"time"

	"proconnect/internal/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	Key         = "rooms:occupancy"
	pipeTimeout = 1500 * time.Millisecond
)

// Source is the slice of the relay engine the mirror reads.
type Source interface {
	Occupancy() map[string]int
	Rooms() *relay.RoomTable
}

// Run mirrors per-room member counts into Redis every interval and drops the
// cached policy of rooms nobody is in.
func Run(ctx context.Context, rdc *redis.Client, src Source, every time.Duration) {
	tk := time.NewTicker(every)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if err := syncOnce(ctx, rdc, src.Occupancy()); err != nil {
					zap.L().Warn("occupancy.sync_failed", zap.Error(err))
				}
				if n := src.Rooms().ReleaseIdlePolicies(); n > 0 {
					zap.L().Debug("occupancy.policies_released", zap.Int("rooms", n))
				}
			}
		}
	}()
}

// syncOnce replaces the hash in one MULTI/EXEC so readers never see it half written.
func syncOnce(ctx context.Context, rdc *redis.Client, counts map[string]int) error {
	ctx, cancel := context.WithTimeout(ctx, pipeTimeout)
	defer cancel()

	pipe := rdc.TxPipeline()
	pipe.Del(ctx, Key)
	if len(counts) > 0 {
		pipe.HSet(ctx, Key, flatten(counts)...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func flatten(counts map[string]int) []interface{} {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]interface{}, 0, 2*len(ids))
	for _, id := range ids {
		out = append(out, id, counts[id])
	}
	return out
}
