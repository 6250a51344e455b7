package roomwatcher

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel carries the id of every community or course deleted on the CRUD side.
const Channel = "rooms:retired"

type Retirer interface {
	Retire(roomID string)
}

// Run listens for retired rooms and evicts their members.
// Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, r Retirer) {
	ps := rdb.Subscribe(ctx, Channel)
	defer ps.Close()
	consume(ctx, ps.Channel(), r)
}

func consume(ctx context.Context, ch <-chan *redis.Message, r Retirer) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			id := strings.TrimSpace(m.Payload)
			if id == "" {
				continue
			}
			zap.L().Info("roomwatcher.retired", zap.String("room", id))
			r.Retire(id)
		}
	}
}
