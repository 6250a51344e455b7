package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	batchSize = 100
	readBlock = 2000 * time.Millisecond
)

// Syncer tails the chat stream and persists every entry into chat_messages.
type Syncer struct {
	rdc    *redis.Client
	db     *sql.DB
	lastID string
}

func NewSyncer(rdc *redis.Client, db *sql.DB) *Syncer {
	return &Syncer{rdc: rdc, db: db, lastID: "0-0"}
}

// Run starts the tail loop in its own goroutine.
func (s *Syncer) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := s.step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("history.sync_failed", zap.String("last_id", s.lastID), zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if n > 0 {
				zap.L().Debug("history.synced", zap.Int("entries", n), zap.String("last_id", s.lastID))
			}
		}
	}()
}

// step reads one batch and persists it. lastID only advances once the batch
// is committed, so a failed batch is read again.
func (s *Syncer) step(ctx context.Context) (int, error) {
	res, err := s.rdc.XRead(ctx, &redis.XReadArgs{
		Streams: []string{Stream, s.lastID},
		Count:   batchSize,
		Block:   readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xread: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return 0, nil
	}
	entries := res[0].Messages
	if err := persist(ctx, s.db, entries); err != nil {
		return 0, err
	}
	s.lastID = entries[len(entries)-1].ID
	return len(entries), nil
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO chat_messages (stream_id, room_id, conn_id, sender_id, payload, seq, sent_at)
	             VALUES ($1, $2, $3, nullif($4, ''), $5, $6, to_timestamp($7::double precision / 1000))
	             ON CONFLICT (stream_id) DO NOTHING`
	for _, m := range msgs {
		seq, _ := strconv.ParseUint(field(m, "seq"), 10, 64)
		at, _ := strconv.ParseInt(field(m, "at"), 10, 64)
		if _, err := tx.ExecContext(ctx, ins,
			m.ID, field(m, "room"), field(m, "conn"), field(m, "sender"), field(m, "payload"), int64(seq), at); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func field(m redis.XMessage, key string) string {
	v, _ := m.Values[key].(string)
	return v
}
