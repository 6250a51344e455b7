package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"proconnect/internal/access"
	"proconnect/internal/history"

	"github.com/redis/go-redis/v9"
)

type RoomDTO struct {
	ID         string `json:"id"         example:"general"`
	Kind       string `json:"kind"       example:"community"`
	Visibility string `json:"visibility" example:"public"`
	// Members currently joined on this node.
	Members  int   `json:"members"`
	Messages int64 `json:"messages"`
}

type MessageDTO struct {
	StreamID string          `json:"stream_id" example:"1700000000123-0"`
	RoomID   string          `json:"room_id"`
	ConnID   string          `json:"conn_id"`
	SenderID string          `json:"sender_id,omitempty"`
	Payload  json.RawMessage `json:"payload" swaggertype:"object"`
	Seq      uint64          `json:"seq"`
	SentAt   time.Time       `json:"sent_at" example:"2025-07-27T16:05:05Z"`
}

// Occupancy is the live view of the relay.
type Occupancy interface {
	Occupancy() map[string]int
}

// newestFirst sorts "<ms>-<n>" stream ids numerically.
const newestFirst = `split_part(stream_id, '-', 1)::bigint DESC, split_part(stream_id, '-', 2)::bigint DESC`

type IRoomService interface {
	GetRoom(ctx context.Context, id string) (*RoomDTO, error)
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]MessageDTO, error)
}

type roomService struct {
	rdc      *redis.Client
	db       *sql.DB
	policies access.PolicyStore
	live     Occupancy
}

var _ IRoomService = (*roomService)(nil)

func NewRoomService(rdc *redis.Client, db *sql.DB, policies access.PolicyStore, live Occupancy) IRoomService {
	return &roomService{rdc: rdc, db: db, policies: policies, live: live}
}

// GetRoom combines the room's policy, its live member count and the number of
// messages accepted so far. Unknown rooms return access.ErrRoomNotFound.
func (svc *roomService) GetRoom(ctx context.Context, id string) (*RoomDTO, error) {
	p, err := svc.policies.LookupPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := svc.rdc.HGet(ctx, history.CountersKey, id).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("message count %s: %w", id, err)
	}
	return &RoomDTO{
		ID:         id,
		Kind:       string(p.Kind),
		Visibility: string(p.Visibility),
		Members:    svc.live.Occupancy()[id],
		Messages:   count,
	}, nil
}

// ListMessages pages persisted history, newest first. Order follows the
// stream entry id, which only grows; seq restarts with the room.
func (svc *roomService) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]MessageDTO, error) {
	if limit == 0 {
		limit = 50
	}
	const q = `SELECT stream_id, room_id, conn_id, coalesce(sender_id,''), payload, seq, sent_at
	             FROM chat_messages
	            WHERE room_id = $1
	         ORDER BY ` + newestFirst + `
	            LIMIT $2 OFFSET $3`
	rows, err := svc.db.QueryContext(ctx, q, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]MessageDTO, 0, limit)
	for rows.Next() {
		var (
			m       MessageDTO
			payload []byte
			seq     int64
		)
		if err := rows.Scan(&m.StreamID, &m.RoomID, &m.ConnID, &m.SenderID, &payload, &seq, &m.SentAt); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		m.Seq = uint64(seq)
		list = append(list, m)
	}
	return list, rows.Err()
}
