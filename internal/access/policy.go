//go:generate go run go.uber.org/mock/mockgen -source=policy.go -destination=../mocks/mock_policy_store.go -package=mocks
package access

import (
	"context"
	"errors"
)

// Kind is the external entity backing a room.
type Kind string

const (
	KindCommunity Kind = "community"
	KindCourse    Kind = "course"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// ErrRoomNotFound is returned by a PolicyStore when no community or course
// carries the requested id.
var ErrRoomNotFound = errors.New("room not found")

// Identity is an authenticated user. A nil *Identity is an anonymous connection.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Policy is the access policy of a room at the moment it was looked up.
//
// Private communities are passcode protected, private courses are
// enrollment gated.
type Policy struct {
	RoomID       string
	Kind         Kind
	Visibility   Visibility
	PasscodeHash []byte // bcrypt, private communities only
	OwnerID      string // community owner or course instructor
}

func (p *Policy) IsPublic() bool {
	return p != nil && p.Visibility == Public
}

// PolicyStore answers the membership facts the gate needs. Implementations
// must honour ctx; the gate still bounds every call on its own.
type PolicyStore interface {
	LookupPolicy(ctx context.Context, roomID string) (*Policy, error)
	IsEnrolled(ctx context.Context, courseID, userID string) (bool, error)
	IsFreePreview(ctx context.Context, courseID, segmentID string) (bool, error)
}
