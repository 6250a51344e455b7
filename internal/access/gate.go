package access

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Intent int

const (
	IntentJoin Intent = iota
	IntentPublish
	IntentReceive
)

func (i Intent) String() string {
	switch i {
	case IntentJoin:
		return "join"
	case IntentPublish:
		return "publish"
	case IntentReceive:
		return "receive"
	}
	return "unknown"
}

// Request carries everything the gate needs for one decision.
type Request struct {
	Identity  *Identity
	RoomID    string
	Intent    Intent
	Passcode  *string // join only
	SegmentID string  // join only, course lesson requested for free preview

	// publish/receive are decided locally from the caller's membership and
	// the room's last known policy.
	IsMember bool
	Policy   *Policy
}

// Gate is the authorization decision point consulted before any state
// change or broadcast. Joins always go to the store; nothing is cached.
type Gate struct {
	store   PolicyStore
	timeout time.Duration
}

func NewGate(store PolicyStore, timeout time.Duration) *Gate {
	return &Gate{store: store, timeout: timeout}
}

func (g *Gate) Authorize(ctx context.Context, req Request) Decision {
	switch req.Intent {
	case IntentJoin:
		return g.authorizeJoin(ctx, req)
	case IntentPublish:
		if req.Identity == nil {
			return deny(ReasonAnonymousPublishDenied)
		}
		if !req.IsMember {
			return deny(ReasonNotAMember)
		}
		return permit(req.Policy)
	case IntentReceive:
		if !req.IsMember {
			return deny(ReasonNotAMember)
		}
		if req.Identity == nil && !req.Policy.IsPublic() {
			return deny(ReasonAuthenticationRequired)
		}
		return permit(req.Policy)
	}
	return deny(ReasonAccessCheckFailed)
}

func (g *Gate) authorizeJoin(ctx context.Context, req Request) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	policy, err := bounded(ctx, func(ctx context.Context) (*Policy, error) {
		return g.store.LookupPolicy(ctx, req.RoomID)
	})
	if errors.Is(err, ErrRoomNotFound) {
		return deny(ReasonRoomNotFound)
	}
	if err != nil || policy == nil {
		zap.L().Warn("access.policy_lookup_failed", zap.String("room", req.RoomID), zap.Error(err))
		return deny(ReasonAccessCheckFailed)
	}

	if policy.IsPublic() {
		return permit(policy)
	}
	if req.Identity == nil {
		return deny(ReasonAuthenticationRequired)
	}

	switch policy.Kind {
	case KindCommunity:
		return g.checkPasscode(policy, req.Passcode)
	case KindCourse:
		return g.checkEnrollment(ctx, policy, req)
	}
	zap.L().Warn("access.unknown_room_kind", zap.String("room", req.RoomID), zap.String("kind", string(policy.Kind)))
	return deny(ReasonAccessCheckFailed)
}

const maxPasscodeLen = 72

func (g *Gate) checkPasscode(policy *Policy, passcode *string) Decision {
	if passcode == nil || *passcode == "" {
		return deny(ReasonPasscodeRequired)
	}
	if len(policy.PasscodeHash) == 0 {
		zap.L().Warn("access.passcode_missing", zap.String("room", policy.RoomID))
		return deny(ReasonAccessCheckFailed)
	}
	// bcrypt only looks at the first 72 bytes, and no stored passcode is longer.
	if len(*passcode) > maxPasscodeLen {
		return deny(ReasonInvalidPasscode)
	}
	if err := bcrypt.CompareHashAndPassword(policy.PasscodeHash, []byte(*passcode)); err != nil {
		return deny(ReasonInvalidPasscode)
	}
	return permit(policy)
}

func (g *Gate) checkEnrollment(ctx context.Context, policy *Policy, req Request) Decision {
	userID := req.Identity.UserID
	if policy.OwnerID != "" && policy.OwnerID == userID {
		return permit(policy)
	}

	enrolled, err := bounded(ctx, func(ctx context.Context) (bool, error) {
		return g.store.IsEnrolled(ctx, policy.RoomID, userID)
	})
	if err != nil {
		zap.L().Warn("access.enrollment_check_failed", zap.String("room", policy.RoomID), zap.Error(err))
		return deny(ReasonAccessCheckFailed)
	}
	if enrolled {
		return permit(policy)
	}

	if req.SegmentID != "" {
		free, err := bounded(ctx, func(ctx context.Context) (bool, error) {
			return g.store.IsFreePreview(ctx, policy.RoomID, req.SegmentID)
		})
		if err != nil {
			zap.L().Warn("access.preview_check_failed", zap.String("room", policy.RoomID), zap.Error(err))
			return deny(ReasonAccessCheckFailed)
		}
		if free {
			return permit(policy)
		}
	}
	return deny(ReasonNotEnrolled)
}

// bounded runs fn and gives up when ctx is done, even if fn ignores ctx.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
