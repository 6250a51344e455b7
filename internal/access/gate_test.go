package access_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"proconnect/internal/access"
	"proconnect/internal/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func strPtr(s string) *string { return &s }

func privateCommunity(t *testing.T, id, passcode string) *access.Policy {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	require.NoError(t, err)
	return &access.Policy{RoomID: id, Kind: access.KindCommunity, Visibility: access.Private, PasscodeHash: hash}
}

func TestGate_JoinPublicRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPolicyStore(ctrl)
	gate := access.NewGate(store, time.Second)

	policy := &access.Policy{RoomID: "general", Kind: access.KindCommunity, Visibility: access.Public}
	store.EXPECT().LookupPolicy(gomock.Any(), "general").Return(policy, nil).Times(2)

	d := gate.Authorize(context.Background(), access.Request{RoomID: "general", Intent: access.IntentJoin})
	require.True(t, d.Permit, "anonymous join on a public room")
	require.Same(t, policy, d.Policy)

	d = gate.Authorize(context.Background(), access.Request{
		Identity: &access.Identity{UserID: "u1"}, RoomID: "general", Intent: access.IntentJoin,
	})
	require.True(t, d.Permit)
}

func TestGate_PasscodeExactness(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPolicyStore(ctrl)
	gate := access.NewGate(store, time.Second)

	store.EXPECT().LookupPolicy(gomock.Any(), "team").Return(privateCommunity(t, "team", "abc"), nil).AnyTimes()
	alice := &access.Identity{UserID: "alice"}

	cases := []struct {
		name     string
		passcode *string
		permit   bool
		reason   access.Reason
	}{
		{"exact match", strPtr("abc"), true, ""},
		{"case differs", strPtr("Abc"), false, access.ReasonInvalidPasscode},
		{"trailing space", strPtr("abc "), false, access.ReasonInvalidPasscode},
		{"empty string", strPtr(""), false, access.ReasonPasscodeRequired},
		{"missing", nil, false, access.ReasonPasscodeRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Authorize(context.Background(), access.Request{
				Identity: alice, RoomID: "team", Intent: access.IntentJoin, Passcode: tc.passcode,
			})
			require.Equal(t, tc.permit, d.Permit)
			require.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestGate_PasscodePastBcryptLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPolicyStore(ctrl)
	gate := access.NewGate(store, time.Second)

	long := strings.Repeat("a", 72)
	store.EXPECT().LookupPolicy(gomock.Any(), "vault").Return(privateCommunity(t, "vault", long), nil).AnyTimes()
	alice := &access.Identity{UserID: "alice"}

	cases := []struct {
		name     string
		passcode string
		permit   bool
	}{
		{"exact 72 bytes", long, true},
		{"extra suffix", long + "WRONG-SUFFIX", false},
		{"one extra byte", long + "a", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Authorize(context.Background(), access.Request{
				Identity: alice, RoomID: "vault", Intent: access.IntentJoin, Passcode: strPtr(tc.passcode),
			})
			require.Equal(t, tc.permit, d.Permit)
			if !tc.permit {
				require.Equal(t, access.ReasonInvalidPasscode, d.Reason)
			}
		})
	}
}

func TestGate_AnonymousJoinPrivateRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPolicyStore(ctrl)
	gate := access.NewGate(store, time.Second)

	store.EXPECT().LookupPolicy(gomock.Any(), "team").Return(privateCommunity(t, "team", "abc"), nil)

	d := gate.Authorize(context.Background(), access.Request{RoomID: "team", Intent: access.IntentJoin, Passcode: strPtr("abc")})
	require.False(t, d.Permit)
	require.Equal(t, access.ReasonAuthenticationRequired, d.Reason)
}

func TestGate_CourseEnrollment(t *testing.T) {
	course := &access.Policy{RoomID: "c1", Kind: access.KindCourse, Visibility: access.Private, OwnerID: "instructor"}

	t.Run("enrolled student is permitted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "c1").Return(course, nil)
		store.EXPECT().IsEnrolled(gomock.Any(), "c1", "stu").Return(true, nil)

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "stu"}, RoomID: "c1", Intent: access.IntentJoin,
		})
		require.True(t, d.Permit)
	})

	t.Run("instructor skips the enrollment lookup", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "c1").Return(course, nil)
		store.EXPECT().IsEnrolled(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "instructor"}, RoomID: "c1", Intent: access.IntentJoin,
		})
		require.True(t, d.Permit)
	})

	t.Run("not enrolled without segment is denied", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "c1").Return(course, nil)
		store.EXPECT().IsEnrolled(gomock.Any(), "c1", "guest").Return(false, nil)
		store.EXPECT().IsFreePreview(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "guest"}, RoomID: "c1", Intent: access.IntentJoin,
		})
		require.False(t, d.Permit)
		require.Equal(t, access.ReasonNotEnrolled, d.Reason)
	})

	t.Run("not enrolled on a paid segment is denied", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "c1").Return(course, nil)
		store.EXPECT().IsEnrolled(gomock.Any(), "c1", "guest").Return(false, nil)
		store.EXPECT().IsFreePreview(gomock.Any(), "c1", "lesson-9").Return(false, nil)

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "guest"}, RoomID: "c1", Intent: access.IntentJoin, SegmentID: "lesson-9",
		})
		require.Equal(t, access.ReasonNotEnrolled, d.Reason)
	})

	t.Run("free preview segment is permitted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "c1").Return(course, nil)
		store.EXPECT().IsEnrolled(gomock.Any(), "c1", "guest").Return(false, nil)
		store.EXPECT().IsFreePreview(gomock.Any(), "c1", "lesson-1").Return(true, nil)

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "guest"}, RoomID: "c1", Intent: access.IntentJoin, SegmentID: "lesson-1",
		})
		require.True(t, d.Permit)
	})
}

func TestGate_FailClosed(t *testing.T) {
	t.Run("policy lookup timeout denies", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		// The store ignores ctx entirely; the gate must still give up.
		store.EXPECT().LookupPolicy(gomock.Any(), "general").DoAndReturn(
			func(context.Context, string) (*access.Policy, error) {
				<-release
				return &access.Policy{RoomID: "general", Visibility: access.Public}, nil
			})

		start := time.Now()
		d := access.NewGate(store, 20*time.Millisecond).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "u"}, RoomID: "general", Intent: access.IntentJoin,
		})
		require.False(t, d.Permit)
		require.Equal(t, access.ReasonAccessCheckFailed, d.Reason)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("enrollment error denies", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "c1").
			Return(&access.Policy{RoomID: "c1", Kind: access.KindCourse, Visibility: access.Private}, nil)
		store.EXPECT().IsEnrolled(gomock.Any(), "c1", "u").Return(false, errors.New("db down"))

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{
			Identity: &access.Identity{UserID: "u"}, RoomID: "c1", Intent: access.IntentJoin,
		})
		require.Equal(t, access.ReasonAccessCheckFailed, d.Reason)
		require.True(t, d.Err().(*access.DeniedError).Transient())
	})

	t.Run("unknown room", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPolicyStore(ctrl)
		store.EXPECT().LookupPolicy(gomock.Any(), "nope").Return(nil, access.ErrRoomNotFound)

		d := access.NewGate(store, time.Second).Authorize(context.Background(), access.Request{RoomID: "nope", Intent: access.IntentJoin})
		require.Equal(t, access.ReasonRoomNotFound, d.Reason)
		require.Equal(t, access.ReasonRoomNotFound, access.ReasonOf(d.Err()))
	})
}

func TestGate_PublishAndReceive(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPolicyStore(ctrl)
	gate := access.NewGate(store, time.Second)
	public := &access.Policy{RoomID: "general", Visibility: access.Public}
	private := &access.Policy{RoomID: "team", Visibility: access.Private}
	bob := &access.Identity{UserID: "bob"}

	// No store calls: publish and receive are decided from membership.
	d := gate.Authorize(context.Background(), access.Request{RoomID: "general", Intent: access.IntentPublish, IsMember: true, Policy: public})
	require.Equal(t, access.ReasonAnonymousPublishDenied, d.Reason)

	d = gate.Authorize(context.Background(), access.Request{Identity: bob, RoomID: "general", Intent: access.IntentPublish, Policy: public})
	require.Equal(t, access.ReasonNotAMember, d.Reason)

	d = gate.Authorize(context.Background(), access.Request{Identity: bob, RoomID: "general", Intent: access.IntentPublish, IsMember: true, Policy: public})
	require.True(t, d.Permit)

	d = gate.Authorize(context.Background(), access.Request{RoomID: "general", Intent: access.IntentReceive, IsMember: true, Policy: public})
	require.True(t, d.Permit)

	d = gate.Authorize(context.Background(), access.Request{RoomID: "team", Intent: access.IntentReceive, IsMember: true, Policy: private})
	require.Equal(t, access.ReasonAuthenticationRequired, d.Reason)

	d = gate.Authorize(context.Background(), access.Request{Identity: bob, RoomID: "team", Intent: access.IntentReceive, IsMember: true, Policy: private})
	require.True(t, d.Permit)
}
