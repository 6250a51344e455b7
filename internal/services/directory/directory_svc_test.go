package directory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"proconnect/internal/access"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var (
	communityQ = regexp.QuoteMeta(`FROM communities WHERE id = $1`)
	courseQ    = regexp.QuoteMeta(`FROM courses WHERE id = $1`)
)

func newMock(t *testing.T) (IDirectoryService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewDirectoryService(db), mock
}

func TestLookupPolicy_Community(t *testing.T) {
	svc, mock := newMock(t)

	mock.ExpectQuery(communityQ).WithArgs("team").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "is_private", "passcode_hash"}).
			AddRow("owner1", true, "$2a$04$hash"))
	mock.ExpectQuery(communityQ).WithArgs("general").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "is_private", "passcode_hash"}).
			AddRow("owner2", false, ""))

	p, err := svc.LookupPolicy(context.Background(), "team")
	require.NoError(t, err)
	require.Equal(t, access.KindCommunity, p.Kind)
	require.Equal(t, access.Private, p.Visibility)
	require.Equal(t, []byte("$2a$04$hash"), p.PasscodeHash)

	p, err = svc.LookupPolicy(context.Background(), "general")
	require.NoError(t, err)
	require.True(t, p.IsPublic())
	require.Empty(t, p.PasscodeHash)
}

func TestLookupPolicy_Course(t *testing.T) {
	svc, mock := newMock(t)

	for _, tc := range []struct {
		id   string
		paid bool
		vis  access.Visibility
	}{
		{"c-paid", true, access.Private},
		{"c-free", false, access.Public},
	} {
		mock.ExpectQuery(communityQ).WithArgs(tc.id).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id", "is_private", "passcode_hash"}))
		mock.ExpectQuery(courseQ).WithArgs(tc.id).
			WillReturnRows(sqlmock.NewRows([]string{"instructor_id", "is_paid"}).AddRow("instructor", tc.paid))

		p, err := svc.LookupPolicy(context.Background(), tc.id)
		require.NoError(t, err)
		require.Equal(t, access.KindCourse, p.Kind)
		require.Equal(t, tc.vis, p.Visibility)
		require.Equal(t, "instructor", p.OwnerID)
	}
}

func TestLookupPolicy_NotFoundAndErrors(t *testing.T) {
	svc, mock := newMock(t)

	mock.ExpectQuery(communityQ).WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "is_private", "passcode_hash"}))
	mock.ExpectQuery(courseQ).WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"instructor_id", "is_paid"}))

	_, err := svc.LookupPolicy(context.Background(), "x")
	require.ErrorIs(t, err, access.ErrRoomNotFound)

	boom := errors.New("connection reset")
	mock.ExpectQuery(communityQ).WithArgs("y").WillReturnError(boom)
	_, err = svc.LookupPolicy(context.Background(), "y")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, access.ErrRoomNotFound)
}

func TestIsEnrolledAndFreePreview(t *testing.T) {
	svc, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM course_enrollments`)).WithArgs("c1", "stu").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := svc.IsEnrolled(context.Background(), "c1", "stu")
	require.NoError(t, err)
	require.True(t, ok)

	lessonQ := regexp.QuoteMeta(`SELECT is_free FROM lessons`)
	mock.ExpectQuery(lessonQ).WithArgs("intro", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"is_free"}).AddRow(true))
	mock.ExpectQuery(lessonQ).WithArgs("other-course-lesson", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"is_free"}))

	free, err := svc.IsFreePreview(context.Background(), "c1", "intro")
	require.NoError(t, err)
	require.True(t, free)

	free, err = svc.IsFreePreview(context.Background(), "c1", "other-course-lesson")
	require.NoError(t, err)
	require.False(t, free)
}
