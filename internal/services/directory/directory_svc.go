package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"proconnect/internal/access"
)

// IDirectoryService reads community and course facts owned by the CRUD side
// of the platform. It is the relay's access.PolicyStore.
type IDirectoryService interface {
	access.PolicyStore
}

type directoryService struct {
	db *sql.DB
}

var _ access.PolicyStore = (*directoryService)(nil)

func NewDirectoryService(db *sql.DB) IDirectoryService {
	return &directoryService{db: db}
}

// LookupPolicy resolves a room id to a community first, then a course.
// Private communities carry a bcrypt passcode; paid courses are gated on
// enrollment; everything else is public.
func (svc *directoryService) LookupPolicy(ctx context.Context, roomID string) (*access.Policy, error) {
	const communityQ = `SELECT owner_id, is_private, coalesce(passcode_hash,'')
	                      FROM communities WHERE id = $1`
	var (
		owner, hash string
		private     bool
	)
	err := svc.db.QueryRowContext(ctx, communityQ, roomID).Scan(&owner, &private, &hash)
	switch {
	case err == nil:
		p := &access.Policy{RoomID: roomID, Kind: access.KindCommunity, Visibility: access.Public, OwnerID: owner}
		if private {
			p.Visibility = access.Private
			p.PasscodeHash = []byte(hash)
		}
		return p, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup community %s: %w", roomID, err)
	}

	const courseQ = `SELECT instructor_id, is_paid FROM courses WHERE id = $1`
	var paid bool
	err = svc.db.QueryRowContext(ctx, courseQ, roomID).Scan(&owner, &paid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrRoomNotFound
		}
		return nil, fmt.Errorf("lookup course %s: %w", roomID, err)
	}
	p := &access.Policy{RoomID: roomID, Kind: access.KindCourse, Visibility: access.Public, OwnerID: owner}
	if paid {
		p.Visibility = access.Private
	}
	return p, nil
}

func (svc *directoryService) IsEnrolled(ctx context.Context, courseID, userID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM course_enrollments
	                           WHERE course_id = $1 AND user_id = $2)`
	var ok bool
	if err := svc.db.QueryRowContext(ctx, q, courseID, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// IsFreePreview reports whether segmentID is a free lesson of courseID.
// Lessons of other courses are never free here.
func (svc *directoryService) IsFreePreview(ctx context.Context, courseID, segmentID string) (bool, error) {
	const q = `SELECT is_free FROM lessons WHERE id = $1 AND course_id = $2`
	var free bool
	err := svc.db.QueryRowContext(ctx, q, segmentID, courseID).Scan(&free)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return free, err
}
