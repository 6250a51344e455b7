package relay

import (
	"errors"

	"proconnect/internal/access"
)

var (
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrMembershipBusy      = errors.New("membership change already in progress")
)

func roomNotFound() error {
	return &access.DeniedError{Reason: access.ReasonRoomNotFound}
}
