package access

import "errors"

// Reason explains a denial. Values are part of the wire protocol.
type Reason string

const (
	ReasonPasscodeRequired       Reason = "PasscodeRequired"
	ReasonInvalidPasscode        Reason = "InvalidPasscode"
	ReasonNotEnrolled            Reason = "NotEnrolled"
	ReasonRoomNotFound           Reason = "RoomNotFound"
	ReasonAccessCheckFailed      Reason = "AccessCheckFailed"
	ReasonNotAMember             Reason = "NotAMember"
	ReasonAuthenticationRequired Reason = "AuthenticationRequired"
	ReasonAnonymousPublishDenied Reason = "AnonymousPublishDenied"
)

// Decision is computed per request and never stored.
type Decision struct {
	Permit bool
	Reason Reason
	// Policy is the snapshot the decision was based on, if one was looked up.
	Policy *Policy
}

func permit(p *Policy) Decision { return Decision{Permit: true, Policy: p} }

func deny(r Reason) Decision { return Decision{Reason: r} }

// Err returns nil for a permit and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Permit {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string { return "access denied: " + string(e.Reason) }

// Transient reports whether retrying the intent later may succeed.
func (e *DeniedError) Transient() bool { return e.Reason == ReasonAccessCheckFailed }

// ReasonOf extracts the denial reason from err, or "" if err is not a denial.
func ReasonOf(err error) Reason {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
