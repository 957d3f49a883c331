package activation

import "errors"

// Kind tags an expected activation rejection. These are decision
// outcomes, not faults: internal failures (storage, signing) travel as
// wrapped ierr sentinels instead.
type Kind int

const (
	KindInvalidFingerprint Kind = iota + 1
	KindMissingFields
	KindNotFound
	KindAppMismatch
	KindExpired
	KindHwidMismatch
	KindAlreadyBound
	KindRevoked
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFingerprint:
		return "invalid_fingerprint"
	case KindMissingFields:
		return "missing_fields"
	case KindNotFound:
		return "license_not_found"
	case KindAppMismatch:
		return "app_mismatch"
	case KindExpired:
		return "license_expired"
	case KindHwidMismatch:
		return "hwid_mismatch"
	case KindAlreadyBound:
		return "already_bound"
	case KindRevoked:
		return "license_revoked"
	default:
		return "unknown"
	}
}

// Error is the structured rejection returned by Activate. Reason holds
// the stable code persisted with the failed attempt; it is empty for
// rejections that produce no telemetry (invalid fingerprint, missing
// fields).
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidFingerprint:
		return "invalid fingerprint"
	case KindMissingFields:
		return "missing required fields"
	case KindNotFound:
		return "license not found"
	case KindAppMismatch:
		return "license does not belong to this application"
	case KindExpired:
		return "license has expired"
	case KindHwidMismatch:
		return "license is bound to another machine"
	case KindAlreadyBound:
		return "license already used on another machine"
	case KindRevoked:
		return "license is revoked"
	default:
		return "activation rejected"
	}
}

// IsKind reports whether err is an activation rejection of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// AsError returns the activation rejection carried by err, if any.
func AsError(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
