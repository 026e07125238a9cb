package tacs

import "errors"

// statusFor maps a broker-local error to an HTTP-style status code
// (NotFound, LockConflict, Timeout, ProtocolError, InternalError).
func statusFor(err error) (status int, reason string) {
	switch {
	case err == nil:
		return StatusOK, "OK"
	case errors.Is(err, ErrProbeNotFound), errors.Is(err, errAgentNotFound):
		return StatusNotFound, "not found"
	case errors.Is(err, ErrLockConflict):
		return StatusLockedByAnother, "locked by another client"
	case errors.Is(err, ErrNotLockOwner):
		return StatusLockedByAnother, "not the lock owner"
	case errors.Is(err, errUnsupportedCapability):
		return StatusUnsupportedCapability, "unsupported capability"
	case errors.Is(err, ErrChannelTimeout):
		return StatusInternalError, "transaction timed out"
	case errors.Is(err, errUnsupportedMethod):
		return StatusUnsupportedMethod, "unsupported method"
	default:
		return StatusInternalError, err.Error()
	}
}

var (
	errAgentNotFound         = errors.New("tacs: agent not found")
	errUnsupportedCapability = errors.New("tacs: agent does not support this probe type")
	errUnsupportedMethod     = errors.New("tacs: unsupported method")
	errProtocol              = errors.New("tacs: malformed request")
)
