package starstore

import (
	"errors"
	"fmt"

	"github.com/edms-forge/starstore/pkg/envelope"
)

// Sentinel error kinds. Callers test with errors.Is to decide between
// "retry later" (timeout), "remote refused" and "bad input".
var (
	// ErrInputShape marks malformed input detected before any network
	// call. Never retried.
	ErrInputShape = errors.New("input has the wrong shape")

	// ErrRemote marks an error envelope returned by the repository.
	ErrRemote = errors.New("repository reported an error")

	// ErrTimeout marks a call that saw no response before its deadline.
	ErrTimeout = errors.New("no response from repository before deadline")

	// ErrTransport marks a response the envelope could not be narrowed
	// to the expected kind. Treated like a remote failure.
	ErrTransport = errors.New("unexpected response shape")
)

// Error wraps an operation failure with the operation name and detail.
type Error struct {
	// Op is the operation that failed, e.g. "EnsureFolder".
	Op string

	// Err is the sentinel kind or underlying error.
	Err error

	// Msg is optional human-readable detail.
	Msg string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// inputErr builds an ErrInputShape error for op.
func inputErr(op, format string, args ...any) error {
	return &Error{Op: op, Err: ErrInputShape, Msg: fmt.Sprintf(format, args...)}
}

// remoteErr converts an error envelope into a typed error, preserving the
// timeout distinction.
func remoteErr(op string, res envelope.Result) error {
	kind := ErrRemote
	if res.IsTimeout() {
		kind = ErrTimeout
	}
	return &Error{Op: op, Err: kind, Msg: res.ErrMessage()}
}

// shapeErr marks a response that would not narrow to the expected kind.
func shapeErr(op string, err error) error {
	return &Error{Op: op, Err: ErrTransport, Msg: err.Error()}
}
