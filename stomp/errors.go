package stomp

import (
	"errors"
	"fmt"
)

const (
	AlreadyLoggedInError = iota

	NotLoggedInError

	LogoutPendingError

	ConnectionError

	ConnectionRefusedError

	DisconnectedError

	ProtocolError

	ServerError

	NotSubscribedError

	UnknownCommandError

	InvalidArgumentError

	TimedOutError

	UnknownError
)

// Error is the typed error returned by client operations.
type Error struct {
	Code    int
	Message string
	cause   error
}

func (err *Error) Error() string {
	if err.Message == "" {
		return errorName(err.Code)
	}
	return fmt.Sprintf("%s: %s", errorName(err.Code), err.Message)
}

func (err *Error) Unwrap() error { return err.cause }

// Is matches another *Error with the same code, so errors.Is(err, NewError(code)) works.
func (err *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == err.Code
}

func errorName(errorCode int) string {
	switch errorCode {
	case AlreadyLoggedInError:
		return "AlreadyLoggedInError"
	case NotLoggedInError:
		return "NotLoggedInError"
	case LogoutPendingError:
		return "LogoutPendingError"
	case ConnectionError:
		return "ConnectionError"
	case ConnectionRefusedError:
		return "ConnectionRefusedError"
	case DisconnectedError:
		return "DisconnectedError"
	case ProtocolError:
		return "ProtocolError"
	case ServerError:
		return "ServerError"
	case NotSubscribedError:
		return "NotSubscribedError"
	case UnknownCommandError:
		return "UnknownCommandError"
	case InvalidArgumentError:
		return "InvalidArgumentError"
	case TimedOutError:
		return "TimedOutError"
	default:
		return "UnknownError"
	}
}

// NewError builds a typed client error. An error passed as message is kept as the cause.
func NewError(errorCode int, message ...interface{}) error {
	result := &Error{Code: errorCode}
	if len(message) > 0 {
		if cause, isError := message[0].(error); isError {
			result.cause = cause
		}
		result.Message = fmt.Sprint(message[0])
	}
	return result
}

// ErrorCode returns the code of a typed error, or UnknownError.
func ErrorCode(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return UnknownError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, errorCode int) bool {
	return err != nil && ErrorCode(err) == errorCode
}
