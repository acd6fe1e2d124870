package chatstore

import (
	"errors"
	"fmt"
)

// InputError marks a caller mistake, as opposed to a store fault. Handlers
// surface its message verbatim with a client error status; every other error
// leaving this package is logged and masked.
type InputError struct {
	msg string
}

func (e *InputError) Error() string {
	return e.msg
}

func inputError(format string, args ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// ErrInvalidCredentials is returned by Login for unknown usernames and wrong
// passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")
