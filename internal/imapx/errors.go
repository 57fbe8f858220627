package imapx

import (
	"errors"
	"fmt"
)

// TransportError indicates a network-level failure: dialing, TLS
// handshakes, reads and writes on the socket. Transport failures are the
// class of error worth retrying, since the server may simply be
// unreachable for a moment.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("imap %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err (or any error in its chain) is a
// TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// ServerError indicates that the server understood us and said no: a NO
// or BAD tagged response, a rejected STARTTLS upgrade, or a rejected
// login. These are not retried: reconnecting with the same
// configuration would only produce the same answer.
type ServerError struct {
	Command string
	Status  string
	Text    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("imap %s failed: %s %s", e.Command, e.Status, e.Text)
}

// IsServerError reports whether err (or any error in its chain) is a
// ServerError.
func IsServerError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
