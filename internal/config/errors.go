package config

import "errors"

// ConfigError indicates missing or malformed configuration. It is always
// fatal: the process prints the reason and exits instead of retrying.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// IsConfigError reports whether err (or any error in its chain) is a
// ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// ProtocolError indicates configuration that is syntactically fine but
// cannot be expressed on the wire, such as conflicting encryption flags
// or an out-of-range port. Like ConfigError it is fatal.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return e.Reason
}

// IsProtocolError reports whether err (or any error in its chain) is a
// ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
