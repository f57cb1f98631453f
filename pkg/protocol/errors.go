package protocol

import "fmt"

// MalformedError reports a frame that cannot be parsed into the expected
// shape at all. Such frames are dropped and logged; no session state changes.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "malformed frame: " + e.Reason }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError reports a frame whose authentication tag did not validate.
// Treated as potential tampering or channel noise, never fatal.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "frame authentication failed: " + e.Reason }
