// Package errs defines the failure taxonomy shared by the fetcher, the
// analyzer and the transports that expose them.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure so callers can react without string matching.
type Kind int

const (
	// Unknown represents an unclassified error.
	Unknown Kind = iota
	// InvalidURL means the URL was missing, malformed or not http(s). No network call was made.
	InvalidURL
	// NetworkError means the page could not be retrieved: DNS, connection, TLS, timeout or body read.
	NetworkError
	// TooManyRedirects means the redirect bound was exceeded.
	TooManyRedirects
	// EmptyInput means markup analysis was asked to work on nothing.
	EmptyInput
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	InvalidURL:       "invalid_url",
	NetworkError:     "network_error",
	TooManyRedirects: "too_many_redirects",
	EmptyInput:       "empty_input",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error carries a category, a human-readable message, and the original cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds an *Error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf reports the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
