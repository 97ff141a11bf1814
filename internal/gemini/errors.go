package gemini

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidResponse is returned when no CRLF terminated header line is
	// found within the protocol header bound.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrRequestEncoding is returned when a URL cannot be written as a UTF-8
	// request line. No network I/O happens in that case.
	ErrRequestEncoding = errors.New("could not encode request")

	// ErrNoContent is returned when a server closes the connection without
	// sending a single byte.
	ErrNoContent = errors.New("server responded with no content")

	// ErrURLTooLong is returned for request URLs above MaxURLLength bytes.
	ErrURLTooLong = errors.New("url exceeds 1024 bytes")
)

// InvalidHeaderError reports a header line that could not be mapped to a
// status: non-numeric or unmapped codes and malformed slow down delays.
type InvalidHeaderError struct {
	Line   string
	Reason string
}

func (e *InvalidHeaderError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid header: %s", e.Line)
	}
	return fmt.Sprintf("invalid header: %s (%s)", e.Line, e.Reason)
}

// DecodeError reports a body that is not valid in its declared charset.
type DecodeError struct {
	Charset string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not parse body with encoding %s", e.Charset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
