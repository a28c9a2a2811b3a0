package diagnosis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed submission
type ErrorKind int

const (
	KindEncoding ErrorKind = iota + 1
	KindNetwork
	KindEmptyResponse
	KindDecoding
)

// Sentinels matched by errors.Is against an *Error of the same kind
var (
	ErrEncoding      = errors.New("image could not be encoded")
	ErrNetwork       = errors.New("network request failed")
	ErrEmptyResponse = errors.New("empty response from classification service")
	ErrDecoding      = errors.New("classification response could not be decoded")
)

func (k ErrorKind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindNetwork:
		return "network"
	case KindEmptyResponse:
		return "empty_response"
	case KindDecoding:
		return "decoding"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindEncoding:
		return ErrEncoding
	case KindNetwork:
		return ErrNetwork
	case KindEmptyResponse:
		return ErrEmptyResponse
	case KindDecoding:
		return ErrDecoding
	default:
		return nil
	}
}

// Error is the terminal failure of a single submission
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel()
	if msg == nil {
		msg = errors.New(e.Kind.String())
	}
	if e.Err == nil {
		return msg.Error()
	}
	return fmt.Sprintf("%v: %v", msg, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// StatusError reports a non-2xx response when status gating is enabled
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of a submission error, or 0 if err is not one
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// UserMessage returns a generic human-readable message for a submission error
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindEncoding:
		return "Failed to prepare image"
	case KindNetwork:
		return "Could not reach the diagnosis service. Check your connection and try again."
	case KindEmptyResponse:
		return "No data received"
	case KindDecoding:
		return "The diagnosis service returned an unexpected response"
	default:
		return err.Error()
	}
}
