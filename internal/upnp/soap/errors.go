package soap

import (
	"errors"
	"fmt"
)

// RendererTimeoutError indicates the renderer did not answer within the
// configured communication timeout.
type RendererTimeoutError struct {
	Action string
}

func (e *RendererTimeoutError) Error() string {
	return fmt.Sprintf("renderer timeout during %s", e.Action)
}

// RendererUnreachableError indicates a transport-level failure (refused
// connection, DNS, link down).
type RendererUnreachableError struct {
	Action string
	Err    error
}

func (e *RendererUnreachableError) Error() string {
	return fmt.Sprintf("renderer unreachable during %s: %v", e.Action, e.Err)
}

func (e *RendererUnreachableError) Unwrap() error { return e.Err }

// RendererRejectedError carries a parsed SOAP fault.
type RendererRejectedError struct {
	Action      string
	FaultString string
	Code        string
	Description string
}

func (e *RendererRejectedError) Error() string {
	return fmt.Sprintf("renderer rejected %s: %s (%s)", e.Action, e.Description, e.Code)
}

// MalformedXMLError indicates the renderer replied with XML the parser rejects.
type MalformedXMLError struct {
	Err error
}

func (e *MalformedXMLError) Error() string {
	return fmt.Sprintf("malformed xml reply: %v", e.Err)
}

func (e *MalformedXMLError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is a timeout or unreachable failure.
// Three consecutive network errors from the polling timer tear a session down.
func IsNetworkError(err error) bool {
	var timeout *RendererTimeoutError
	var unreachable *RendererUnreachableError
	return errors.As(err, &timeout) || errors.As(err, &unreachable)
}

// IsFault reports whether err is a SOAP fault from the renderer.
func IsFault(err error) bool {
	var rejected *RendererRejectedError
	return errors.As(err, &rejected)
}
