// Package apperrors defines the coded errors the control API returns.
// Renderer and lookup failures from deeper layers get wrapped into these so
// clients always see the same envelope: a stable machine code, an HTTP
// status, and a human message.
package apperrors

type ErrorCode string

const (
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError   ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrorCodeConflict          ErrorCode = "CONFLICT"
	ErrorCodeRendererTimeout   ErrorCode = "RENDERER_TIMEOUT"
	ErrorCodeRendererOffline   ErrorCode = "RENDERER_UNREACHABLE"
	ErrorCodeRendererRejected  ErrorCode = "RENDERER_REJECTED"
	ErrorCodeMalformedXML      ErrorCode = "MALFORMED_XML"
	ErrorCodeDeviceUnsupported ErrorCode = "DEVICE_UNSUPPORTED"
	ErrorCodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeProfileNotFound   ErrorCode = "PROFILE_NOT_FOUND"
	ErrorCodeMediaUnavailable  ErrorCode = "MEDIA_UNAVAILABLE"
	ErrorCodeCancelled         ErrorCode = "CANCELLED"
)

// ErrorType is the coarse wire classification: the caller's mistake or ours.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
)

// ErrorBody is the JSON payload inside the "error" envelope.
// Format: {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}
type ErrorBody struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// AppError is the error type handlers return; the API layer maps it onto the
// response status and body.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
}

func (err *AppError) Error() string {
	return err.Message
}

// Body returns the wire payload. 4xx statuses classify as the caller's
// mistake, everything else as an API fault.
func (err *AppError) Body() ErrorBody {
	errType := ErrorTypeAPIError
	if err.StatusCode >= 400 && err.StatusCode < 500 {
		errType = ErrorTypeInvalidRequest
	}

	return ErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Message: err.Message,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil)
}

// EnsureAppError converts an arbitrary error into an AppError without leaking
// internal error text to clients.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
