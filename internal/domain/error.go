package domain

import (
	"errors"
	"fmt"
)

// Machine-readable error codes. Each maps to one HTTP status and decides
// whether the message is safe to surface.
const (
	ECONFLICT     = "conflict"         // 409 - Resource conflict (reservation double-booking, etc.)
	EINTERNAL     = "internal"         // 500 - Internal server error (hide details)
	EINVALID      = "invalid"          // 400 - Validation error (bad input)
	ENOTFOUND     = "not_found"        // 404 - Resource not found
	EUNAUTHORIZED = "unauthorized"     // 401 - Authentication required
	EFORBIDDEN    = "forbidden"        // 403 - Authenticated but not permitted
	ENOTIMPL      = "not_implemented"  // 501 - Feature not implemented
	ERATELIMIT    = "rate_limit"       // 429 - Too many requests
	EPAYMENT      = "payment_required" // 402 - Payment failed or required
	EGONE         = "gone"             // 410 - Resource permanently deleted
)

// Error is the application error type: a code for dispatch, a message for
// humans, an operation for logs. Wrapping via Err keeps the cause chain.
type Error struct {
	// Code is one of the E* constants.
	Code string

	// Message may be shown to API consumers verbatim.
	Message string

	// Op names where the error arose, e.g. "checkout.finalize". Log-only.
	Op string

	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the first domain Error in err's chain,
// EINTERNAL for foreign errors and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorMessage returns the user-facing message for err. Internal and
// foreign errors collapse to a generic message; their detail stays in logs.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}

	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation recorded on err, or "".
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}

	return ""
}

// Errorf builds a domain error with a formatted message.
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError attaches a code, operation and message to an existing error,
// keeping it in the chain. Nil in, nil out.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// --- validation errors ---

// ValidationError collects per-field failures for one request payload.
type ValidationError struct {
	// Fields maps field name to failure message.
	Fields map[string]string

	Op string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			if e.Op != "" {
				return fmt.Sprintf("%s: %s: %s", e.Op, field, msg)
			}
			return fmt.Sprintf("%s: %s", field, msg)
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: validation failed for %d fields", e.Op, len(e.Fields))
	}
	return fmt.Sprintf("validation failed for %d fields", len(e.Fields))
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(op, field, message string) error {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}

// AddFieldError records a field failure on err, creating a ValidationError
// when err is nil or of another type.
func AddFieldError(err error, field, message string) error {
	var ve *ValidationError
	if err != nil && errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}

	return &ValidationError{
		Fields: map[string]string{field: message},
	}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationFields returns the field map of a ValidationError, or nil.
func GetValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// --- finalization errors ---

// FinalizationError reports a checkout finalization failure with the HTTP
// status the caller (or webhook responder) must surface. It wraps a domain
// Error so code-based handling still works.
type FinalizationError struct {
	// StatusCode is the HTTP-equivalent status for this failure cause.
	StatusCode int

	// Err is the underlying domain error.
	Err *Error
}

func (e *FinalizationError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the wrapped domain error.
func (e *FinalizationError) Unwrap() error {
	return e.Err
}

// FinalizationFailed builds a FinalizationError with an explicit status.
func FinalizationFailed(statusCode int, code, op, message string) error {
	return &FinalizationError{
		StatusCode: statusCode,
		Err: &Error{
			Code:    code,
			Op:      op,
			Message: message,
		},
	}
}

// FinalizationStatus returns the status carried by a FinalizationError in
// err's chain, 0 otherwise.
func FinalizationStatus(err error) int {
	var fe *FinalizationError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// --- constructors ---

// NotFound builds an ENOTFOUND error naming the missing resource.
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Unauthorized builds an EUNAUTHORIZED error.
func Unauthorized(op, message string) error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden builds an EFORBIDDEN error.
func Forbidden(op, message string) error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Invalid builds an EINVALID error for a single problem.
func Invalid(op, message string) error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Conflict builds an ECONFLICT error.
func Conflict(op, message string) error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal wraps err as EINTERNAL. Callers see a generic message; the
// wrapped cause is for logs.
func Internal(err error, op, message string) error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
