package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnsupportedExtension = "UNSUPPORTED_EXTENSION"
	CodeStorageFailure       = "STORAGE_FAILURE"
	CodePersistenceFailure   = "PERSISTENCE_FAILURE"
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeConflict             = "CONFLICT"
	CodeInternal             = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewFileTooLargeError(maxBytes int64) *AppError {
	return &AppError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("File too large (max %dMB)", maxBytes/(1024*1024)),
	}
}

func NewUnsupportedMediaTypeError(contentType string) *AppError {
	return &AppError{
		Code:    CodeUnsupportedMediaType,
		Message: fmt.Sprintf("Unsupported media type %q", contentType),
	}
}

func NewUnsupportedExtensionError(ext string) *AppError {
	return &AppError{
		Code:    CodeUnsupportedExtension,
		Message: fmt.Sprintf("Unsupported file extension %q", ext),
	}
}

func NewStorageError(err error) *AppError {
	return &AppError{
		Code:    CodeStorageFailure,
		Message: "Failed to store uploaded file",
		Err:     err,
	}
}

func NewPersistenceError(err error) *AppError {
	return &AppError{
		Code:    CodePersistenceFailure,
		Message: "Failed to save post",
		Err:     err,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response.
// Wrapped causes stay in the logs and are never written to the client.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
	} else {
		response = ErrorResponse{
			Error: "Internal server error",
			Code:  CodeInternal,
		}
	}

	return c.Status(status).JSON(response)
}
