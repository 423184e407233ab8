package engine

import "fmt"

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(kind, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}

func UnknownModelError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_MODEL",
		Status:  404,
		Message: fmt.Sprintf("Unknown data model: %s", name),
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func SchemaMismatchError(attributeID, recordID string) *AppError {
	return &AppError{
		Code:    "SCHEMA_MISMATCH",
		Status:  422,
		Message: fmt.Sprintf("attribute %s does not belong to the model of record %s", attributeID, recordID),
	}
}

func InvalidFilterError(msg string) *AppError {
	return &AppError{Code: "INVALID_FILTER", Status: 400, Message: msg}
}

func TimeoutError(op string) *AppError {
	return &AppError{
		Code:    "TIMEOUT",
		Status:  504,
		Message: fmt.Sprintf("%s exceeded the caller deadline", op),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}
