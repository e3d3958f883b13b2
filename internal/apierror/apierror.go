/*
Copyright 2024 Pledge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	// Commitment lifecycle outcomes. None of them leaves a goal or donation
	// partially updated.
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrNoOp                   ErrorCode = "NO_OP"
	ErrInvalidAmount          ErrorCode = "INVALID_AMOUNT"
	ErrAmountMismatch         ErrorCode = "AMOUNT_MISMATCH"
	ErrActiveGoalExists       ErrorCode = "ACTIVE_GOAL_EXISTS"
	ErrConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	ErrConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	ErrConflict             ErrorCode = "CONFLICT"
	ErrBadRequest           ErrorCode = "BAD_REQUEST"
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrInternalServer       ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	entry := logrus.WithFields(logrus.Fields{"code": code, "details": details})
	if code == ErrInternalServer {
		entry.Error(message)
	} else {
		entry.Debug(message)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf returns the code carried by err, or ErrInternalServer when err is not
// an APIError.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// Is reports whether err is an APIError with the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrInvalidTransition, ErrNoOp, ErrActiveGoalExists, ErrConcurrentModification:
		return http.StatusConflict
	case ErrInvalidInput, ErrBadRequest, ErrInvalidAmount:
		return http.StatusBadRequest
	case ErrAmountMismatch:
		return http.StatusUnprocessableEntity
	case ErrConfirmationRequired:
		return http.StatusPreconditionRequired
	default:
		return http.StatusInternalServerError
	}
}
