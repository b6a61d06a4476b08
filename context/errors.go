// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package context

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors a caller can test for with errors.Is, independent of
// the contextual detail ContextError carries.
var (
	ErrInheritanceDepthExceeded    = errors.New("inheritance depth exceeded")
	ErrInheritanceValidationFailed = errors.New("inheritance validation failed")
)

// ContextError carries structured detail about a failed context
// operation: which context, which operation, and why.
type ContextError struct {
	ContextID string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *ContextError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.ContextID, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.ContextID, e.Operation, e.Message)
}

func (e *ContextError) Unwrap() error {
	return e.Err
}

// NewContextError creates a new ContextError.
func NewContextError(contextID, operation, message string, err error) *ContextError {
	return &ContextError{
		ContextID: contextID,
		Operation: operation,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// DepthExceededError reports a rejected fork past max depth.
func DepthExceededError(contextID string, depth, maxDepth int) *ContextError {
	return NewContextError(contextID, "Fork",
		fmt.Sprintf("depth %d would exceed max depth %d", depth, maxDepth),
		ErrInheritanceDepthExceeded)
}

// ValidationFailedError reports a validator rejecting an inherited field.
func ValidationFailedError(contextID, field string) *ContextError {
	return NewContextError(contextID, "Fork",
		fmt.Sprintf("validator rejected field %q", field),
		ErrInheritanceValidationFailed)
}
