// Copyright (C) 2024 right-sizer contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package fgerrors provides the structured error taxonomy for the control
// plane: a small set of named categories, each with its own retry policy,
// rather than ad-hoc error strings.
package fgerrors

import (
	"errors"
	"fmt"
)

// Category names the kind of failure, not its type. Only ConfigError
// aborts startup; every other category is caught at the task boundary.
const (
	CategoryConfig            = "config"
	CategoryTransientIO       = "transient_io"
	CategorySourceStall       = "source_stall"
	CategoryPolicyBlocked     = "policy_blocked"
	CategoryWorkflowFailed    = "workflow_failed"
	CategoryWorkflowTimeout   = "workflow_timeout"
	CategoryInternalInvariant = "internal_invariant"
)

// Error is a structured, categorized error carrying the operation that
// failed and an optional human-readable message.
type Error struct {
	Category string
	Op       string
	Err      error
	Message  string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Category, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category && (t.Op == "" || e.Op == t.Op)
}

// Wrap wraps err with operation context and a category. Returns nil if
// err is nil.
func Wrap(err error, category, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err, Message: message}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, category, op, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err, Message: fmt.Sprintf(format, args...)}
}

// New creates an Error without an underlying cause.
func New(category, op, message string) error {
	return &Error{Category: category, Op: op, Err: errors.New(message), Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(category, op, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Category: category, Op: op, Err: errors.New(msg), Message: msg}
}

// IsCategory reports whether err (or anything it wraps) belongs to category.
func IsCategory(err error, category string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// GetCategory extracts the category from err, or "" if err is not an Error.
func GetCategory(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// IsRetryable applies the category-based retry policy from the error
// taxonomy: only transient I/O failures are retried automatically.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch GetCategory(err) {
	case CategoryTransientIO:
		return true
	default:
		return false
	}
}

func ConfigError(op, message string) error           { return New(CategoryConfig, op, message) }
func ConfigErrorf(op, format string, a ...any) error  { return Newf(CategoryConfig, op, format, a...) }
func TransientIO(op string, err error) error          { return Wrap(err, CategoryTransientIO, op, "") }
func TransientIOf(op string, err error, f string, a ...any) error {
	return Wrapf(err, CategoryTransientIO, op, f, a...)
}
func SourceStall(op, message string) error { return New(CategorySourceStall, op, message) }
func PolicyBlocked(op, message string) error {
	return New(CategoryPolicyBlocked, op, message)
}
func WorkflowFailed(op string, err error) error {
	return Wrap(err, CategoryWorkflowFailed, op, "")
}
func WorkflowTimeout(op, message string) error {
	return New(CategoryWorkflowTimeout, op, message)
}
func InternalInvariant(op, message string) error {
	return New(CategoryInternalInvariant, op, message)
}
