// Package apperr holds the user-facing error kinds of the loan workflow.
// Anything that is not one of these is treated as a persistence failure.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// 对外统一的"无权限"文案，不泄露部门信息
const MsgNotPermitted = "not permitted"

// ValidationError: malformed or missing request fields.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError: the actor lacks role or department scope.
// Reason is for logs only. Public, when set, is safe to show the actor;
// otherwise Error() returns the generic message.
type AuthorizationError struct {
	Reason string
	Public string
}

func (e *AuthorizationError) Error() string {
	if e.Public != "" {
		return e.Public
	}
	return MsgNotPermitted
}

func Forbidden(reason string) error { return &AuthorizationError{Reason: reason} }

// Shortfall describes one item that cannot cover the requested quantity.
type Shortfall struct {
	ItemID    string `json:"itemId"`
	ItemName  string `json:"itemName"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// CapacityError: recomputed availability does not cover the request.
type CapacityError struct {
	Shortfalls []Shortfall `json:"shortfalls"`
}

func (e *CapacityError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", s.ItemName, s.Requested, s.Available))
	}
	return "insufficient availability (" + strings.Join(parts, "; ") + ")"
}

// ReferentialIntegrityError: the row is still referenced elsewhere.
type ReferentialIntegrityError struct {
	Entity     string
	References int64
	Hint       string
}

func (e *ReferentialIntegrityError) Error() string {
	msg := fmt.Sprintf("cannot delete %s: still referenced by %d record(s)", e.Entity, e.References)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

// StateTransitionError: the event is not valid for the current status.
type StateTransitionError struct {
	From  string
	Event string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %q", e.Event, e.From)
}

// NotFoundError: the addressed row does not exist.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

func NotFound(entity string) error { return &NotFoundError{Entity: entity} }

// IsUserFacing reports whether err is one of the kinds above.
func IsUserFacing(err error) bool {
	var (
		v *ValidationError
		a *AuthorizationError
		c *CapacityError
		r *ReferentialIntegrityError
		s *StateTransitionError
		n *NotFoundError
	)
	return errors.As(err, &v) || errors.As(err, &a) || errors.As(err, &c) ||
		errors.As(err, &r) || errors.As(err, &s) || errors.As(err, &n)
}
