package models

import "fmt"

// ErrorKind tags the failure classes of user and relation operations as one
// flat enumeration shared across the engine.
type ErrorKind int

const (
	// KindInvalidUser: the counterpart does not exist, is deleted, is a bot
	// where a human was required, or credentials did not match.
	KindInvalidUser ErrorKind = iota
	// KindUserNotInGroup: the operation presupposes a relation state that is
	// not present.
	KindUserNotInGroup
	// KindUnavailableForBots: the operation is forbidden for bot actors.
	KindUnavailableForBots
	// KindValidation: field length, format, or uniqueness violation.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidUser:
		return "invalid_user"
	case KindUserNotInGroup:
		return "user_not_in_group"
	case KindUnavailableForBots:
		return "unavailable_for_bots"
	case KindValidation:
		return "validation_error"
	default:
		return "unknown"
	}
}

// RelationError carries the offending ids and fields as structured data
// instead of a formatted string.
type RelationError struct {
	Kind   ErrorKind
	Actor  string
	Target string
	Field  string
	Reason string
}

func (e *RelationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Reason, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// ErrInvalidUser builds an InvalidUser error for the given pair.
func ErrInvalidUser(actor, target, reason string) *RelationError {
	return &RelationError{Kind: KindInvalidUser, Actor: actor, Target: target, Reason: reason}
}

// ErrUserNotInGroup builds a UserNotInGroup error for the given pair.
func ErrUserNotInGroup(actor, target, reason string) *RelationError {
	return &RelationError{Kind: KindUserNotInGroup, Actor: actor, Target: target, Reason: reason}
}

// ErrUnavailableForBots builds an UnavailableForBots error for the actor.
func ErrUnavailableForBots(actor string) *RelationError {
	return &RelationError{Kind: KindUnavailableForBots, Actor: actor, Reason: "operation is unavailable for bots"}
}

// ErrValidation builds a ValidationError for the given field.
func ErrValidation(actor, field, reason string) *RelationError {
	return &RelationError{Kind: KindValidation, Actor: actor, Field: field, Reason: reason}
}

// KindOf extracts the error kind, or ok=false for foreign errors.
func KindOf(err error) (ErrorKind, bool) {
	if re, ok := err.(*RelationError); ok {
		return re.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a RelationError of kind k.
func IsKind(err error, k ErrorKind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
