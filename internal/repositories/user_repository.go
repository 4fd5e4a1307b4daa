package repositories

import (
	"fmt"

	"palaver/internal/models"
)

// Relation-set and scalar field names addressable by batch mutations.
const (
	FieldBlocked          = "blocked"
	FieldFriends          = "friends"
	FieldPendingsOutgoing = "pendings_outgoing"
	FieldPendingsIncoming = "pendings_incoming"
	FieldToken            = "token"
	FieldStatus           = "status"
	FieldTextStatus       = "text_status"
	FieldFriendCode       = "friend_code"
	FieldParent           = "parent"
	FieldNick             = "nick"
	FieldDeleted          = "deleted"
)

// MutationOp is the kind of a single field mutation.
type MutationOp int

const (
	// OpPush appends an id to a relation set.
	OpPush MutationOp = iota
	// OpPull removes an id from a relation set.
	OpPull
	// OpSet assigns a scalar field.
	OpSet
	// OpUnset clears a field to its zero value.
	OpUnset
)

// FieldMutation is one field-level change inside a UserUpdate.
type FieldMutation struct {
	Op    MutationOp
	Field string
	Value interface{}
}

// UserUpdate targets one user document with a list of field mutations.
type UserUpdate struct {
	ID        string
	Mutations []FieldMutation
}

// Push builds a relation-set append mutation.
func Push(field, id string) FieldMutation {
	return FieldMutation{Op: OpPush, Field: field, Value: id}
}

// Pull builds a relation-set removal mutation.
func Pull(field, id string) FieldMutation {
	return FieldMutation{Op: OpPull, Field: field, Value: id}
}

// Set builds a scalar assignment mutation.
func Set(field string, value interface{}) FieldMutation {
	return FieldMutation{Op: OpSet, Field: field, Value: value}
}

// Unset builds a field-clearing mutation.
func Unset(field string) FieldMutation {
	return FieldMutation{Op: OpUnset, Field: field}
}

// UserRepository defines the interface for identity data access.
//
// ApplyBatch issues all updates of a batch together as one logical operation.
// It does NOT guarantee cross-document atomicity: a batch that fails part-way
// leaves the earlier documents written. Callers validate before writing and
// treat a partial batch as a surfaced, non-healed inconsistency.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByToken(token string) (*models.User, error)
	GetByCredentials(loginHash, passwordHash string) (*models.User, error)
	GetSalt(loginHash string) (string, error)
	GetByFriendCode(code string) (*models.User, error)
	GetMany(ids []string) ([]models.User, error)
	UpdateFields(id string, fields map[string]interface{}) error
	ApplyBatch(updates []UserUpdate) error
	CountBots(parentID string) (int64, error)
	FriendCodeTaken(code string) (bool, error)
}

// applyMutation applies one field mutation to an in-memory user document.
// Shared by both repository implementations so the batch semantics match.
func applyMutation(u *models.User, m FieldMutation) error {
	switch m.Field {
	case FieldBlocked, FieldFriends, FieldPendingsOutgoing, FieldPendingsIncoming:
		return applySetMutation(u, m)
	}

	switch m.Op {
	case OpSet:
		return applyScalarSet(u, m.Field, m.Value)
	case OpUnset:
		return applyScalarUnset(u, m.Field)
	default:
		return fmt.Errorf("mutation op %d not valid for scalar field %s", m.Op, m.Field)
	}
}

func applySetMutation(u *models.User, m FieldMutation) error {
	var target *models.IDSet
	switch m.Field {
	case FieldBlocked:
		target = &u.Blocked
	case FieldFriends:
		target = &u.Friends
	case FieldPendingsOutgoing:
		target = &u.PendingsOutgoing
	case FieldPendingsIncoming:
		target = &u.PendingsIncoming
	}

	switch m.Op {
	case OpPush:
		id, ok := m.Value.(string)
		if !ok {
			return fmt.Errorf("push value for %s must be a user id", m.Field)
		}
		*target = target.Add(id)
	case OpPull:
		id, ok := m.Value.(string)
		if !ok {
			return fmt.Errorf("pull value for %s must be a user id", m.Field)
		}
		*target = target.Remove(id)
	case OpUnset:
		*target = models.IDSet{}
	default:
		return fmt.Errorf("mutation op %d not valid for relation set %s", m.Op, m.Field)
	}
	return nil
}

func applyScalarSet(u *models.User, field string, value interface{}) error {
	switch field {
	case FieldToken:
		u.Token, _ = value.(string)
	case FieldStatus:
		switch v := value.(type) {
		case models.Status:
			u.Status = v
		case int:
			u.Status = models.Status(v)
		default:
			return fmt.Errorf("set value for %s must be a status", field)
		}
	case FieldTextStatus:
		u.TextStatus, _ = value.(string)
	case FieldFriendCode:
		u.FriendCode, _ = value.(string)
	case FieldParent:
		u.Parent, _ = value.(string)
	case FieldNick:
		u.Nick, _ = value.(string)
	case FieldDeleted:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("set value for %s must be a bool", field)
		}
		u.Deleted = b
	default:
		return fmt.Errorf("unknown field %s", field)
	}
	return nil
}

func applyScalarUnset(u *models.User, field string) error {
	switch field {
	case FieldToken:
		u.Token = ""
	case FieldStatus:
		u.Status = models.StatusOffline
	case FieldTextStatus:
		u.TextStatus = ""
	case FieldFriendCode:
		u.FriendCode = ""
	case FieldParent:
		u.Parent = ""
	default:
		return fmt.Errorf("unknown field %s", field)
	}
	return nil
}
