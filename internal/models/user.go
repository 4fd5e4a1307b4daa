package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is a user's presence state.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusAway
	StatusDoNotDisturb
)

// ValidStatus reports whether s is a member of the status enum.
func ValidStatus(s Status) bool {
	return s >= StatusOffline && s <= StatusDoNotDisturb
}

// IDSet is a set of user ids stored as a single JSON column, mirroring the
// document-style relation lists the batch-update model operates on.
// Ids are unique within a set; order is not significant.
type IDSet []string

// Contains reports whether id is a member of the set.
func (s IDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id appended. Adding an existing member is a no-op.
func (s IDSet) Add(id string) IDSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

// Remove returns the set without id.
func (s IDSet) Remove(id string) IDSet {
	out := make(IDSet, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Value implements driver.Valuer so GORM persists the set as JSON.
func (s IDSet) Value() (driver.Value, error) {
	if s == nil {
		s = IDSet{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal id set: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the JSON column representation.
func (s *IDSet) Scan(value interface{}) error {
	if value == nil {
		*s = IDSet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported id set column type %T", value)
	}
	if len(data) == 0 {
		*s = IDSet{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// User represents one identity document: a human account or a bot owned by one.
// Bots are the same entity with the Bot flag set and a weak Parent reference,
// so the relation-set invariants hold for both kinds without duplication.
type User struct {
	ID         string `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Nick       string `json:"nick" gorm:"type:varchar(25)" validate:"required,min=1,max=25"`
	Status     Status `json:"status"`
	TextStatus string `json:"text_status" gorm:"type:varchar(256)" validate:"max=256"`
	Bot        bool   `json:"bot"`
	Deleted    bool   `json:"deleted,omitempty"`
	FriendCode string `json:"friend_code,omitempty" gorm:"type:varchar(50)" validate:"omitempty,min=3,max=50"`
	Parent     string `json:"parent,omitempty" gorm:"type:varchar(36)"`

	// Credential and session fields. No json tags for security.
	LoginHash    string `json:"-" gorm:"uniqueIndex;type:varchar(64)"`
	PasswordHash string `json:"-" gorm:"type:varchar(255)"`
	Salt         string `json:"-" gorm:"type:varchar(64)"`
	Token        string `json:"-" gorm:"index;type:varchar(512)"`

	// Relation sets. Each is one JSON column; the matched edge pairs across
	// two rows are kept in lock-step by coordinated batch writes.
	Blocked          IDSet `json:"blocked" gorm:"type:text"`
	Friends          IDSet `json:"friends" gorm:"type:text"`
	PendingsOutgoing IDSet `json:"pendings_outgoing" gorm:"type:text"`
	PendingsIncoming IDSet `json:"pendings_incoming" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

// PublicProfile is the projection safe to show to any user. It never carries
// credentials, tokens, or relation sets.
type PublicProfile struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	TextStatus string    `json:"text_status"`
	Bot        bool      `json:"bot"`
	Nick       string    `json:"nick"`
	CreatedAt  time.Time `json:"created_at"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// PrivateProfile is the projection a user sees of themselves: everything
// stored except the credential secret and session token.
type PrivateProfile struct {
	ID               string    `json:"id"`
	Nick             string    `json:"nick"`
	Status           Status    `json:"status"`
	TextStatus       string    `json:"text_status"`
	Bot              bool      `json:"bot"`
	FriendCode       string    `json:"friend_code,omitempty"`
	Parent           string    `json:"parent,omitempty"`
	Blocked          IDSet     `json:"blocked"`
	Friends          IDSet     `json:"friends"`
	PendingsOutgoing IDSet     `json:"pendings_outgoing"`
	PendingsIncoming IDSet     `json:"pendings_incoming"`
	CreatedAt        time.Time `json:"created_at"`
}

// Public returns the public projection. Deleted is present only when true.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:         u.ID,
		Status:     u.Status,
		TextStatus: u.TextStatus,
		Bot:        u.Bot,
		Nick:       u.Nick,
		CreatedAt:  u.CreatedAt,
		Deleted:    u.Deleted,
	}
}

// Private returns the self projection.
func (u *User) Private() PrivateProfile {
	return PrivateProfile{
		ID:               u.ID,
		Nick:             u.Nick,
		Status:           u.Status,
		TextStatus:       u.TextStatus,
		Bot:              u.Bot,
		FriendCode:       u.FriendCode,
		Parent:           u.Parent,
		Blocked:          u.Blocked,
		Friends:          u.Friends,
		PendingsOutgoing: u.PendingsOutgoing,
		PendingsIncoming: u.PendingsIncoming,
		CreatedAt:        u.CreatedAt,
	}
}

// InAnyRelation reports whether other already holds any relation edge from u's
// point of view. A pair may hold at most one relation kind at a time.
func (u *User) InAnyRelation(other string) bool {
	return u.Friends.Contains(other) ||
		u.PendingsOutgoing.Contains(other) ||
		u.PendingsIncoming.Contains(other)
}
