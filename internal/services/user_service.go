package services

import (
	"palaver/internal/models"
	"palaver/internal/notify"
	"palaver/internal/repositories"
)

// UserService handles profile mutations and account lifecycle.
type UserService struct {
	userRepo repositories.UserRepository
	registry *notify.Registry
}

// NewUserService creates a new UserService. registry may be nil.
func NewUserService(userRepo repositories.UserRepository, registry *notify.Registry) *UserService {
	return &UserService{
		userRepo: userRepo,
		registry: registry,
	}
}

// GetByID loads any user's document; InvalidUser when the id resolves to
// nothing.
func (s *UserService) GetByID(id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, models.ErrInvalidUser("", id, "user id doesn't exist")
	}
	return user, nil
}

// SetNick updates the user's nickname.
func (s *UserService) SetNick(user *models.User, nick string) error {
	if l := len(nick); l < 1 || l > 25 {
		return models.ErrValidation(user.ID, "nick", "nickname must be 1-25 characters")
	}
	err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		repositories.FieldNick: nick,
	})
	if err != nil {
		return err
	}
	user.Nick = nick
	return nil
}

// SetStatus updates presence and fans a status event out to every friend's
// live connections.
func (s *UserService) SetStatus(user *models.User, status models.Status) error {
	if !models.ValidStatus(status) {
		return models.ErrValidation(user.ID, "status", "wrong status")
	}
	err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		repositories.FieldStatus: status,
	})
	if err != nil {
		return err
	}
	user.Status = status

	if s.registry != nil {
		ev := notify.Event{Kind: notify.EventStatusUpdate, From: user.ID, Payload: status}
		for _, friendID := range user.Friends {
			s.registry.Publish(friendID, ev)
		}
	}
	return nil
}

// SetTextStatus updates the free-form status line.
func (s *UserService) SetTextStatus(user *models.User, textStatus string) error {
	if len(textStatus) > 256 {
		return models.ErrValidation(user.ID, "text_status", "too long status")
	}
	err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		repositories.FieldTextStatus: textStatus,
	})
	if err != nil {
		return err
	}
	user.TextStatus = textStatus
	return nil
}

// SetFriendCode assigns the user's globally unique friend code. Bots cannot
// own one.
func (s *UserService) SetFriendCode(user *models.User, code string) error {
	if user.Bot {
		return models.ErrUnavailableForBots(user.ID)
	}
	if l := len(code); l < 3 || l > 50 {
		return models.ErrValidation(user.ID, "friend_code", "friend code must be 3-50 characters")
	}
	taken, err := s.userRepo.FriendCodeTaken(code)
	if err != nil {
		return err
	}
	if taken {
		return models.ErrValidation(user.ID, "friend_code", "code is already used")
	}
	err = s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		repositories.FieldFriendCode: code,
	})
	if err != nil {
		return err
	}
	user.FriendCode = code
	return nil
}

// FindByFriendCode resolves a friend code to its owner.
func (s *UserService) FindByFriendCode(code string) (*models.User, error) {
	user, err := s.userRepo.GetByFriendCode(code)
	if err != nil || user.Deleted {
		return nil, models.ErrInvalidUser("", "", "no user owns this code")
	}
	return user, nil
}

// DeleteAccount soft-deletes the user: the document stays for referential
// stability, but session, profile extras, and all relation sets are cleared
// in one batch and every live connection is torn down. Ids stored in other
// users' sets keep resolving to this (now deleted) document.
func (s *UserService) DeleteAccount(user *models.User) error {
	err := s.userRepo.ApplyBatch([]repositories.UserUpdate{
		{ID: user.ID, Mutations: []repositories.FieldMutation{
			repositories.Unset(repositories.FieldToken),
			repositories.Unset(repositories.FieldStatus),
			repositories.Unset(repositories.FieldTextStatus),
			repositories.Unset(repositories.FieldFriendCode),
			repositories.Unset(repositories.FieldParent),
			repositories.Unset(repositories.FieldBlocked),
			repositories.Unset(repositories.FieldFriends),
			repositories.Unset(repositories.FieldPendingsOutgoing),
			repositories.Unset(repositories.FieldPendingsIncoming),
			repositories.Set(repositories.FieldDeleted, true),
		}},
	})
	if err != nil {
		return err
	}

	user.Deleted = true
	user.Token = ""
	user.Status = models.StatusOffline
	user.TextStatus = ""
	user.FriendCode = ""
	user.Parent = ""
	user.Blocked = models.IDSet{}
	user.Friends = models.IDSet{}
	user.PendingsOutgoing = models.IDSet{}
	user.PendingsIncoming = models.IDSet{}

	if s.registry != nil {
		s.registry.CloseUser(user.ID)
	}
	return nil
}

// CloseSessions tears down every live connection of a user. Used together
// with AuthService.RotateToken for logout-everywhere.
func (s *UserService) CloseSessions(userID string) {
	if s.registry != nil {
		s.registry.CloseUser(userID)
	}
}
