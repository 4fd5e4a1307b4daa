package repositories

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"palaver/internal/models"
)

// MockUserRepository is an in-memory implementation of UserRepository.
// It backs service tests and the no-database boot mode.
type MockUserRepository struct {
	users map[string]models.User
	mu    sync.RWMutex
}

// NewMockUserRepository creates a new instance of MockUserRepository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]models.User),
	}
}

// Create adds a new user.
func (r *MockUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.LoginHash != "" {
		for _, u := range r.users {
			if u.LoginHash == user.LoginHash {
				return fmt.Errorf("login already registered")
			}
		}
	}
	r.users[user.ID] = *user
	return nil
}

// GetByID returns a user by their id.
func (r *MockUserRepository) GetByID(id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %s not found", id)
	}
	return &user, nil
}

// GetByToken returns the user holding a session token.
func (r *MockUserRepository) GetByToken(token string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Token != "" && u.Token == token {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("no user holds this token")
}

// GetByCredentials returns the user matching hashed login and password digest.
func (r *MockUserRepository) GetByCredentials(loginHash, passwordHash string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.LoginHash == loginHash && u.PasswordHash == passwordHash {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("no user matches these credentials")
}

// GetSalt returns the salt stored for a hashed login.
func (r *MockUserRepository) GetSalt(loginHash string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.LoginHash == loginHash {
			return u.Salt, nil
		}
	}
	return "", fmt.Errorf("no user with this login")
}

// GetByFriendCode returns the user owning a friend code.
func (r *MockUserRepository) GetByFriendCode(code string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.FriendCode != "" && u.FriendCode == code {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("no user owns friend code %s", code)
}

// GetMany returns the users whose ids are present.
func (r *MockUserRepository) GetMany(ids []string) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// UpdateFields assigns the given columns on one user document.
func (r *MockUserRepository) UpdateFields(id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user with ID %s not found for update", id)
	}
	for field, value := range fields {
		if err := applyMutation(&user, Set(field, value)); err != nil {
			return err
		}
	}
	r.users[id] = user
	return nil
}

// ApplyBatch applies each UserUpdate in order, mirroring the no-atomicity
// contract of the persistent implementation: a failing update leaves the
// earlier ones applied.
func (r *MockUserRepository) ApplyBatch(updates []UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, upd := range updates {
		user, ok := r.users[upd.ID]
		if !ok {
			return fmt.Errorf("batch stopped at update %d: user with ID %s not found", i, upd.ID)
		}
		for _, m := range upd.Mutations {
			if err := applyMutation(&user, m); err != nil {
				return fmt.Errorf("batch stopped at update %d (user %s): %w", i, upd.ID, err)
			}
		}
		r.users[upd.ID] = user
	}
	return nil
}

// CountBots counts non-deleted bot accounts owned by a parent user.
func (r *MockUserRepository) CountBots(parentID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, u := range r.users {
		if u.Bot && !u.Deleted && u.Parent == parentID {
			count++
		}
	}
	return count, nil
}

// FriendCodeTaken reports whether any user already owns the given code.
func (r *MockUserRepository) FriendCodeTaken(code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.FriendCode != "" && u.FriendCode == code {
			return true, nil
		}
	}
	return false, nil
}
