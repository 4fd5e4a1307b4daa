package repositories

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"palaver/internal/models"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Create inserts a new user document.
func (r *GORMUserRepository) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their id.
func (r *GORMUserRepository) GetByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get user by ID %s: %w", id, err)
	}
	return &user, nil
}

// GetByToken retrieves a user by their current session token.
func (r *GORMUserRepository) GetByToken(token string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "token = ?", token).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("no user holds this token")
		}
		return nil, fmt.Errorf("failed to get user by token: %w", err)
	}
	return &user, nil
}

// GetByCredentials retrieves a user by hashed login and password digest.
func (r *GORMUserRepository) GetByCredentials(loginHash, passwordHash string) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, "login_hash = ? AND password_hash = ?", loginHash, passwordHash).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("no user matches these credentials")
		}
		return nil, fmt.Errorf("failed to get user by credentials: %w", err)
	}
	return &user, nil
}

// GetSalt returns the password salt stored for a hashed login.
func (r *GORMUserRepository) GetSalt(loginHash string) (string, error) {
	var user models.User
	if err := r.db.Select("salt").First(&user, "login_hash = ?", loginHash).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf("no user with this login")
		}
		return "", fmt.Errorf("failed to get salt: %w", err)
	}
	return user.Salt, nil
}

// GetByFriendCode retrieves a user by their friend code.
func (r *GORMUserRepository) GetByFriendCode(code string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "friend_code = ?", code).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("no user owns friend code %s", code)
		}
		return nil, fmt.Errorf("failed to get user by friend code: %w", err)
	}
	return &user, nil
}

// GetMany retrieves the users whose ids are in the given list. Missing ids are
// simply absent from the result.
func (r *GORMUserRepository) GetMany(ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := r.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	return users, nil
}

// UpdateFields assigns the given columns on one user document.
func (r *GORMUserRepository) UpdateFields(id string, fields map[string]interface{}) error {
	res := r.db.Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %s not found for update", id)
	}
	return nil
}

// ApplyBatch applies each UserUpdate in order, as one issued batch. There is
// no wrapping transaction across documents: if update N fails, updates before
// it stay written and the error reports where the batch stopped.
func (r *GORMUserRepository) ApplyBatch(updates []UserUpdate) error {
	for i, upd := range updates {
		if err := r.applyOne(upd); err != nil {
			return fmt.Errorf("batch stopped at update %d (user %s): %w", i, upd.ID, err)
		}
	}
	return nil
}

func (r *GORMUserRepository) applyOne(upd UserUpdate) error {
	var user models.User
	if err := r.db.First(&user, "id = ?", upd.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("user with ID %s not found", upd.ID)
		}
		return fmt.Errorf("failed to load user for batch update: %w", err)
	}

	changed := make(map[string]interface{}, len(upd.Mutations))
	for _, m := range upd.Mutations {
		if err := applyMutation(&user, m); err != nil {
			return err
		}
		changed[m.Field] = columnValue(&user, m.Field)
	}

	if err := r.db.Model(&models.User{}).Where("id = ?", upd.ID).Updates(changed).Error; err != nil {
		return fmt.Errorf("failed to write batch update: %w", err)
	}
	return nil
}

// columnValue reads the post-mutation value of a named column off the loaded
// document so Updates writes exactly the touched columns.
func columnValue(u *models.User, field string) interface{} {
	switch field {
	case FieldBlocked:
		return u.Blocked
	case FieldFriends:
		return u.Friends
	case FieldPendingsOutgoing:
		return u.PendingsOutgoing
	case FieldPendingsIncoming:
		return u.PendingsIncoming
	case FieldToken:
		return u.Token
	case FieldStatus:
		return u.Status
	case FieldTextStatus:
		return u.TextStatus
	case FieldFriendCode:
		return u.FriendCode
	case FieldParent:
		return u.Parent
	case FieldNick:
		return u.Nick
	case FieldDeleted:
		return u.Deleted
	default:
		return nil
	}
}

// CountBots counts the non-deleted bot accounts owned by a parent user.
func (r *GORMUserRepository) CountBots(parentID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("parent = ? AND bot = ? AND deleted = ?", parentID, true, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count bots for parent %s: %w", parentID, err)
	}
	return count, nil
}

// FriendCodeTaken reports whether any user already owns the given code.
func (r *GORMUserRepository) FriendCodeTaken(code string) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("friend_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check friend code: %w", err)
	}
	return count > 0, nil
}
