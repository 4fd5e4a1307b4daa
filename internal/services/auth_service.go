package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"palaver/internal/models"
	"palaver/internal/repositories"
)

// pbkdf2Iterations is the cost of the password digest. Each invocation runs
// on the request goroutine.
const pbkdf2Iterations = 100000

const pbkdf2KeyLen = 32

// maxBotsPerParent caps how many non-deleted bots one user may own.
const maxBotsPerParent = 20

// AuthService handles registration and authentication. Session tokens are
// HS256 JWTs that are also persisted on the user row: rotating the stored
// token invalidates every previously issued copy at once.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour * 30,
	}
}

// Authorize resolves a user from either a bearer token or a login+password
// pair. Every mismatch comes back as InvalidUser without detail about which
// part failed.
func (s *AuthService) Authorize(token, login, password string) (*models.User, error) {
	switch {
	case token != "":
		return s.authorizeToken(token)
	case login != "" && password != "":
		return s.authorizeCredentials(login, password)
	default:
		return nil, models.ErrValidation("", "credentials", "not enough auth info")
	}
}

func (s *AuthService) authorizeToken(token string) (*models.User, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, models.ErrInvalidUser("", "", "no such user")
	}
	userID, _ := claims["user_id"].(string)

	user, err := s.userRepo.GetByID(userID)
	if err != nil || user.Deleted || user.Token != token {
		return nil, models.ErrInvalidUser("", userID, "no such user")
	}
	return user, nil
}

func (s *AuthService) authorizeCredentials(login, password string) (*models.User, error) {
	loginHash := hashLogin(login)

	salt, err := s.userRepo.GetSalt(loginHash)
	if err != nil {
		return nil, models.ErrInvalidUser("", "", "no such user")
	}

	digest := hashPassword(password, salt)
	user, err := s.userRepo.GetByCredentials(loginHash, digest)
	if err != nil || user.Deleted {
		return nil, models.ErrInvalidUser("", "", "no such user")
	}
	return user, nil
}

// Register creates a human account. The login hash must be unused.
func (s *AuthService) Register(nick, login, password string) (*models.User, error) {
	if l := len(nick); l < 1 || l > 25 {
		return nil, models.ErrValidation("", "nick", "nickname must be 1-25 characters")
	}
	if login == "" || password == "" {
		return nil, models.ErrValidation("", "credentials", "login and password are required")
	}

	loginHash := hashLogin(login)
	if _, err := s.userRepo.GetSalt(loginHash); err == nil {
		return nil, models.ErrValidation("", "login", "disallowed registration")
	}

	salt := generateSalt()
	id := uuid.New().String()
	token, err := s.issueToken(id)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	user := &models.User{
		ID:               id,
		Nick:             nick,
		Status:           models.StatusOnline,
		LoginHash:        loginHash,
		PasswordHash:     hashPassword(password, salt),
		Salt:             salt,
		Token:            token,
		Blocked:          models.IDSet{},
		Friends:          models.IDSet{},
		PendingsOutgoing: models.IDSet{},
		PendingsIncoming: models.IDSet{},
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, models.ErrValidation("", "login", "disallowed registration")
	}
	return user, nil
}

// RegisterBot creates a bot account owned by parent. Bots carry no
// credentials and authenticate by token only.
func (s *AuthService) RegisterBot(nick string, parent *models.User) (*models.User, error) {
	if parent.Bot {
		return nil, models.ErrUnavailableForBots(parent.ID)
	}
	if l := len(nick); l < 1 || l > 25 {
		return nil, models.ErrValidation(parent.ID, "nick", "nickname must be 1-25 characters")
	}

	count, err := s.userRepo.CountBots(parent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bots: %w", err)
	}
	if count >= maxBotsPerParent {
		return nil, models.ErrValidation(parent.ID, "parent", "too many bots")
	}

	id := uuid.New().String()
	token, err := s.issueToken(id)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	bot := &models.User{
		ID:               id,
		Nick:             nick,
		Bot:              true,
		Parent:           parent.ID,
		Status:           models.StatusOnline,
		Token:            token,
		Blocked:          models.IDSet{},
		Friends:          models.IDSet{},
		PendingsOutgoing: models.IDSet{},
		PendingsIncoming: models.IDSet{},
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.userRepo.Create(bot); err != nil {
		return nil, fmt.Errorf("failed to register bot: %w", err)
	}
	return bot, nil
}

// RotateToken issues a fresh session token and persists it, logging the user
// out on every device holding the old one.
func (s *AuthService) RotateToken(user *models.User) (string, error) {
	token, err := s.issueToken(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	err = s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		repositories.FieldToken: token,
	})
	if err != nil {
		return "", err
	}
	user.Token = token
	return token, nil
}

// ValidateToken parses and validates a session token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func (s *AuthService) issueToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(s.tokenDurat).Unix(),
		"iat":     time.Now().Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

// hashLogin normalizes a login to its sha256 hex form; logins are never
// stored in the clear.
func hashLogin(login string) string {
	sum := sha256.Sum256([]byte(login))
	return hex.EncodeToString(sum[:])
}

// hashPassword derives the stored password digest.
func hashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hex.EncodeToString(key)
}

// generateSalt produces a per-user salt from 32 random bytes.
func generateSalt() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failing is unrecoverable for registration
		panic(fmt.Sprintf("failed to read random salt: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
