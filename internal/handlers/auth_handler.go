package handlers

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"palaver/internal/middleware"
	"palaver/internal/services"
)

// AuthHandler handles HTTP requests for registration and authentication.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	validate    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", h.HandleRegister)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Post("/bot", middleware.AuthRequired(h.authService), h.HandleRegisterBot)
	authRoutes.Post("/logout_everywhere", middleware.AuthRequired(h.authService), h.HandleLogoutEverywhere)
}

// RegisterRequest is the request body for human registration.
type RegisterRequest struct {
	Nick     string `json:"nick" validate:"required,min=1,max=25"`
	Login    string `json:"login" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
}

// HandleRegister handles new user registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return validationFail(c, err)
	}

	user, err := h.authService.Register(req.Nick, req.Login, req.Password)
	if err != nil {
		log.Printf("Error registering user: %v", err)
		return failErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":  user.Private(),
		"token": user.Token,
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin authenticates by login and password and returns the session
// token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return validationFail(c, err)
	}

	user, err := h.authService.Authorize("", req.Login, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication failed",
		})
	}

	return c.JSON(fiber.Map{
		"user":  user.Private(),
		"token": user.Token,
	})
}

// BotRegisterRequest is the request body for bot registration.
type BotRegisterRequest struct {
	Nick string `json:"nick" validate:"required,min=1,max=25"`
}

// HandleRegisterBot creates a bot account owned by the authenticated user.
func (h *AuthHandler) HandleRegisterBot(c *fiber.Ctx) error {
	var req BotRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return validationFail(c, err)
	}

	bot, err := h.authService.RegisterBot(req.Nick, currentUser(c))
	if err != nil {
		log.Printf("Error registering bot: %v", err)
		return failErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"bot":   bot.Private(),
		"token": bot.Token,
	})
}

// HandleLogoutEverywhere rotates the session token and tears down every live
// connection, logging the user out on all devices.
func (h *AuthHandler) HandleLogoutEverywhere(c *fiber.Ctx) error {
	user := currentUser(c)

	token, err := h.authService.RotateToken(user)
	if err != nil {
		log.Printf("Error rotating token for user %s: %v", user.ID, err)
		return failErr(c, err)
	}
	h.userService.CloseSessions(user.ID)

	return c.JSON(fiber.Map{
		"token": token,
	})
}

// validationFail reports validator tag failures field by field.
func validationFail(c *fiber.Ctx, err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}
