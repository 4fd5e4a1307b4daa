package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"palaver/internal/middleware"
	"palaver/internal/models"
	"palaver/internal/services"
)

// UserHandler handles HTTP requests for profiles.
type UserHandler struct {
	authService *services.AuthService
	userService *services.UserService
	validate    *validator.Validate
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *services.AuthService, userService *services.UserService) *UserHandler {
	return &UserHandler{
		authService: authService,
		userService: userService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the user routes with the Fiber app.
func (h *UserHandler) RegisterRoutes(router fiber.Router) {
	userRoutes := router.Group("/users", middleware.AuthRequired(h.authService))
	userRoutes.Get("/me", h.HandleMe)
	userRoutes.Patch("/me", h.HandleUpdateMe)
	userRoutes.Delete("/me", h.HandleDeleteMe)
	userRoutes.Get("/code/:code", h.HandleFriendCodeLookup)
	userRoutes.Get("/:id", h.HandleGetUser)
}

// HandleMe returns the caller's private projection.
func (h *UserHandler) HandleMe(c *fiber.Ctx) error {
	return c.JSON(currentUser(c).Private())
}

// HandleGetUser returns any user's public projection. Deleted users stay
// resolvable and are reported as deleted.
func (h *UserHandler) HandleGetUser(c *fiber.Ctx) error {
	user, err := h.userService.GetByID(c.Params("id"))
	if err != nil {
		return failErr(c, err)
	}
	return c.JSON(user.Public())
}

// UpdateMeRequest carries the optional profile fields a PATCH may set.
type UpdateMeRequest struct {
	Nick       *string        `json:"nick" validate:"omitempty,min=1,max=25"`
	Status     *models.Status `json:"status"`
	TextStatus *string        `json:"text_status" validate:"omitempty,max=256"`
	FriendCode *string        `json:"friend_code" validate:"omitempty,min=3,max=50"`
}

// HandleUpdateMe applies the provided profile fields one setter at a time.
// The first failing field aborts the rest; earlier fields stay applied.
func (h *UserHandler) HandleUpdateMe(c *fiber.Ctx) error {
	var req UpdateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return validationFail(c, err)
	}

	user := currentUser(c)

	if req.Nick != nil {
		if err := h.userService.SetNick(user, *req.Nick); err != nil {
			return failErr(c, err)
		}
	}
	if req.Status != nil {
		if err := h.userService.SetStatus(user, *req.Status); err != nil {
			return failErr(c, err)
		}
	}
	if req.TextStatus != nil {
		if err := h.userService.SetTextStatus(user, *req.TextStatus); err != nil {
			return failErr(c, err)
		}
	}
	if req.FriendCode != nil {
		if err := h.userService.SetFriendCode(user, *req.FriendCode); err != nil {
			return failErr(c, err)
		}
	}

	return c.JSON(user.Private())
}

// HandleDeleteMe soft-deletes the caller's account.
func (h *UserHandler) HandleDeleteMe(c *fiber.Ctx) error {
	user := currentUser(c)
	if err := h.userService.DeleteAccount(user); err != nil {
		log.Printf("Error deleting account %s: %v", user.ID, err)
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleFriendCodeLookup resolves a friend code to its owner's public
// profile.
func (h *UserHandler) HandleFriendCodeLookup(c *fiber.Ctx) error {
	user, err := h.userService.FindByFriendCode(c.Params("code"))
	if err != nil {
		return failErr(c, err)
	}
	return c.JSON(user.Public())
}
