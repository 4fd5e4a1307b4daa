package handlers

import (
	"github.com/gofiber/fiber/v2"

	"palaver/internal/middleware"
	"palaver/internal/services"
)

// RelationHandler handles HTTP requests for the friend/block state machine.
type RelationHandler struct {
	authService     *services.AuthService
	relationService *services.RelationService
}

// NewRelationHandler creates a new RelationHandler.
func NewRelationHandler(authService *services.AuthService, relationService *services.RelationService) *RelationHandler {
	return &RelationHandler{
		authService:     authService,
		relationService: relationService,
	}
}

// RegisterRoutes registers the relation routes with the Fiber app.
func (h *RelationHandler) RegisterRoutes(router fiber.Router) {
	auth := middleware.AuthRequired(h.authService)

	friendRoutes := router.Group("/friends", auth)
	friendRoutes.Get("/", h.HandleListFriends)
	friendRoutes.Post("/requests/:id", h.HandleSendRequest)
	friendRoutes.Post("/requests/:id/respond", h.HandleRespondRequest)
	friendRoutes.Delete("/requests/:id", h.HandleCancelRequest)
	friendRoutes.Delete("/:id", h.HandleRemoveFriend)

	blockedRoutes := router.Group("/blocked", auth)
	blockedRoutes.Get("/", h.HandleListBlocked)
	blockedRoutes.Put("/:id", h.HandleBlock)
	blockedRoutes.Delete("/:id", h.HandleUnblock)
}

// HandleListFriends returns the caller's friends as public profiles, nick
// descending.
func (h *RelationHandler) HandleListFriends(c *fiber.Ctx) error {
	friends, err := h.relationService.ListFriends(currentUser(c))
	if err != nil {
		return failErr(c, err)
	}
	return c.JSON(friends)
}

// HandleSendRequest sends a friend request to the user in the path.
func (h *RelationHandler) HandleSendRequest(c *fiber.Ctx) error {
	if err := h.relationService.SendRequest(currentUser(c), c.Params("id")); err != nil {
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// RespondRequestBody carries the accept/decline decision.
type RespondRequestBody struct {
	Confirm bool `json:"confirm"`
}

// HandleRespondRequest accepts or declines an incoming friend request.
func (h *RelationHandler) HandleRespondRequest(c *fiber.Ctx) error {
	var body RespondRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.relationService.RespondRequest(currentUser(c), c.Params("id"), body.Confirm); err != nil {
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleCancelRequest withdraws a previously sent friend request.
func (h *RelationHandler) HandleCancelRequest(c *fiber.Ctx) error {
	if err := h.relationService.CancelRequest(currentUser(c), c.Params("id")); err != nil {
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRemoveFriend removes an existing friendship.
func (h *RelationHandler) HandleRemoveFriend(c *fiber.Ctx) error {
	if err := h.relationService.RemoveFriend(currentUser(c), c.Params("id")); err != nil {
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListBlocked returns the caller's blocked users as public profiles.
func (h *RelationHandler) HandleListBlocked(c *fiber.Ctx) error {
	blocked, err := h.relationService.ListBlocked(currentUser(c))
	if err != nil {
		return failErr(c, err)
	}
	return c.JSON(blocked)
}

// HandleBlock blocks the user in the path, clearing any prior relation.
func (h *RelationHandler) HandleBlock(c *fiber.Ctx) error {
	if err := h.relationService.Block(currentUser(c), c.Params("id")); err != nil {
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleUnblock removes the user in the path from the blocked set.
func (h *RelationHandler) HandleUnblock(c *fiber.Ctx) error {
	if err := h.relationService.Unblock(currentUser(c), c.Params("id")); err != nil {
		return failErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
