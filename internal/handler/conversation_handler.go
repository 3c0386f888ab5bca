package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/service"
	"github.com/noah-isme/social-go-api/internal/utils"
)

// ConversationHandler exposes direct message endpoints.
type ConversationHandler struct {
	service service.ConversationService
	logger  zerolog.Logger
}

// NewConversationHandler constructs a conversation handler.
func NewConversationHandler(service service.ConversationService, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		logger:  logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register wires conversation routes.
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/unread-count", h.unreadCount)
	router.Get("/with/:otherUserId", h.getOrCreate)
	router.Post("/:id/messages", h.send)
	router.Post("/:id/images", h.sendImage)
	router.Patch("/:id/read", h.markRead)
	router.Patch("/:id/typing", h.typing)
	router.Patch("/:id/last-seen", h.lastSeen)
	router.Patch("/:id/mute", h.mute)
	router.Patch("/:id/messages/:messageId", h.editMessage)
	router.Delete("/:id/messages/:messageId", h.deleteMessage)
	router.Delete("/:id", h.delete)
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	conversations, err := h.service.List(requestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "conversations retrieved", conversations)
}

func (h *ConversationHandler) unreadCount(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	total, err := h.service.TotalUnread(requestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "unread count", dto.CountResponse{Count: int64(total)})
}

func (h *ConversationHandler) getOrCreate(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	conversation, err := h.service.GetOrCreate(requestContext(c), userID, c.Params("otherUserId"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "conversation retrieved", conversation)
}

func (h *ConversationHandler) send(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.Send(requestContext(c), c.Params("id"), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ConversationHandler) sendImage(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	file := optionalFile(c, "image")
	if file == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "image file is required")
	}

	message, err := h.service.SendImage(requestContext(c), c.Params("id"), userID, file)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "image sent", message)
}

func (h *ConversationHandler) markRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.service.MarkRead(requestContext(c), c.Params("id"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "messages marked as read", result)
}

func (h *ConversationHandler) typing(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.TypingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	presence, err := h.service.SetTyping(requestContext(c), c.Params("id"), userID, payload.Typing)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "typing updated", presence)
}

func (h *ConversationHandler) lastSeen(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	presence, err := h.service.UpdateLastSeen(requestContext(c), c.Params("id"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "last seen updated", presence)
}

func (h *ConversationHandler) mute(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.MuteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	presence, err := h.service.SetMuted(requestContext(c), c.Params("id"), userID, payload.Muted)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "mute updated", presence)
}

func (h *ConversationHandler) editMessage(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.MessageUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.EditMessage(requestContext(c), c.Params("id"), c.Params("messageId"), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *ConversationHandler) deleteMessage(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	message, err := h.service.DeleteMessage(requestContext(c), c.Params("id"), c.Params("messageId"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "message deleted", message)
}

func (h *ConversationHandler) delete(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	if err := h.service.Delete(requestContext(c), c.Params("id"), userID); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "conversation deleted", nil)
}
