package handler

import (
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/service"
	"github.com/noah-isme/social-go-api/internal/utils"
)

// PostHandler exposes posts, likes and the comment tree.
type PostHandler struct {
	service service.PostService
	logger  zerolog.Logger
}

// NewPostHandler constructs a post handler.
func NewPostHandler(service service.PostService, logger zerolog.Logger) *PostHandler {
	return &PostHandler{
		service: service,
		logger:  logger.With().Str("component", "post_handler").Logger(),
	}
}

// Register wires post routes.
func (h *PostHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Get("/", h.feed)
	router.Get("/:id", h.get)
	router.Patch("/:id/like", h.toggleLike)
	router.Post("/:id/comments", h.addComment)
	router.Post("/:id/comments/:commentId/replies", h.reply)
	router.Patch("/:id/comments/:commentId", h.editComment)
	router.Delete("/:id/comments/:commentId", h.deleteComment)
	router.Patch("/:id/comments/:commentId/like", h.toggleCommentLike)
}

// RegisterUserRoutes wires the per-user post listing under the users group.
func (h *PostHandler) RegisterUserRoutes(router fiber.Router) {
	router.Get("/:userId/posts", h.listByUser)
}

func (h *PostHandler) create(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.PostCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	post, err := h.service.Create(requestContext(c), userID, payload, optionalFile(c, "picture"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "post created", post)
}

func (h *PostHandler) feed(c *fiber.Ctx) error {
	var query dto.PostListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	posts, err := h.service.Feed(requestContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, posts, "posts retrieved", fiber.Map{"limit": query.Limit, "skip": query.Skip})
}

func (h *PostHandler) listByUser(c *fiber.Ctx) error {
	var query dto.PostListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	posts, err := h.service.ListByUser(requestContext(c), c.Params("userId"), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, posts, "posts retrieved", fiber.Map{"limit": query.Limit, "skip": query.Skip})
}

func (h *PostHandler) get(c *fiber.Ctx) error {
	post, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "post retrieved", post)
}

func (h *PostHandler) toggleLike(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.service.ToggleLike(requestContext(c), c.Params("id"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "like updated", result)
}

func (h *PostHandler) addComment(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.CommentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	comment, err := h.service.AddComment(requestContext(c), c.Params("id"), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "comment added", comment)
}

func (h *PostHandler) reply(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.CommentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	reply, err := h.service.Reply(requestContext(c), c.Params("id"), c.Params("commentId"), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "reply added", reply)
}

func (h *PostHandler) editComment(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.CommentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	comment, err := h.service.EditComment(requestContext(c), c.Params("id"), c.Params("commentId"), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "comment updated", comment)
}

func (h *PostHandler) deleteComment(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	if err := h.service.DeleteComment(requestContext(c), c.Params("id"), c.Params("commentId"), userID); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "comment deleted", nil)
}

func (h *PostHandler) toggleCommentLike(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.service.ToggleCommentLike(requestContext(c), c.Params("id"), c.Params("commentId"), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "like updated", result)
}

// optionalFile returns the uploaded file under field, or nil when the request
// carries none.
func optionalFile(c *fiber.Ctx, field string) *multipart.FileHeader {
	file, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return file
}
