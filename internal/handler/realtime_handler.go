package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/social-go-api/internal/middleware"
	"github.com/noah-isme/social-go-api/internal/service"
	"github.com/noah-isme/social-go-api/internal/utils"
)

const (
	localRequestCtx = "request_ctx"
	localRoom       = "realtime_room"
)

// RealtimeHandler upgrades authorized clients into conversation and group rooms.
type RealtimeHandler struct {
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(service service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", h.authorize)
	router.Get("/ws", websocket.New(h.handleConnection))
}

// authorize checks room membership before the upgrade so rejected clients
// receive a regular HTTP error.
func (h *RealtimeHandler) authorize(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	room := strings.TrimSpace(c.Query("room"))
	if room == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "room required")
	}

	ctx := requestContext(c)
	if err := h.service.Authorize(ctx, userID, room); err != nil {
		return respondError(c, h.logger, err)
	}

	c.Locals(localRequestCtx, ctx)
	c.Locals(localRoom, room)
	return c.Next()
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	room, _ := conn.Locals(localRoom).(string)
	if userID == "" || room == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals(localRequestCtx).(context.Context)
	correlation, _ := conn.Locals(middleware.LocalCorrelationID).(string)
	opts := service.RealtimeConnectionOptions{
		UserID:        userID,
		Room:          room,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Str("room", room).Msg("realtime websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Str("room", room).Msg("realtime websocket disconnected")
}

func websocketUserID(conn *websocket.Conn) string {
	if id, ok := conn.Locals(middleware.LocalUserID).(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}
