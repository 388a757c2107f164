package controllers

import (
	"lessonsync_go/middleware"
	"lessonsync_go/services/websocket"
	"lessonsync_go/utils"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// WebSocketController streams scheduling progress to admin dashboards
type WebSocketController struct {
	hub    *websocket.Hub
	secret string
}

func NewWebSocketController(hub *websocket.Hub, secret string) *WebSocketController {
	return &WebSocketController{hub: hub, secret: secret}
}

// Upgrade rejects plain HTTP requests to the websocket endpoint
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if fiberws.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT[&group_id=ID]",
	})
}

// WebSocketHandler validates the token query parameter and attaches the connection to the hub.
// An optional group_id limits the feed to that group's events.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		token := c.Query("token")
		if token == "" {
			logrus.Warn("WebSocket connection rejected: missing token")
			c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "Missing token"))
			c.Close()
			return
		}

		claims, err := middleware.ParseToken(token, wsc.secret)
		if err != nil {
			logrus.WithError(err).Warn("WebSocket connection rejected: invalid token")
			c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "Invalid token"))
			c.Close()
			return
		}

		var groupID uint
		if raw := c.Query("group_id"); raw != "" {
			if id, err := utils.ParseUint(raw); err == nil {
				groupID = id
			}
		}

		logrus.WithFields(logrus.Fields{"user_id": claims.UserID, "group_id": groupID}).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, claims.UserID, groupID)
	})
}

// GetWebSocketStats returns WebSocket connection statistics
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
