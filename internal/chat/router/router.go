package router

import (
	"context"

	"ephemeral_chat/internal/chat/app"

	// swagger doc
	_ "ephemeral_chat/docs"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 註冊聊天服務路由, ctx bounds every websocket connection and the store calls it makes
// @title Ephemeral Chat API
// @version 1.0
// @description Room scoped chat with messages that expire after seven days
// @host localhost:10000
// @BasePath /
func RegisterRoutes(ctx context.Context, r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, chatHTTP *app.ChatHTTPHandler, publicDir string) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	r.Post("/debug", app.DebugLogFlag)

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(ctx, c)
	}))

	r.Get("/messages", chatHTTP.GetMessages)
	r.Post("/upload", chatHTTP.Upload)
	r.Get("/uploads/:name", chatHTTP.GetAttachment)

	// 前端靜態檔, health check only when there is none
	if publicDir != "" {
		r.Static("/", publicDir)
	} else {
		r.Get("/", app.ConnectCheck)
	}
}
