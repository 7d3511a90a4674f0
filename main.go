package main

import (
	"context"

	"ephemeral_chat/internal/chat/router"

	"github.com/gofiber/fiber/v2"
)

// 服務入口在 cmd/。此程式用於init swagger
// swag init output ./docs
func main() {
	app := fiber.New()

	router.RegisterRoutes(context.Background(), app, nil, nil, "")
}
