package handlers

import (
	"github.com/Metavative/RealtimepoolproNewApis/middleware"
	"github.com/Metavative/RealtimepoolproNewApis/services"

	"github.com/gofiber/fiber/v2"
)

// SetupUserRoutes registers the profile-store endpoints the match flow
// depends on: cards for notification payloads, presence status, roster
// lookups and avatar storage.
func SetupUserRoutes(app *fiber.App, playerService *services.PlayerService) {
	user := app.Group("/api/user")

	user.Get("/status/:id", playerService.GetStatus)
	user.Get("/card/:id", playerService.GetCard)
	user.Get("/search", playerService.SearchPlayers)

	secured := user.Group("/", middleware.UserContextMiddleware())
	secured.Get("/nearby", playerService.GetNearby)
	secured.Post("/avatar", playerService.UploadAvatar)
}
