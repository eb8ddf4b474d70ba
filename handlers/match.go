package handlers

import (
	"github.com/Metavative/RealtimepoolproNewApis/middleware"
	"github.com/Metavative/RealtimepoolproNewApis/services"

	"github.com/gofiber/fiber/v2"
)

// SetupMatchRoutes registers the match lifecycle endpoints. Every route is
// authenticated: mutating a match requires the gateway-resolved user context.
func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService) {
	match := app.Group("/api/match", middleware.UserContextMiddleware())

	match.Post("/challenge", matchService.CreateChallenge)
	match.Post("/accept", matchService.AcceptChallenge)
	match.Post("/finish", matchService.FinishMatch)
	match.Post("/cancel", matchService.CancelMatch)

	match.Get("/:id", matchService.GetMatch)
	match.Get("/:id/transactions", matchService.GetMatchTransactions)
}
