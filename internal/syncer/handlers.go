package syncer

import "github.com/gofiber/fiber/v2"

// RegisterRoutes exposes the app-foreground sync hook.
func RegisterRoutes(r fiber.Router, orch *Orchestrator, authMiddleware fiber.Handler) {
	r.Post("/trigger", authMiddleware, func(c *fiber.Ctx) error {
		orch.Trigger()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
	})
}
