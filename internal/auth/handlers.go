package auth

import "github.com/gofiber/fiber/v2"

// RegisterRoutes exposes device-token minting to the local UI. The agent only
// listens on the device loopback, so the endpoint needs no prior credential.
func RegisterRoutes(r fiber.Router, issuer *TokenIssuer) {
	r.Post("/token", func(c *fiber.Ctx) error {
		resp, err := issuer.Issue()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(resp)
	})
}
