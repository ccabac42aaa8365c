package server

import (
	"github.com/gofiber/fiber/v2"

	"noticeboard/auth"
)

const roleKey = "role"

// requireKey checks the apikey header or bearer token against secret
func requireKey(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(secret) == 0 {
			c.Locals(roleKey, auth.RoleService)
			return c.Next()
		}

		role, err := auth.Verify(auth.KeyFromHeaders(c.Get("apikey"), c.Get(fiber.HeaderAuthorization)), secret)
		if err != nil {
			return err
		}
		c.Locals(roleKey, role)
		return c.Next()
	}
}
