package handler

import (
	"github.com/gofiber/fiber/v2"

	"assignly/internal/auth"
	"assignly/internal/http/middleware"
	"assignly/internal/session"
)

// SessionRoute answers where a client should go for ?path=. The bearer token
// is optional; a missing or invalid one counts as signed out.
// ?loading=true reports that the client is still restoring its session.
// The role is read from the stored account; if it cannot be loaded the caller
// is routed as a student.
func SessionRoute(tokens middleware.TokenVerifier, accounts middleware.AccountResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requested := c.Query("path", "/")
		s := session.Session{Loading: c.QueryBool("loading")}
		if raw := auth.BearerToken(c.Get(fiber.HeaderAuthorization)); raw != "" {
			if p, err := tokens.Verify(raw); err == nil {
				s.Authenticated = true
				if acct, err := accounts.Ensure(c.UserContext(), p); err == nil && acct.IsActive {
					s.Role = acct.Role
				}
			}
		}
		next := session.NextRoute(s, requested)
		return c.JSON(fiber.Map{
			"path":          requested,
			"route":         next,
			"authenticated": s.Authenticated,
		})
	}
}
