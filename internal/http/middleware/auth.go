package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"assignly/internal/auth"
	"assignly/internal/model"
	"assignly/internal/repository"
)

const (
	// PrincipalLocalKey is the key under which Authenticate stores the caller.
	PrincipalLocalKey = "principal"
	// AccountLocalKey is the key under which LoadAccount stores the caller's account.
	AccountLocalKey = "account"
)

// TokenVerifier turns a raw bearer token into a principal.
type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

// AccountResolver returns the stored account of an authenticated caller,
// creating it on first sight.
type AccountResolver interface {
	Ensure(ctx context.Context, p auth.Principal) (*model.Account, error)
}

// Authenticate requires a valid bearer token and stores the caller under
// PrincipalLocalKey. Failures end the request with 401.
func Authenticate(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
		}
		p, err := v.Verify(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrInvalidToken.Error())
		}
		c.Locals(PrincipalLocalKey, p)
		trace.SpanFromContext(c.UserContext()).SetAttributes(attribute.String("enduser.id", p.AccountID))
		return c.Next()
	}
}

// LoadAccount resolves the caller's account and stores it under
// AccountLocalKey. It must run after Authenticate.
func LoadAccount(r AccountResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
		}
		acct, err := r.Ensure(c.UserContext(), p)
		if err != nil {
			if errors.Is(err, repository.ErrStorageUnavailable) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "account store unavailable")
			}
			return err
		}
		c.Locals(AccountLocalKey, acct)
		trace.SpanFromContext(c.UserContext()).SetAttributes(attribute.String("enduser.role", string(acct.Role)))
		return c.Next()
	}
}

// RequireRole rejects callers whose stored account lacks role or is inactive
// with 403. It must run after LoadAccount.
func RequireRole(role model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct, ok := AccountFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
		}
		if !acct.IsActive || acct.Role != role {
			return fiber.NewError(fiber.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}

// PrincipalFrom returns the caller stored by Authenticate.
func PrincipalFrom(c *fiber.Ctx) (auth.Principal, bool) {
	p, ok := c.Locals(PrincipalLocalKey).(auth.Principal)
	return p, ok
}

// AccountFrom returns the account stored by LoadAccount.
func AccountFrom(c *fiber.Ctx) (*model.Account, bool) {
	a, ok := c.Locals(AccountLocalKey).(*model.Account)
	return a, ok && a != nil
}
