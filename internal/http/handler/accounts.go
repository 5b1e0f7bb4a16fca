package handler

import (
	"github.com/gofiber/fiber/v2"

	"assignly/internal/http/middleware"
	"assignly/internal/service"
)

// GetAccount returns the caller's account as resolved by LoadAccount, which
// creates it on first sign-in.
func GetAccount() fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct, ok := middleware.AccountFrom(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.JSON(acct)
	}
}

func AdminGetAccount(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		acct, err := svc.Get(c.UserContext(), p, c.Params("accountId"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(acct)
	}
}

func ListAccounts(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		limit, offset, bad := pagination(c)
		if bad != nil {
			return bad.write(c)
		}
		res, err := svc.List(c.UserContext(), p, limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// ProvisionAccount answers 201 when the account was created and 200 when it
// already existed.
func ProvisionAccount(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		var in service.ProvisionInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		acct, created, err := svc.Provision(c.UserContext(), p, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(acct)
	}
}
