package handler

import (
	"context"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"assignly/internal/auth"
	"assignly/internal/http/middleware"
	"assignly/internal/model"
	"assignly/internal/service"
)

const (
	defaultLinkExpiry = 15 * time.Minute
	maxLinkExpiry     = 24 * time.Hour
)

// StatusAdvancer runs one pass of the pending order promotion.
type StatusAdvancer interface {
	Run(ctx context.Context) (service.AdvanceReport, error)
}

func principal(c *fiber.Ctx) (auth.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return auth.Principal{}, fiber.NewError(fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
	}
	return p, nil
}

// badRequest is a rejected query parameter.
type badRequest struct {
	code    string
	message string
}

func (b *badRequest) write(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, b.code, b.message)
}

// pagination reads limit and offset; zero values let the service apply defaults.
func pagination(c *fiber.Ctx) (limit, offset int, bad *badRequest) {
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil || limit < 0 {
		return 0, 0, &badRequest{code: "INVALID_LIMIT", message: "invalid limit"}
	}
	offset, err = strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, &badRequest{code: "INVALID_OFFSET", message: "invalid offset"}
	}
	return limit, offset, nil
}

// SubmitOrder accepts multipart/form-data with fields title, order_type,
// notes and one or more files under "files".
func SubmitOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "multipart form with files is required")
		}
		headers := form.File["files"]
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "at least one file is required")
		}

		uploads := make([]service.Upload, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			defer func(f multipart.File) { _ = f.Close() }(f)

			ct := fh.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			uploads = append(uploads, service.Upload{Name: fh.Filename, ContentType: ct, Size: fh.Size, Content: f})
		}

		placed, err := svc.Submit(c.UserContext(), p, service.SubmitOrderInput{
			Title:     formValue(form, "title"),
			OrderType: model.OrderType(formValue(form, "order_type")),
			Notes:     formValue(form, "notes"),
			Files:     uploads,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(placed)
	}
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// ListOrders lists orders. Students always get their own; admins may filter
// by account_id.
func ListOrders(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		limit, offset, bad := pagination(c)
		if bad != nil {
			return bad.write(c)
		}
		res, err := svc.List(c.UserContext(), p, service.ListOrdersQuery{
			AccountID: c.Query("account_id"),
			Status:    c.Query("status"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// orderKey reads the order address from the route. Routes without
// :accountId address the caller's own orders.
func orderKey(c *fiber.Ctx, p auth.Principal) model.OrderKey {
	accountID := c.Params("accountId")
	if accountID == "" {
		accountID = p.AccountID
	}
	return model.OrderKey{AccountID: accountID, OrderID: c.Params("orderId")}
}

func GetOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		o, err := svc.Get(c.UserContext(), p, orderKey(c, p))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(o)
	}
}

// OrderFiles returns signed download links; ?expiry= takes a Go duration.
func OrderFiles(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		expiry := defaultLinkExpiry
		if raw := c.Query("expiry"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 || d > maxLinkExpiry {
				return writeError(c, fiber.StatusBadRequest, "INVALID_EXPIRY", "expiry must be a duration up to 24h")
			}
			expiry = d
		}
		links, err := svc.FileLinks(c.UserContext(), p, orderKey(c, p), expiry)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"data": links})
	}
}

// DeleteOrder answers 200 with the deletion report, also when the order was
// already gone.
func DeleteOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		res, err := svc.Delete(c.UserContext(), p, orderKey(c, p))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

func UpdateOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principal(c)
		if err != nil {
			return err
		}
		var upd service.OrderUpdate
		if err := c.BodyParser(&upd); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		o, err := svc.Update(c.UserContext(), p, orderKey(c, p), upd)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(o)
	}
}

// AdvanceOrders runs the status advancer synchronously and returns its report.
func AdvanceOrders(adv StatusAdvancer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := adv.Run(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(report)
	}
}
