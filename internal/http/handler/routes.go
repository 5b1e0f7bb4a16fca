package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"assignly/internal/http/middleware"
	"assignly/internal/model"
	"assignly/internal/service"
)

// Deps are the collaborators the HTTP routes need.
type Deps struct {
	DB       Pinger
	Orders   service.OrderService
	Accounts service.AccountService
	Advancer StatusAdvancer
	Tokens   middleware.TokenVerifier
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parse, call the service, map errors.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/openapi.yaml", OpenAPIDocument())
	app.Get("/docs", SwaggerUI())

	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", Liveness())
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics))
	}
	app.Get("/session/route", SessionRoute(d.Tokens, d.Accounts))

	authed := middleware.Authenticate(d.Tokens)
	account := middleware.LoadAccount(d.Accounts)

	app.Get("/account", authed, account, GetAccount())

	orders := app.Group("/orders", authed, account)
	orders.Post("/", SubmitOrder(d.Orders))
	orders.Get("/", ListOrders(d.Orders))
	orders.Get("/:orderId", GetOrder(d.Orders))
	orders.Get("/:orderId/files", OrderFiles(d.Orders))
	orders.Delete("/:orderId", DeleteOrder(d.Orders))

	admin := app.Group("/admin", authed, account, middleware.RequireRole(model.RoleAdmin))
	admin.Get("/orders", ListOrders(d.Orders))
	admin.Post("/orders/advance", AdvanceOrders(d.Advancer))
	admin.Get("/orders/:accountId/:orderId", GetOrder(d.Orders))
	admin.Patch("/orders/:accountId/:orderId", UpdateOrder(d.Orders))
	admin.Delete("/orders/:accountId/:orderId", DeleteOrder(d.Orders))
	admin.Get("/orders/:accountId/:orderId/files", OrderFiles(d.Orders))
	admin.Get("/accounts", ListAccounts(d.Accounts))
	admin.Post("/accounts", ProvisionAccount(d.Accounts))
	admin.Get("/accounts/:accountId", AdminGetAccount(d.Accounts))
}
