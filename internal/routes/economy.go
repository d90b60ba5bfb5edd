package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/economy/internal/economy"
)

// RegisterEconomyRoutes wires wallet, balance, transfer and presence
// endpoints. Balance mutations and transfers run behind guard, typically the
// idempotency middleware.
func RegisterEconomyRoutes(r fiber.Router, h *economy.Handler, guard ...fiber.Handler) {
	r.Get("/wallets", h.ListWallets)
	r.Put("/wallets/:wallet", h.EnsureWallet)

	entities := r.Group("/entities/:entityId")
	entities.Get("/balances", h.Balances)
	entities.Get("/balances/:wallet", h.Balance)
	entities.Get("/balances/:wallet/sufficient", h.Sufficient)
	entities.Put("/presence", h.Join)
	entities.Delete("/presence", h.Leave)
	entities.Post("/save", h.Save)
	r.Post("/checkpoint", h.Checkpoint)

	entities.Put("/balances/:wallet", withGuard(guard, h.Set)...)
	entities.Post("/balances/:wallet/add", withGuard(guard, h.Add)...)
	entities.Post("/balances/:wallet/subtract", withGuard(guard, h.Subtract)...)
	r.Post("/transfers", withGuard(guard, h.Transfer)...)
}

func withGuard(guard []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guard)+1)
	out = append(out, guard...)
	return append(out, h)
}
