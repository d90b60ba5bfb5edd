package economy

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/economy/internal/wallet"
)

// Handler exposes the balance cache over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds an economy HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	From   uint64          `json:"from"`
	To     uint64          `json:"to"`
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	EntityID uint64          `json:"entity_id"`
	Wallet   string          `json:"wallet"`
	Balance  decimal.Decimal `json:"balance"`
	Resident bool            `json:"resident"`
}

// ListWallets returns the registered wallet kinds.
func (h *Handler) ListWallets(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallets": h.service.Wallets()})
}

// EnsureWallet registers the wallet named in the path.
func (h *Handler) EnsureWallet(c *fiber.Ctx) error {
	id := wallet.Normalize(c.Params("wallet"))
	if err := h.service.EnsureWallet(id); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet": id})
}

// Balances returns every registered wallet's balance for the entity.
func (h *Handler) Balances(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	balances, err := h.service.Balances(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"entity_id": id,
		"balances":  balances,
		"resident":  h.service.IsResident(id),
	})
}

// Balance returns one wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	w := c.Params("wallet")
	v, err := h.service.Balance(c.UserContext(), id, w)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{EntityID: id, Wallet: w, Balance: v, Resident: h.service.IsResident(id)})
}

// Set replaces a wallet balance.
func (h *Handler) Set(c *fiber.Ctx) error {
	return h.mutate(c, h.service.SetBalance)
}

// Add credits a wallet.
func (h *Handler) Add(c *fiber.Ctx) error {
	return h.mutate(c, h.service.AddBalance)
}

// Subtract debits a wallet.
func (h *Handler) Subtract(c *fiber.Ctx) error {
	return h.mutate(c, h.service.SubtractBalance)
}

type mutateFunc func(ctx context.Context, id uint64, walletID string, amount decimal.Decimal) (decimal.Decimal, error)

func (h *Handler) mutate(c *fiber.Ctx, fn mutateFunc) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w := c.Params("wallet")
	v, err := fn(c.UserContext(), id, w, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{EntityID: id, Wallet: w, Balance: v, Resident: h.service.IsResident(id)})
}

// Sufficient reports whether the wallet covers the amount query parameter.
func (h *Handler) Sufficient(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount query parameter must be a decimal")
	}
	ok, err := h.service.HasSufficientFunds(c.UserContext(), id, c.Params("wallet"), amount)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"sufficient": ok})
}

// Transfer moves funds between two resident entities.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.service.Transfer(c.UserContext(), req.From, req.To, req.Wallet, req.Amount); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"from":   req.From,
		"to":     req.To,
		"wallet": req.Wallet,
		"amount": req.Amount,
	})
}

// Join marks the entity resident.
func (h *Handler) Join(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	if err := h.service.OnEntityBecameResident(c.UserContext(), id); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entity_id": id, "resident": true})
}

// Leave flushes and evicts the entity.
func (h *Handler) Leave(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	if err := h.service.OnEntityBecameNonResident(c.UserContext(), id); err != nil {
		return httpError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Save flushes one entity immediately.
func (h *Handler) Save(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	saved, err := h.service.Save(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entity_id": id, "saved": saved})
}

// Checkpoint runs the batch checkpoint flush.
func (h *Handler) Checkpoint(c *fiber.Ctx) error {
	saved := h.service.Checkpoint(c.UserContext())
	return c.Status(http.StatusOK).JSON(fiber.Map{"saved": saved})
}

func entityID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("entityId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "entity id must be an unsigned integer")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownWallet):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer), errors.Is(err, wallet.ErrEmptyID):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrNotResident):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPersistence):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
