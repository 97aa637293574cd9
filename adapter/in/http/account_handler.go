package http

import (
	"strconv"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// AccountHandler handles mail account HTTP requests.
type AccountHandler struct {
	accountRepo out.AccountRepository
	runRepo     out.SyncRunRepository
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountRepo out.AccountRepository, runRepo out.SyncRunRepository) *AccountHandler {
	return &AccountHandler{
		accountRepo: accountRepo,
		runRepo:     runRepo,
	}
}

// RegisterRoutes registers account routes.
func (h *AccountHandler) RegisterRoutes(app fiber.Router) {
	accounts := app.Group("/accounts")
	accounts.Get("/", h.ListAccounts)
	accounts.Get("/:id", h.GetAccount)
	accounts.Get("/:id/runs", h.ListRuns)
	app.Get("/runs/:id", h.GetRun)
}

// ListAccounts returns all mail accounts for the current user.
func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	accounts, err := h.accountRepo.GetByUserID(c.Context(), userID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount returns a single account by ID.
func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	account, err := h.loadOwnedAccount(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(account)
}

// ListRuns returns the recent sync runs for an account.
func (h *AccountHandler) ListRuns(c *fiber.Ctx) error {
	account, err := h.loadOwnedAccount(c)
	if err != nil {
		return errorJSON(c, err)
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	runs, err := h.runRepo.GetRecentByAccount(c.Context(), account.ID, limit)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns a single sync run. Clients poll this with the run ID they got
// back from the sync trigger.
func (h *AccountHandler) GetRun(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	run, err := h.runRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
	}

	account, err := h.accountRepo.GetByID(c.Context(), run.AccountID)
	if err != nil || account.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
	}

	return c.JSON(run)
}

// loadOwnedAccount parses :id, loads the account, and enforces ownership.
func (h *AccountHandler) loadOwnedAccount(c *fiber.Ctx) (*domain.Account, error) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, apperr.Unauthorized("unauthorized")
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return nil, apperr.BadRequest("invalid account ID")
	}

	account, err := h.accountRepo.GetByID(c.Context(), id)
	if err != nil {
		return nil, apperr.NotFound("account")
	}
	if account.UserID != userID {
		return nil, apperr.Forbidden("access denied")
	}

	return account, nil
}
