package http

import (
	"strconv"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// SyncHandler handles sync trigger HTTP requests.
type SyncHandler struct {
	syncService in.SyncUseCase
	accountRepo out.AccountRepository
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService in.SyncUseCase, accountRepo out.AccountRepository) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		accountRepo: accountRepo,
	}
}

// RegisterRoutes registers sync routes.
func (h *SyncHandler) RegisterRoutes(app fiber.Router) {
	app.Post("/accounts/:id/sync", h.TriggerSync)
}

// TriggerSync starts a manual sync and returns the run ID immediately. The
// sync itself runs on the worker; clients poll GET /runs/:id for progress.
func (h *SyncHandler) TriggerSync(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	accountID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return errorJSON(c, apperr.BadRequest("invalid account ID"))
	}

	account, err := h.accountRepo.GetByID(c.Context(), accountID)
	if err != nil {
		return errorJSON(c, apperr.NotFound("account"))
	}
	if account.UserID != userID {
		return errorJSON(c, apperr.Forbidden("access denied"))
	}

	runID, err := h.syncService.TriggerSync(c.Context(), accountID, domain.TriggerManual)
	if err != nil {
		logger.Warn("[SyncHandler.TriggerSync] Trigger failed for account %d: %v", accountID, err)
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id": runID,
		"status": "queued",
	})
}
