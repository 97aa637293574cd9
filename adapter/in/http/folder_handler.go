package http

import (
	"strconv"

	"mailsync_server/core/port/in"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// FolderHandler handles folder listing and the sync toggle.
type FolderHandler struct {
	folderService in.FolderUseCase
	folderRepo    out.FolderRepository
	accountRepo   out.AccountRepository
}

// NewFolderHandler creates a new FolderHandler.
func NewFolderHandler(folderService in.FolderUseCase, folderRepo out.FolderRepository, accountRepo out.AccountRepository) *FolderHandler {
	return &FolderHandler{
		folderService: folderService,
		folderRepo:    folderRepo,
		accountRepo:   accountRepo,
	}
}

// RegisterRoutes registers folder routes.
func (h *FolderHandler) RegisterRoutes(app fiber.Router) {
	app.Get("/accounts/:id/folders", h.ListFolders)
	app.Patch("/folders/:id", h.UpdateFolder)
}

// ListFolders returns the discovered folders with their classification and
// sync flags. needs_review folders surface here for the user to confirm.
func (h *FolderHandler) ListFolders(c *fiber.Ctx) error {
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

	folders, err := h.folderService.ListFolders(c.Context(), accountID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"folders": folders,
		"count":   len(folders),
	})
}

// UpdateFolder toggles sync_enabled on a folder.
func (h *FolderHandler) UpdateFolder(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	folderID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return errorJSON(c, apperr.BadRequest("invalid folder ID"))
	}

	var req struct {
		SyncEnabled *bool `json:"sync_enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, apperr.BadRequest("invalid request body"))
	}
	if req.SyncEnabled == nil {
		return errorJSON(c, apperr.BadRequest("sync_enabled is required"))
	}

	folder, err := h.folderRepo.GetByID(c.Context(), folderID)
	if err != nil {
		return errorJSON(c, apperr.NotFound("folder"))
	}

	account, err := h.accountRepo.GetByID(c.Context(), folder.AccountID)
	if err != nil || account.UserID != userID {
		return errorJSON(c, apperr.Forbidden("access denied"))
	}

	if err := h.folderService.SetFolderEnabled(c.Context(), folderID, *req.SyncEnabled); err != nil {
		return errorJSON(c, err)
	}

	folder, err = h.folderRepo.GetByID(c.Context(), folderID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(folder)
}
