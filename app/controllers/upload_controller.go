package controllers

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pixsuite/pixsuite/internal/pkg/database"
	"github.com/pixsuite/pixsuite/internal/pkg/mediacdn"
	"github.com/pixsuite/pixsuite/internal/pkg/usage"
	"github.com/pixsuite/pixsuite/internal/pkg/usercontext"
)

type uploadSessionRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// HandleCreateUploadSession reserves one usage unit and hands out a presigned
// upload URL. The quota consume happens first so that an exhausted caller
// never receives a URL; on exhaustion the response is 403 with the snapshot.
func HandleCreateUploadSession(c *fiber.Ctx) error {
	var req uploadSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.FileName == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "fileName is required")
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	svc := usage.NewServiceFromDB(database.GetDB())
	userCtx := usercontext.GetUserContext(c)

	var snap usage.Snapshot
	var err error
	if userCtx.IsLoggedIn {
		snap, err = svc.ConsumeAccount(userCtx.UserID)
	} else {
		var res *usage.Resolution
		res, err = svc.ResolveSession(c.Cookies(AnonCookieName), GetClientIP(c))
		if err == nil {
			if res.IsNew {
				setAnonCookie(c, res.Session.SessionID)
			}
			snap, err = svc.ConsumeSession(res.Session.ID)
		}
	}
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			return jsonQuotaExceeded(c, snap, "Usage limit reached")
		}
		log.Errorf("[Upload] failed to consume quota: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record usage")
	}

	cfg, err := mediacdn.LoadConfig()
	if err != nil || !cfg.IsEnabled() {
		// Quota already consumed; the client can retry via the transfer-safe
		// ledger, but without storage there is nothing to hand out.
		log.Errorf("[Upload] media CDN unavailable: %v", err)
		return jsonError(c, fiber.StatusServiceUnavailable, "storage_unavailable", "Upload storage is not available")
	}

	client, err := mediacdn.NewClient(cfg)
	if err != nil {
		log.Errorf("[Upload] failed to initialize media CDN client: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to prepare upload")
	}

	ticket, err := client.PresignUpload(c.Context(), strings.ToLower(filepath.Ext(req.FileName)), contentType)
	if err != nil {
		log.Errorf("[Upload] failed to presign upload: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to prepare upload")
	}

	return c.JSON(fiber.Map{
		"upload": ticket,
		"usage":  snap,
	})
}
