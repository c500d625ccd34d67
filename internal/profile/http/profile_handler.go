// Package http provides HTTP handlers for profile submission, existence
// checks and public key distribution.
package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/pii-vault/internal/httputil"
	"github.com/allisson/pii-vault/internal/profile/http/dto"
	profileUseCase "github.com/allisson/pii-vault/internal/profile/usecase"
	customValidation "github.com/allisson/pii-vault/internal/validation"
)

// maxEnvelopeBytes bounds the request body read for envelope submissions.
// A 3072-bit wrapped key plus a small payload stays well under 64 KiB.
const maxEnvelopeBytes = 64 << 10

// ProfileHandler handles HTTP requests for encrypted profile operations.
type ProfileHandler struct {
	profileUseCase profileUseCase.ProfileUseCase
	logger         *slog.Logger
}

// NewProfileHandler creates a new profile handler with required dependencies.
func NewProfileHandler(
	useCase profileUseCase.ProfileUseCase,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		profileUseCase: useCase,
		logger:         logger,
	}
}

// PublicKeyHandler returns the current public key distribution string.
// GET /v1/keys/public
// Returns 200 OK with {"publicKey": "v<N>:<base64 PEM>"}.
func (h *ProfileHandler) PublicKeyHandler(c *gin.Context) {
	publicKey, err := h.profileUseCase.PublicKeyDistribution(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.PublicKeyResponse{PublicKey: publicKey})
}

// CreateProfileHandler accepts an encrypted envelope submission.
// POST /v1/profiles
// Returns 201 Created with the new profile id. All cryptographic failures
// surface as a generic 422.
func (h *ProfileHandler) CreateProfileHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	// Structural validation before any key material is touched. The same
	// bytes are handed to the use case so the envelope parser stays the
	// single source of wire-format truth.
	var req dto.CreateProfileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	id, err := h.profileUseCase.SaveFromEnvelope(c.Request.Context(), body)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateProfileResponse{ID: id.String()})
}

// ExistenceHandler checks whether a profile with the national ID exists.
// POST /v1/profiles/existence
// Returns 200 OK with {"exists": bool}.
func (h *ProfileHandler) ExistenceHandler(c *gin.Context) {
	var req dto.ExistenceRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	exists, err := h.profileUseCase.ExistsByNationalID(c.Request.Context(), req.NationalID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ExistenceResponse{Exists: exists})
}
