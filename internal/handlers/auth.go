package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"clinic-app-server/internal/middleware"
	"clinic-app-server/internal/models"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/upload"
	"clinic-app-server/internal/utils"
)

// AuthHandler handles signup, login and logout for one principal variant.
type AuthHandler struct {
	accounts store.PrincipalStore
	tokens   *utils.TokenService
	denylist utils.Denylist
	pipeline *upload.Pipeline
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler for the role of accounts. denylist may be nil.
func NewAuthHandler(accounts store.PrincipalStore, tokens *utils.TokenService, denylist utils.Denylist, pipeline *upload.Pipeline, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		denylist: denylist,
		pipeline: pipeline,
		logger:   logger,
	}
}

// responseKey names the principal in response bodies: "user" or "admin".
func (h *AuthHandler) responseKey() string {
	return principalKey(h.accounts.Role())
}

func principalKey(role models.Role) string {
	if role == models.RoleAdmin {
		return "admin"
	}
	return "user"
}

// SignupRequest represents the text fields of a multipart signup.
type SignupRequest struct {
	Name     string `form:"name" binding:"required"`
	Email    string `form:"email" binding:"required,email"`
	Phone    string `form:"phone" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// Signup registers a principal. The request must be multipart and carry
// exactly one profile image.
func (h *AuthHandler) Signup(c *gin.Context) {
	if !isMultipart(c) {
		utils.BadRequest(c, "Image is required. Send multipart/form-data with a single image field: image|file|photo")
		return
	}
	form, err := multipartForm(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	var req SignupRequest
	if err := c.ShouldBindWith(&req, binding.FormMultipart); err != nil {
		utils.BadRequest(c, "name, email, phone, and password are required: "+utils.FormatValidationError(err))
		return
	}

	email := models.NormalizeEmail(req.Email)
	if _, err := h.accounts.FindByEmail(c.Request.Context(), email); err == nil {
		utils.RespondError(c, utils.NewError(utils.KindConflict, "Email already registered"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.fail(c, "lookup failed", utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}

	photo, err := h.pipeline.SignupPhoto(c.Request.Context(), h.accounts.Role(), form)
	if err != nil {
		h.fail(c, "signup photo rejected", err)
		return
	}

	principal := &models.Principal{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Phone:    strings.TrimSpace(req.Phone),
		PhotoURL: photo.URL,
	}
	if err := principal.SetPassword(req.Password); err != nil {
		h.fail(c, "password hash failed", utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}

	if err := h.accounts.Create(c.Request.Context(), principal); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			utils.RespondError(c, utils.WrapError(utils.KindConflict, "Email already registered", err))
			return
		}
		h.logger.Error("signup persist failed after upload",
			zap.String("role", string(h.accounts.Role())),
			zap.String("storage_id", photo.StorageID),
			zap.Error(err),
		)
		utils.RespondError(c, utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}

	utils.Created(c, "Signup successful", gin.H{h.responseKey(): principal.Sanitize()})
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and issues a bearer token for the handler's role.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	principal, err := h.accounts.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Unauthorized(c, "Invalid credentials")
			return
		}
		h.fail(c, "login lookup failed", utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}
	if !principal.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid credentials")
		return
	}

	token, err := h.tokens.Issue(principal.ID, h.accounts.Role())
	if err != nil {
		if errors.Is(err, utils.ErrMissingSecret) {
			h.fail(c, "token secret missing", utils.WrapError(utils.KindInternalError, "Server misconfigured: token secret missing", err))
			return
		}
		h.fail(c, "token issue failed", utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}

	utils.Success(c, "Login successful", gin.H{
		"token":         token,
		h.responseKey(): principal.Sanitize(),
	})
}

// Logout revokes the presented token when a denylist is configured.
// Without one, tokens stay valid until they expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		utils.Unauthorized(c, "Not authenticated")
		return
	}
	if h.denylist == nil {
		utils.Success(c, "Logged out. Tokens are not revoked server side and remain valid until they expire", nil)
		return
	}

	if err := h.denylist.Revoke(c.Request.Context(), identity.TokenID, time.Until(identity.ExpiresAt)); err != nil {
		h.fail(c, "token revoke failed", utils.WrapError(utils.KindInternalError, "Could not log out", err))
		return
	}
	utils.Success(c, "Logged out", nil)
}

// fail logs err and writes it with the error taxonomy.
func (h *AuthHandler) fail(c *gin.Context, msg string, err error) {
	logFailure(h.logger, c, msg, err)
	utils.RespondError(c, err)
}
