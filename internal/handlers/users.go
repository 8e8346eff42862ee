package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-app-server/internal/middleware"
	"clinic-app-server/internal/models"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/utils"
)

// UserHandler serves profile, listing and search reads over patients and admins.
type UserHandler struct {
	patients store.PrincipalStore
	admins   store.PrincipalStore
	reports  store.ReportStore
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(stores *store.Stores, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		patients: stores.Patients,
		admins:   stores.Admins,
		reports:  stores.Reports,
		logger:   logger,
	}
}

// GetUsers lists every patient.
func (h *UserHandler) GetUsers(c *gin.Context) {
	users, err := h.patients.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list patients failed", err)
		return
	}
	utils.Success(c, "Users fetched successfully", gin.H{"users": models.SanitizeAll(users)})
}

// GetAdmins lists every admin.
func (h *UserHandler) GetAdmins(c *gin.Context) {
	admins, err := h.admins.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list admins failed", err)
		return
	}
	utils.Success(c, "Admins fetched successfully", gin.H{"admins": models.SanitizeAll(admins)})
}

// GetProfileByEmail returns the patient named by the email query parameter.
func (h *UserHandler) GetProfileByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		utils.BadRequest(c, "email query param is required")
		return
	}
	h.respondProfile(c, func() (*models.Principal, error) {
		return h.patients.FindByEmail(c.Request.Context(), email)
	})
}

// GetProfileByID returns the patient with the id path parameter.
func (h *UserHandler) GetProfileByID(c *gin.Context) {
	id := c.Param("id")
	if !models.IsValidID(id) {
		utils.BadRequest(c, "Invalid user id format")
		return
	}
	h.respondProfile(c, func() (*models.Principal, error) {
		return h.patients.FindByID(c.Request.Context(), id)
	})
}

func (h *UserHandler) respondProfile(c *gin.Context, find func() (*models.Principal, error)) {
	user, err := find()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.NotFound(c, "User not found")
			return
		}
		h.fail(c, "profile lookup failed", err)
		return
	}
	utils.Success(c, "User fetched successfully", gin.H{"user": user.Sanitize()})
}

// GetMe returns the authenticated patient together with their reports.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}

	user, err := h.patients.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.NotFound(c, "User not found")
			return
		}
		h.fail(c, "me lookup failed", err)
		return
	}
	reports, err := h.reports.ListByPatient(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "me reports failed", err)
		return
	}
	utils.Success(c, "User fetched successfully", gin.H{"user": user.Sanitize(), "reports": reports})
}

// FindRequest is the optional body of POST /users/find.
type FindRequest struct {
	Q string `json:"q"`
}

// FindUsers matches one free-text value against name, email and phone.
// q comes from the JSON body (POST) or the query string and is required.
func (h *UserHandler) FindUsers(c *gin.Context) {
	q := c.Query("q")
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		var req FindRequest
		if err := c.ShouldBindJSON(&req); err == nil && strings.TrimSpace(req.Q) != "" {
			q = req.Q
		}
	}
	if strings.TrimSpace(q) == "" {
		utils.BadRequest(c, "q is required")
		return
	}
	h.search(c, store.NewSearchFilter(q, "", "", ""))
}

// SearchUsers filters patients by q, name, email and phone. No parameters
// returns the first page of all patients.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	h.search(c, store.NewSearchFilter(c.Query("q"), c.Query("name"), c.Query("email"), c.Query("phone")))
}

// PublicSearch is SearchUsers without authentication. A quoted q is unquoted.
func (h *UserHandler) PublicSearch(c *gin.Context) {
	h.search(c, store.NewSearchFilter(store.TrimQuotes(c.Query("q")), c.Query("name"), c.Query("email"), c.Query("phone")))
}

func (h *UserHandler) search(c *gin.Context, filter store.SearchFilter) {
	users, err := h.patients.Search(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "patient search failed", err)
		return
	}
	utils.Success(c, "Users fetched successfully", gin.H{
		"count": len(users),
		"users": models.SanitizeAll(users),
	})
}

func (h *UserHandler) fail(c *gin.Context, msg string, err error) {
	appErr := utils.WrapError(utils.KindInternalError, "Server error", err)
	logFailure(h.logger, c, msg, appErr)
	utils.RespondError(c, appErr)
}
