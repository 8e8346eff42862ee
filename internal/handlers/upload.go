package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-app-server/internal/models"
	"clinic-app-server/internal/upload"
	"clinic-app-server/internal/utils"
)

// UploadHandler handles profile image uploads for one principal variant.
type UploadHandler struct {
	pipeline *upload.Pipeline
	role     models.Role
	logger   *zap.Logger
}

// NewUploadHandler creates an UploadHandler for role.
func NewUploadHandler(pipeline *upload.Pipeline, role models.Role, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{pipeline: pipeline, role: role, logger: logger}
}

// UploadImage stores one image. The optional userId (adminId for admins) or
// email query parameter names the principal whose photo is replaced.
func (h *UploadHandler) UploadImage(c *gin.Context) {
	idParam := "userId"
	if h.role == models.RoleAdmin {
		idParam = "adminId"
	}
	target := upload.PhotoTarget{ID: c.Query(idParam), Email: c.Query("email")}

	if !isMultipart(c) {
		utils.BadRequest(c, "No image file uploaded. Use field name: image, file, or photo")
		return
	}
	form, err := multipartForm(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	result, err := h.pipeline.PrincipalPhoto(c.Request.Context(), h.role, form, target)
	if err != nil {
		logFailure(h.logger, c, "image upload failed", err)
		utils.RespondError(c, err)
		return
	}

	data := gin.H{
		"url":       result.Storage.URL,
		"storageId": result.Storage.StorageID,
		"bytes":     result.Storage.Bytes,
		"format":    result.Storage.Format,
		"width":     result.Storage.Width,
		"height":    result.Storage.Height,
	}
	if result.Principal != nil {
		data[principalKey(h.role)] = result.Principal.Sanitize()
	}
	message := "Image uploaded successfully"
	if h.role == models.RoleAdmin {
		message = "Admin image uploaded successfully"
	}
	utils.Created(c, message, data)
}
