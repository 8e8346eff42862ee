package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-app-server/internal/middleware"
	"clinic-app-server/internal/models"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/upload"
	"clinic-app-server/internal/utils"
)

// ReportHandler handles lab report uploads and listings.
type ReportHandler struct {
	pipeline *upload.Pipeline
	patients store.PrincipalStore
	reports  store.ReportStore
	logger   *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(pipeline *upload.Pipeline, stores *store.Stores, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		pipeline: pipeline,
		patients: stores.Patients,
		reports:  stores.Reports,
		logger:   logger,
	}
}

// CreateReportRequest represents the JSON body of a typed-in report.
type CreateReportRequest struct {
	Type  string          `json:"type"`
	Title string          `json:"title"`
	Notes string          `json:"notes"`
	Data  json.RawMessage `json:"data"`
}

// CreateReport accepts either a multipart file or a JSON body.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	if isMultipart(c) {
		h.CreateFileReport(c)
		return
	}
	h.CreateJSONReport(c)
}

// CreateJSONReport stores a report whose data is sent inline.
func (h *ReportHandler) CreateJSONReport(c *gin.Context) {
	var req CreateReportRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}

	report, err := h.pipeline.ReportFromJSON(c.Request.Context(), h.input(c, req.Type, req.Title, req.Notes), req.Data)
	if err != nil {
		h.fail(c, "json report failed", err)
		return
	}
	utils.Created(c, "Report saved (textual JSON)", gin.H{"report": report})
}

// CreateFileReport stores an uploaded file as a report.
func (h *ReportHandler) CreateFileReport(c *gin.Context) {
	if !isMultipart(c) {
		utils.BadRequest(c, "No report file uploaded. Use field: report, file, image, or photo")
		return
	}
	form, err := multipartForm(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	in := h.input(c, c.PostForm("type"), c.PostForm("title"), c.PostForm("notes"))
	report, err := h.pipeline.ReportFromFile(c.Request.Context(), form, in)
	if err != nil {
		h.fail(c, "file report failed", err)
		return
	}
	utils.Created(c, "Report uploaded", gin.H{"report": report})
}

func (h *ReportHandler) input(c *gin.Context, category, title, notes string) upload.ReportInput {
	adminID, _ := middleware.GetUserIDFromContext(c)
	return upload.ReportInput{
		PatientID: c.Param("userId"),
		AdminID:   adminID,
		Category:  category,
		Title:     title,
		Notes:     notes,
	}
}

// GetReportsForPatient lists the reports of the userId path parameter, newest first.
func (h *ReportHandler) GetReportsForPatient(c *gin.Context) {
	userID := c.Param("userId")
	if !models.IsValidID(userID) {
		utils.BadRequest(c, "Invalid userId format")
		return
	}
	if _, err := h.patients.FindByID(c.Request.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.NotFound(c, "User not found")
			return
		}
		h.fail(c, "report owner lookup failed", utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}
	h.respondList(c, func() ([]*models.Report, error) {
		return h.reports.ListByPatient(c.Request.Context(), userID)
	})
}

// GetMyReports lists the authenticated patient's reports.
func (h *ReportHandler) GetMyReports(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User ID not found in token")
		return
	}
	h.respondList(c, func() ([]*models.Report, error) {
		return h.reports.ListByPatient(c.Request.Context(), userID)
	})
}

// GetAllReports lists every report.
func (h *ReportHandler) GetAllReports(c *gin.Context) {
	h.respondList(c, func() ([]*models.Report, error) {
		return h.reports.ListAll(c.Request.Context())
	})
}

func (h *ReportHandler) respondList(c *gin.Context, list func() ([]*models.Report, error)) {
	reports, err := list()
	if err != nil {
		h.fail(c, "list reports failed", utils.WrapError(utils.KindInternalError, "Server error", err))
		return
	}
	utils.Success(c, "Reports fetched successfully", gin.H{"reports": reports})
}

func (h *ReportHandler) fail(c *gin.Context, msg string, err error) {
	logFailure(h.logger, c, msg, err)
	utils.RespondError(c, err)
}
