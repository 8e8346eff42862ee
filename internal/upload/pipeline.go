// Package upload validates uploaded files, sends them to object storage and
// records the result on a report or a principal's photo.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"path"
	"strings"

	"go.uber.org/zap"

	"clinic-app-server/internal/models"
	"clinic-app-server/internal/storage"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/utils"
)

// Pipeline runs uploads end to end: resolve target, validate, upload, persist.
// Storage is written before the database, so a failed persist leaves an
// orphaned object that is logged with its storage id.
type Pipeline struct {
	storage    storage.Client
	stores     *store.Stores
	rootFolder string
	logger     *zap.Logger
}

func New(client storage.Client, stores *store.Stores, rootFolder string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		storage:    client,
		stores:     stores,
		rootFolder: strings.Trim(rootFolder, "/"),
		logger:     logger,
	}
}

// PhotoFolder is where profile photos of role are stored.
func (p *Pipeline) PhotoFolder(role models.Role) string {
	if role == models.RoleAdmin {
		return path.Join(p.rootFolder, "admin_img")
	}
	return p.rootFolder
}

// ReportFolder is where files for one patient's reports are stored.
func (p *Pipeline) ReportFolder(patientID string) string {
	return path.Join(p.rootFolder, "reports", patientID)
}

// Folders lists the fixed folders that should exist before serving.
func (p *Pipeline) Folders() []string {
	return []string{p.PhotoFolder(models.RolePatient), p.PhotoFolder(models.RoleAdmin)}
}

// ReportInput is the metadata sent alongside a report.
type ReportInput struct {
	PatientID string
	AdminID   string
	Category  string
	Title     string
	Notes     string
}

// ReportFromFile stores one uploaded file as a report of in.PatientID.
// A blank category becomes "file".
func (p *Pipeline) ReportFromFile(ctx context.Context, form *multipart.Form, in ReportInput) (*models.Report, error) {
	if _, err := p.resolve(ctx, models.RolePatient, in.PatientID, ""); err != nil {
		return nil, err
	}

	header := pickFile(form, ReportPolicy)
	if header == nil {
		return nil, utils.NewError(utils.KindInvalidInput, "No file uploaded")
	}
	f, err := readFile(header, ReportPolicy)
	if err != nil {
		return nil, err
	}

	meta, err := p.upload(ctx, f, p.ReportFolder(in.PatientID), ReportPolicy.ResourceType)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "file"
	}
	report := &models.Report{
		PatientID:         in.PatientID,
		Category:          category,
		Title:             strings.TrimSpace(in.Title),
		Notes:             strings.TrimSpace(in.Notes),
		Payload:           models.StoredPayload{Metadata: *meta},
		UploadedByAdminID: in.AdminID,
	}
	if err := p.stores.Reports.Create(ctx, report); err != nil {
		p.logger.Error("report persist failed after upload",
			zap.String("patient_id", in.PatientID),
			zap.String("storage_id", meta.StorageID),
			zap.Error(err),
		)
		return nil, utils.WrapError(utils.KindInternalError, "Failed to save report", err)
	}
	return report, nil
}

// ReportFromJSON stores a report whose payload is typed in rather than uploaded.
// data may be any JSON value. A JSON string holding JSON text is parsed; other
// strings are kept verbatim.
func (p *Pipeline) ReportFromJSON(ctx context.Context, in ReportInput, data json.RawMessage) (*models.Report, error) {
	if _, err := p.resolve(ctx, models.RolePatient, in.PatientID, ""); err != nil {
		return nil, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, utils.NewError(utils.KindInvalidInput, "Report type is required")
	}

	report := &models.Report{
		PatientID:         in.PatientID,
		Category:          category,
		Title:             strings.TrimSpace(in.Title),
		Notes:             strings.TrimSpace(in.Notes),
		Payload:           models.InlinePayload{Data: InlineValue(data)},
		UploadedByAdminID: in.AdminID,
	}
	if err := p.stores.Reports.Create(ctx, report); err != nil {
		return nil, utils.WrapError(utils.KindInternalError, "Failed to save report", err)
	}
	return report, nil
}

// InlineValue normalizes the data field of a JSON report. Missing data becomes
// an empty object. A string holding JSON is unwrapped unless it holds null.
func InlineValue(data json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`)
	}

	var text string
	if err := json.Unmarshal([]byte(trimmed), &text); err == nil {
		inner := strings.TrimSpace(text)
		if inner != "" && inner != "null" && json.Valid([]byte(inner)) {
			return json.RawMessage(inner)
		}
		return json.RawMessage(trimmed)
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	raw, _ := json.Marshal(trimmed)
	return raw
}

// SignupPhoto validates and uploads the single photo of a signup form.
// Exactly one file is accepted and it must use an image field name.
func (p *Pipeline) SignupPhoto(ctx context.Context, role models.Role, form *multipart.Form) (*models.StorageMetadata, error) {
	switch n := fileCount(form); {
	case n == 0:
		return nil, utils.NewError(utils.KindInvalidInput, "Profile image is required")
	case n > 1:
		return nil, utils.NewError(utils.KindInvalidInput, "Only one image allowed")
	}

	var header *multipart.FileHeader
	for _, field := range ImagePolicy.Fields {
		if headers := form.File[field]; len(headers) > 0 {
			header = headers[0]
			break
		}
	}
	if header == nil {
		return nil, utils.NewError(utils.KindInvalidInput, "Profile image must be sent as image, file or photo")
	}

	f, err := readFile(header, ImagePolicy)
	if err != nil {
		return nil, err
	}
	return p.upload(ctx, f, p.PhotoFolder(role), ImagePolicy.ResourceType)
}

// PhotoTarget optionally names the principal whose photo an upload replaces.
type PhotoTarget struct {
	ID    string
	Email string
}

func (t PhotoTarget) empty() bool {
	return strings.TrimSpace(t.ID) == "" && strings.TrimSpace(t.Email) == ""
}

// PhotoResult is the outcome of a photo upload. Principal is nil when no
// target was named.
type PhotoResult struct {
	Storage   *models.StorageMetadata
	Principal *models.Principal
}

// PrincipalPhoto uploads an image to the photo folder of role and, when target
// names a principal, stores the new URL on it. The target is checked before
// anything is uploaded.
func (p *Pipeline) PrincipalPhoto(ctx context.Context, role models.Role, form *multipart.Form, target PhotoTarget) (*PhotoResult, error) {
	var principal *models.Principal
	if !target.empty() {
		var err error
		principal, err = p.resolve(ctx, role, target.ID, target.Email)
		if err != nil {
			return nil, err
		}
	}

	header := pickFile(form, ImagePolicy)
	if header == nil {
		return nil, utils.NewError(utils.KindInvalidInput, "No image uploaded")
	}
	f, err := readFile(header, ImagePolicy)
	if err != nil {
		return nil, err
	}

	meta, err := p.upload(ctx, f, p.PhotoFolder(role), ImagePolicy.ResourceType)
	if err != nil {
		return nil, err
	}
	result := &PhotoResult{Storage: meta}
	if principal == nil {
		return result, nil
	}

	updated, err := p.stores.Accounts(role).UpdatePhoto(ctx, principal.ID, meta.URL)
	if err != nil {
		p.logger.Error("photo persist failed after upload",
			zap.String("role", string(role)),
			zap.String("principal_id", principal.ID),
			zap.String("storage_id", meta.StorageID),
			zap.Error(err),
		)
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.WrapError(utils.KindNotFound, notFoundMessage(role), err)
		}
		return nil, utils.WrapError(utils.KindInternalError, "Failed to update photo", err)
	}
	result.Principal = updated
	return result, nil
}

// resolve finds the principal of role by id, or by email when id is blank.
func (p *Pipeline) resolve(ctx context.Context, role models.Role, id, email string) (*models.Principal, error) {
	accounts := p.stores.Accounts(role)

	var (
		principal *models.Principal
		err       error
	)
	if id = strings.TrimSpace(id); id != "" {
		if !models.IsValidID(id) {
			return nil, utils.NewError(utils.KindInvalidInput, "Invalid "+string(role)+" id")
		}
		principal, err = accounts.FindByID(ctx, id)
	} else {
		if strings.TrimSpace(email) == "" {
			return nil, utils.NewError(utils.KindInvalidInput, string(role)+" id or email is required")
		}
		principal, err = accounts.FindByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.WrapError(utils.KindNotFound, notFoundMessage(role), err)
		}
		return nil, utils.WrapError(utils.KindInternalError, "Failed to look up "+string(role), err)
	}
	return principal, nil
}

func (p *Pipeline) upload(ctx context.Context, f *file, folder string, resourceType storage.ResourceType) (*models.StorageMetadata, error) {
	meta, err := p.storage.Upload(ctx, storage.Object{
		Data:         f.Data,
		Folder:       folder,
		ResourceType: resourceType,
		ContentType:  f.ContentType,
		Filename:     f.Filename,
	})
	if err != nil {
		p.logger.Warn("storage upload failed", zap.String("folder", folder), zap.Error(err))
		return nil, utils.WrapError(utils.KindUploadFailed, "Upload to storage failed", err)
	}
	return meta, nil
}

func notFoundMessage(role models.Role) string {
	if role == models.RoleAdmin {
		return "Admin not found"
	}
	return "Patient not found"
}
