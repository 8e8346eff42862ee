package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidReport = errors.New("invalid report")

// StorageMetadata describes an object held by the remote object storage.
type StorageMetadata struct {
	URL       string `json:"url" bson:"url"`
	StorageID string `json:"storageId" bson:"storageId"`
	Format    string `json:"format" bson:"format"`
	Bytes     int64  `json:"bytes" bson:"bytes"`
	Width     *int   `json:"width,omitempty" bson:"width,omitempty"`
	Height    *int   `json:"height,omitempty" bson:"height,omitempty"`
}

// ReportPayload is either InlinePayload or StoredPayload.
type ReportPayload interface {
	isReportPayload()
}

// InlinePayload carries structured data typed in by an admin.
type InlinePayload struct {
	Data json.RawMessage
}

// StoredPayload points at an uploaded file.
type StoredPayload struct {
	Metadata StorageMetadata
}

func (InlinePayload) isReportPayload() {}
func (StoredPayload) isReportPayload() {}

// Report is a patient-linked lab report. It is immutable once created.
type Report struct {
	ID                string
	PatientID         string
	Category          string
	Title             string
	Notes             string
	Payload           ReportPayload
	UploadedByAdminID string
	CreatedAt         time.Time
}

// Storage returns the file metadata of a file-backed report, or nil.
func (r *Report) Storage() *StorageMetadata {
	if p, ok := r.Payload.(StoredPayload); ok {
		m := p.Metadata
		return &m
	}
	return nil
}

// InlineData returns the structured value of an inline report, or nil.
func (r *Report) InlineData() json.RawMessage {
	if p, ok := r.Payload.(InlinePayload); ok {
		return p.Data
	}
	return nil
}

// Validate enforces that a report has a patient, a category and exactly one payload.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return errors.Join(ErrInvalidReport, errors.New("patient id is required"))
	}
	if strings.TrimSpace(r.Category) == "" {
		return errors.Join(ErrInvalidReport, errors.New("category is required"))
	}
	switch p := r.Payload.(type) {
	case InlinePayload:
		if len(p.Data) == 0 || !json.Valid(p.Data) || strings.TrimSpace(string(p.Data)) == "null" {
			return errors.Join(ErrInvalidReport, errors.New("inline data must be a JSON value"))
		}
	case StoredPayload:
		if p.Metadata.URL == "" {
			return errors.Join(ErrInvalidReport, errors.New("stored report needs a url"))
		}
	default:
		return errors.Join(ErrInvalidReport, errors.New("report needs inline data or a stored file"))
	}
	return nil
}

type reportJSON struct {
	ID                string           `json:"id"`
	PatientID         string           `json:"patientId"`
	Category          string           `json:"category"`
	Title             string           `json:"title,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	Storage           *StorageMetadata `json:"storage"`
	InlineData        json.RawMessage  `json:"inlineData"`
	UploadedByAdminID string           `json:"uploadedByAdminId,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// MarshalJSON renders the payload as the two mutually exclusive fields
// "storage" and "inlineData"; the unused one is null.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		ID:                r.ID,
		PatientID:         r.PatientID,
		Category:          r.Category,
		Title:             r.Title,
		Notes:             r.Notes,
		Storage:           r.Storage(),
		InlineData:        r.InlineData(),
		UploadedByAdminID: r.UploadedByAdminID,
		CreatedAt:         r.CreatedAt,
	})
}
