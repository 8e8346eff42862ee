package upload

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"clinic-app-server/internal/storage"
	"clinic-app-server/internal/utils"
)

const (
	MaxImageBytes  = 5 << 20
	MaxReportBytes = 10 << 20
)

// Policy limits what a single uploaded file may be.
type Policy struct {
	Name         string
	Fields       []string
	MaxBytes     int64
	ResourceType storage.ResourceType
	allowed      func(contentType string) bool
}

// Allows reports whether contentType passes the allow-list.
func (p Policy) Allows(contentType string) bool {
	return p.allowed(contentType)
}

var (
	// ImagePolicy covers profile photos.
	ImagePolicy = Policy{
		Name:         "image",
		Fields:       []string{"image", "file", "photo"},
		MaxBytes:     MaxImageBytes,
		ResourceType: storage.ResourceImage,
		allowed:      isImage,
	}

	// ReportPolicy covers lab report files.
	ReportPolicy = Policy{
		Name:         "report",
		Fields:       []string{"report", "file", "image", "photo"},
		MaxBytes:     MaxReportBytes,
		ResourceType: storage.ResourceAuto,
		allowed: func(ct string) bool {
			switch ct {
			case "application/pdf", "application/json", "text/plain":
				return true
			}
			return isImage(ct)
		},
	}
)

func isImage(ct string) bool {
	return strings.HasPrefix(ct, "image/")
}

// file is a validated upload held in memory.
type file struct {
	Data        []byte
	ContentType string
	Filename    string
}

// fileCount returns the number of files in form across all fields.
func fileCount(form *multipart.Form) int {
	if form == nil {
		return 0
	}
	n := 0
	for _, headers := range form.File {
		n += len(headers)
	}
	return n
}

// pickFile returns the first file under one of the policy's field names, in
// priority order, or else the first file of the form.
func pickFile(form *multipart.Form, p Policy) *multipart.FileHeader {
	if fileCount(form) == 0 {
		return nil
	}
	for _, field := range p.Fields {
		if headers := form.File[field]; len(headers) > 0 {
			return headers[0]
		}
	}

	fields := make([]string, 0, len(form.File))
	for field, headers := range form.File {
		if len(headers) > 0 {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return form.File[fields[0]][0]
}

// readFile loads header into memory and checks it against the policy.
// Nothing is sent anywhere before this succeeds.
func readFile(header *multipart.FileHeader, p Policy) (*file, error) {
	if header.Size > p.MaxBytes {
		return nil, tooLarge(p)
	}

	f, err := header.Open()
	if err != nil {
		return nil, utils.WrapError(utils.KindInvalidInput, "Could not read uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, p.MaxBytes+1))
	if err != nil {
		return nil, utils.WrapError(utils.KindInvalidInput, "Could not read uploaded file", err)
	}
	if int64(len(data)) > p.MaxBytes {
		return nil, tooLarge(p)
	}
	if len(data) == 0 {
		return nil, utils.NewError(utils.KindInvalidInput, "Uploaded file is empty")
	}

	contentType := declaredType(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = declaredType(mimetype.Detect(data).String())
	}
	if !p.Allows(contentType) {
		return nil, utils.NewError(utils.KindInvalidInput, fmt.Sprintf("File type %s is not allowed for %s uploads", contentType, p.Name))
	}

	return &file{Data: data, ContentType: contentType, Filename: header.Filename}, nil
}

// declaredType strips parameters such as charset from a media type.
func declaredType(value string) string {
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return mediaType
}

func tooLarge(p Policy) error {
	return utils.NewError(utils.KindInvalidInput, fmt.Sprintf("File exceeds the %d MB limit for %s uploads", p.MaxBytes>>20, p.Name))
}
