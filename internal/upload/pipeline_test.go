package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-app-server/internal/models"
	"clinic-app-server/internal/storage"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/utils"
)

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// buildForm encodes parts and parses them back the way net/http would.
func buildForm(t *testing.T, parts ...part) *multipart.Form {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fixture struct {
	pipeline *Pipeline
	storage  *storage.MemoryClient
	stores   *store.Stores
	patient  *models.Principal
	admin    *models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := store.NewMemoryStores()
	client := storage.NewMemoryClient()

	patient := &models.Principal{Name: "Jane", Email: "jane@x.com", Phone: "1"}
	require.NoError(t, stores.Patients.Create(context.Background(), patient))
	admin := &models.Principal{Name: "Root", Email: "root@clinic.com", Phone: "2"}
	require.NoError(t, stores.Admins.Create(context.Background(), admin))

	return &fixture{
		pipeline: New(client, stores, "clinic_user_img", zap.NewNop()),
		storage:  client,
		stores:   stores,
		patient:  patient,
		admin:    admin,
	}
}

func assertKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, utils.KindOf(err), err.Error())
}

func TestFolders(t *testing.T) {
	p := New(storage.NewMemoryClient(), store.NewMemoryStores(), "/clinic_user_img/", zap.NewNop())
	assert.Equal(t, "clinic_user_img", p.PhotoFolder(models.RolePatient))
	assert.Equal(t, "clinic_user_img/admin_img", p.PhotoFolder(models.RoleAdmin))
	assert.Equal(t, "clinic_user_img/reports/p1", p.ReportFolder("p1"))
	assert.Equal(t, []string{"clinic_user_img", "clinic_user_img/admin_img"}, p.Folders())
}

func TestReportFromFile(t *testing.T) {
	f := newFixture(t)
	form := buildForm(t, part{field: "report", filename: "cbc.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 data")})

	report, err := f.pipeline.ReportFromFile(context.Background(), form, ReportInput{
		PatientID: f.patient.ID,
		AdminID:   f.admin.ID,
		Title:     "  CBC ",
	})
	require.NoError(t, err)
	assert.Equal(t, "file", report.Category)
	assert.Equal(t, "CBC", report.Title)
	require.NotNil(t, report.Storage())
	assert.Nil(t, report.InlineData())
	assert.Equal(t, f.admin.ID, report.UploadedByAdminID)

	uploads := f.storage.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "clinic_user_img/reports/"+f.patient.ID, uploads[0].Folder)
	assert.Equal(t, "application/pdf", uploads[0].ContentType)

	saved, err := f.stores.Reports.ListByPatient(context.Background(), f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestReportFromFile_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		patientID func(f *fixture) string
		form      func(t *testing.T) *multipart.Form
		kind      utils.ErrorKind
	}{
		{
			name:      "disallowed type",
			patientID: func(f *fixture) string { return f.patient.ID },
			form: func(t *testing.T) *multipart.Form {
				return buildForm(t, part{field: "file", filename: "x.zip", contentType: "application/zip", data: []byte("PK")})
			},
			kind: utils.KindInvalidInput,
		},
		{
			name:      "too large",
			patientID: func(f *fixture) string { return f.patient.ID },
			form: func(t *testing.T) *multipart.Form {
				return buildForm(t, part{field: "file", filename: "big.txt", contentType: "text/plain", data: bytes.Repeat([]byte("a"), MaxReportBytes+1)})
			},
			kind: utils.KindInvalidInput,
		},
		{
			name:      "no file",
			patientID: func(f *fixture) string { return f.patient.ID },
			form:      func(t *testing.T) *multipart.Form { return nil },
			kind:      utils.KindInvalidInput,
		},
		{
			name:      "malformed patient id",
			patientID: func(f *fixture) string { return "not-an-id" },
			form: func(t *testing.T) *multipart.Form {
				return buildForm(t, part{field: "file", filename: "r.txt", contentType: "text/plain", data: []byte("ok")})
			},
			kind: utils.KindInvalidInput,
		},
		{
			name:      "unknown patient",
			patientID: func(f *fixture) string { return "7f1b8f9e-0000-4000-8000-000000000000" },
			form: func(t *testing.T) *multipart.Form {
				return buildForm(t, part{field: "file", filename: "r.txt", contentType: "text/plain", data: []byte("ok")})
			},
			kind: utils.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline.ReportFromFile(context.Background(), tt.form(t), ReportInput{PatientID: tt.patientID(f)})
			assertKind(t, err, tt.kind)
			assert.Zero(t, f.storage.Calls(), "nothing may reach storage")

			all, _ := f.stores.Reports.ListAll(context.Background())
			assert.Empty(t, all)
		})
	}
}

func TestReportFromFile_SniffsMissingContentType(t *testing.T) {
	f := newFixture(t)
	form := buildForm(t, part{field: "report", filename: "scan", data: pngBytes})

	report, err := f.pipeline.ReportFromFile(context.Background(), form, ReportInput{PatientID: f.patient.ID, Category: "xray"})
	require.NoError(t, err)
	assert.Equal(t, "xray", report.Category)
	assert.Equal(t, "image/png", f.storage.Uploads()[0].ContentType)
}

func TestReportFromFile_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.storage.Err = errors.New("provider unavailable")
	form := buildForm(t, part{field: "file", filename: "r.txt", contentType: "text/plain", data: []byte("ok")})

	_, err := f.pipeline.ReportFromFile(context.Background(), form, ReportInput{PatientID: f.patient.ID})
	assertKind(t, err, utils.KindUploadFailed)
	assert.Equal(t, 1, f.storage.Calls())

	all, _ := f.stores.Reports.ListAll(context.Background())
	assert.Empty(t, all, "no report after failed upload")
}

func TestReportFromJSON(t *testing.T) {
	f := newFixture(t)

	report, err := f.pipeline.ReportFromJSON(context.Background(),
		ReportInput{PatientID: f.patient.ID, Category: "blood"},
		json.RawMessage(`"{\"wbc\":5}"`))
	require.NoError(t, err)
	assert.Nil(t, report.Storage())

	var data map[string]any
	require.NoError(t, json.Unmarshal(report.InlineData(), &data))
	assert.Equal(t, float64(5), data["wbc"])
	assert.Zero(t, f.storage.Calls())
}

func TestReportFromJSON_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.ReportFromJSON(context.Background(),
		ReportInput{PatientID: "7f1b8f9e-0000-4000-8000-000000000000", Category: "blood"}, nil)
	assertKind(t, err, utils.KindNotFound)

	_, err = f.pipeline.ReportFromJSON(context.Background(),
		ReportInput{PatientID: f.patient.ID, Category: "   "}, nil)
	assertKind(t, err, utils.KindInvalidInput)

	all, _ := f.stores.Reports.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestInlineValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: ``, want: `{}`},
		{in: `null`, want: `{}`},
		{in: `{"wbc":5}`, want: `{"wbc":5}`},
		{in: `[1,2]`, want: `[1,2]`},
		{in: `"{\"wbc\":5}"`, want: `{"wbc":5}`},
		{in: `"wbc high"`, want: `"wbc high"`},
		{in: `"{broken"`, want: `"{broken"`},
		{in: `"null"`, want: `"null"`},
		{in: `" null "`, want: `" null "`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.JSONEq(t, tt.want, string(InlineValue(json.RawMessage(tt.in))))
		})
	}
}

func TestSignupPhoto(t *testing.T) {
	f := newFixture(t)
	form := buildForm(t, part{field: "photo", filename: "me.png", contentType: "image/png", data: pngBytes})

	meta, err := f.pipeline.SignupPhoto(context.Background(), models.RoleAdmin, form)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.URL)
	assert.Equal(t, "clinic_user_img/admin_img", f.storage.Uploads()[0].Folder)
	assert.Equal(t, storage.ResourceImage, f.storage.Uploads()[0].ResourceType)
}

func TestSignupPhoto_Rejections(t *testing.T) {
	tests := []struct {
		name string
		form func(t *testing.T) *multipart.Form
	}{
		{name: "not multipart", form: func(t *testing.T) *multipart.Form { return nil }},
		{name: "two files", form: func(t *testing.T) *multipart.Form {
			return buildForm(t,
				part{field: "image", filename: "a.png", contentType: "image/png", data: pngBytes},
				part{field: "photo", filename: "b.png", contentType: "image/png", data: pngBytes},
			)
		}},
		{name: "wrong field", form: func(t *testing.T) *multipart.Form {
			return buildForm(t, part{field: "avatar", filename: "a.png", contentType: "image/png", data: pngBytes})
		}},
		{name: "pdf is not an image", form: func(t *testing.T) *multipart.Form {
			return buildForm(t, part{field: "image", filename: "a.pdf", contentType: "application/pdf", data: []byte("%PDF")})
		}},
		{name: "image too large", form: func(t *testing.T) *multipart.Form {
			return buildForm(t, part{field: "image", filename: "a.png", contentType: "image/png", data: bytes.Repeat([]byte("a"), MaxImageBytes+1)})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline.SignupPhoto(context.Background(), models.RolePatient, tt.form(t))
			assertKind(t, err, utils.KindInvalidInput)
			assert.Zero(t, f.storage.Calls())
		})
	}
}

func TestPrincipalPhoto(t *testing.T) {
	f := newFixture(t)
	form := buildForm(t, part{field: "image", filename: "me.png", contentType: "image/png", data: pngBytes})

	result, err := f.pipeline.PrincipalPhoto(context.Background(), models.RolePatient, form, PhotoTarget{Email: "JANE@x.com"})
	require.NoError(t, err)
	require.NotNil(t, result.Principal)
	assert.Equal(t, result.Storage.URL, result.Principal.PhotoURL)

	stored, err := f.stores.Patients.FindByID(context.Background(), f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Storage.URL, stored.PhotoURL)
}

func TestPrincipalPhoto_NoTarget(t *testing.T) {
	f := newFixture(t)
	form := buildForm(t, part{field: "file", filename: "me.png", contentType: "image/png", data: pngBytes})

	result, err := f.pipeline.PrincipalPhoto(context.Background(), models.RoleAdmin, form, PhotoTarget{})
	require.NoError(t, err)
	assert.Nil(t, result.Principal)
	assert.True(t, strings.HasPrefix(result.Storage.StorageID, "clinic_user_img/admin_img"))
}

func TestPrincipalPhoto_TargetCheckedBeforeUpload(t *testing.T) {
	f := newFixture(t)
	form := buildForm(t, part{field: "image", filename: "me.png", contentType: "image/png", data: pngBytes})

	_, err := f.pipeline.PrincipalPhoto(context.Background(), models.RoleAdmin, form, PhotoTarget{ID: "bad"})
	assertKind(t, err, utils.KindInvalidInput)

	_, err = f.pipeline.PrincipalPhoto(context.Background(), models.RoleAdmin, form, PhotoTarget{Email: "nobody@x.com"})
	assertKind(t, err, utils.KindNotFound)

	assert.Zero(t, f.storage.Calls())
}
