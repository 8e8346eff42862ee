package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/storage"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(config.MediaConfig{
		BaseURL:   srv.URL,
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
	}, zap.NewNop())
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "clinic/admin_img", r.FormValue("folder"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.Equal(t, "key", r.FormValue("api_key"))

		sum := sha1.Sum([]byte("folder=clinic/admin_img&timestamp=1700000000secret"))
		assert.Equal(t, hex.EncodeToString(sum[:]), r.FormValue("signature"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "a.png", header.Filename)
		assert.Equal(t, "png-bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"public_id":  "clinic/admin_img/abc",
			"secure_url": "https://cdn.example.com/abc.png",
			"format":     "png",
			"bytes":      9,
			"width":      64,
			"height":     32,
		})
	})

	meta, err := c.Upload(context.Background(), storage.Object{
		Data:         []byte("png-bytes"),
		Folder:       "clinic/admin_img",
		ResourceType: storage.ResourceImage,
		ContentType:  "image/png",
		Filename:     "a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/abc.png", meta.URL)
	assert.Equal(t, "clinic/admin_img/abc", meta.StorageID)
	assert.Equal(t, int64(9), meta.Bytes)
	require.NotNil(t, meta.Width)
	assert.Equal(t, 64, *meta.Width)
	assert.Equal(t, 32, *meta.Height)
}

func TestUpload_ProviderError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
	})

	_, err := c.Upload(context.Background(), storage.Object{Data: []byte("x"), Folder: "f"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Signature")
	assert.Equal(t, 1, calls)
}

func TestEnsureFolder(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "created", status: http.StatusOK},
		{name: "already exists", status: http.StatusConflict},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/demo/folders/clinic/admin_img", r.URL.Path)
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "key", user)
				assert.Equal(t, "secret", pass)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{}`))
			})

			err := c.EnsureFolder(context.Background(), "/clinic/admin_img/")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
