// Package media uploads to a Cloudinary-compatible hosted media API.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/models"
	"clinic-app-server/internal/storage"
)

// uploadResponse is the subset of the provider's upload reply we keep.
type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
	Width     *int   `json:"width"`
	Height    *int   `json:"height"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the media API.
type Client struct {
	httpClient *resty.Client
	cloudName  string
	apiKey     string
	apiSecret  string
	now        func() time.Time
	logger     *zap.Logger
}

// New builds a Client. Requests are not retried: a failed upload is reported
// to the caller as is.
func New(cfg config.MediaConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(60*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		cloudName:  cfg.CloudName,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		now:        time.Now,
		logger:     logger,
	}
}

// sign computes the request signature over the sorted signed parameters.
func (c *Client) sign(params map[string]string, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

// Upload sends obj as a signed multipart upload.
func (c *Client) Upload(ctx context.Context, obj storage.Object) (*models.StorageMetadata, error) {
	resourceType := obj.ResourceType
	if resourceType == "" {
		resourceType = storage.ResourceAuto
	}
	filename := obj.Filename
	if filename == "" {
		filename = "upload"
	}

	params := map[string]string{
		"folder":    obj.Folder,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	form := map[string]string{
		"folder":    params["folder"],
		"timestamp": params["timestamp"],
		"api_key":   c.apiKey,
		"signature": c.sign(params, "folder", "timestamp"),
	}

	var result uploadResponse
	var failure errorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(form).
		SetFileReader("file", filename, bytes.NewReader(obj.Data)).
		SetResult(&result).
		SetError(&failure).
		Post(fmt.Sprintf("/%s/%s/upload", c.cloudName, resourceType))
	if err != nil {
		return nil, fmt.Errorf("media upload: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("media upload rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("folder", obj.Folder),
			zap.String("message", failure.Error.Message),
		)
		return nil, fmt.Errorf("media upload: status %d: %s", resp.StatusCode(), failure.Error.Message)
	}
	if result.SecureURL == "" {
		return nil, fmt.Errorf("media upload: response has no url")
	}

	bytesLen := result.Bytes
	if bytesLen == 0 {
		bytesLen = int64(len(obj.Data))
	}
	format := result.Format
	if format == "" {
		format = storage.Format(obj)
	}
	return &models.StorageMetadata{
		URL:       result.SecureURL,
		StorageID: result.PublicID,
		Format:    format,
		Bytes:     bytesLen,
		Width:     result.Width,
		Height:    result.Height,
	}, nil
}

// EnsureFolder creates folder through the admin API.
func (c *Client) EnsureFolder(ctx context.Context, folder string) error {
	var failure errorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.apiKey, c.apiSecret).
		SetError(&failure).
		Post(fmt.Sprintf("/%s/folders/%s", c.cloudName, strings.Trim(folder, "/")))
	if err != nil {
		return fmt.Errorf("create folder %q: %w", folder, err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("create folder %q: status %d: %s", folder, resp.StatusCode(), failure.Error.Message)
	}
	return nil
}
