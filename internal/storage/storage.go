// Package storage defines the object storage client used for profile photos
// and report files.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"clinic-app-server/internal/models"
)

// ResourceType tells the provider how to treat an upload.
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceAuto  ResourceType = "auto"
)

// Object is one blob to upload.
type Object struct {
	Data         []byte
	Folder       string
	ResourceType ResourceType
	ContentType  string
	Filename     string
}

// Client uploads blobs to remote object storage.
type Client interface {
	Upload(ctx context.Context, obj Object) (*models.StorageMetadata, error)
	// EnsureFolder creates folder if the provider has folders. Existing
	// folders are not an error.
	EnsureFolder(ctx context.Context, folder string) error
}

// Format derives a short format name (png, pdf, json) for an object.
func Format(obj Object) string {
	if ext := strings.TrimPrefix(path.Ext(obj.Filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if obj.ContentType != "" {
		if mt := mimetype.Lookup(obj.ContentType); mt != nil {
			return strings.TrimPrefix(mt.Extension(), ".")
		}
	}
	return strings.TrimPrefix(mimetype.Detect(obj.Data).Extension(), ".")
}

// ObjectKey builds a collision-free key under the object's folder.
func ObjectKey(obj Object) string {
	name := path.Base(obj.Filename)
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join(obj.Folder, uuid.New().String()+"_"+name)
}

// MemoryClient keeps uploads in memory and records every call.
type MemoryClient struct {
	mu      sync.Mutex
	uploads []Object
	folders []string
	// Err, when set, is returned from every Upload.
	Err error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

func (c *MemoryClient) Upload(_ context.Context, obj Object) (*models.StorageMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.uploads = append(c.uploads, obj)
	if c.Err != nil {
		return nil, c.Err
	}
	key := fmt.Sprintf("%s/object-%d", obj.Folder, len(c.uploads))
	return &models.StorageMetadata{
		URL:       "memory://" + key,
		StorageID: key,
		Format:    Format(obj),
		Bytes:     int64(len(obj.Data)),
	}, nil
}

func (c *MemoryClient) EnsureFolder(_ context.Context, folder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.folders = append(c.folders, folder)
	return nil
}

// Calls returns the number of Upload calls, failed ones included.
func (c *MemoryClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.uploads)
}

// Uploads returns a copy of every object passed to Upload.
func (c *MemoryClient) Uploads() []Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Object(nil), c.uploads...)
}

// Folders returns the folders passed to EnsureFolder.
func (c *MemoryClient) Folders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.folders...)
}
