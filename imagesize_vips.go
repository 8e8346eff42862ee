//go:build vips

package main

import (
	"clinic-app-server/internal/storage/imageprobe"
	"clinic-app-server/internal/storage/s3store"
)

var imageSize s3store.ImageProbe = imageprobe.Size
