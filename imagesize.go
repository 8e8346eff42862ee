//go:build !vips

package main

import "clinic-app-server/internal/storage/s3store"

// imageSize is nil without the vips build tag, so S3 uploads carry no image dimensions.
var imageSize s3store.ImageProbe
