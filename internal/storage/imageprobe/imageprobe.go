//go:build vips

// Package imageprobe reads image dimensions with libvips (cgo). It is only
// compiled with the vips build tag.
package imageprobe

import "github.com/h2non/bimg"

// Size returns the width and height of an encoded image.
func Size(data []byte) (int, int, error) {
	size, err := bimg.NewImage(data).Size()
	if err != nil {
		return 0, 0, err
	}
	return size.Width, size.Height, nil
}
