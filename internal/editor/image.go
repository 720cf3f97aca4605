package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// MaxImageSize is the largest featured image accepted for upload.
const MaxImageSize = 10 << 20

var (
	ErrImageTooLarge = errors.New("image is larger than 10MB")
	ErrImageType     = errors.New("only JPEG, PNG, GIF and WebP images are allowed")
)

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// PendingImage is a featured image chosen locally and not yet uploaded.
type PendingImage struct {
	Ref         string
	Filename    string
	ContentType string
	Width       int
	Height      int
	data        []byte
}

// PendingImageInfo is the client visible part of a PendingImage.
type PendingImageInfo struct {
	Ref         string `json:"ref"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

func (p *PendingImage) info() *PendingImageInfo {
	if p == nil {
		return nil
	}
	return &PendingImageInfo{
		Ref:         p.Ref,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		Size:        len(p.data),
		Width:       p.Width,
		Height:      p.Height,
	}
}

// checkImage runs the pre-upload checks: size, declared type and a decode of
// the image header matching that type.
func checkImage(filename, contentType string, data []byte) (*PendingImage, error) {
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrImageType)
	}

	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	expected, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, ErrImageType
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != expected {
		return nil, fmt.Errorf("%w: file content does not match %s", ErrImageType, contentType)
	}

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == "/" || name == "" {
		name = "image." + expected
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}

	return &PendingImage{
		Ref:         localRefScheme + uuid.NewString() + "/" + name,
		Filename:    name,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
		data:        data,
	}, nil
}

// ImageUploader is the upload part of the client.
type ImageUploader interface {
	UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (backnews.FileUpload, error)
}

// UploadImage checks an image used inside the article body and uploads it at
// once. The returned URL is absolute.
func UploadImage(ctx context.Context, api ImageUploader, mediaBaseURL, filename, contentType string, data []byte) (backnews.FileUpload, error) {
	img, err := checkImage(filename, contentType, data)
	if err != nil {
		return backnews.FileUpload{}, err
	}
	upload, err := api.UploadImage(ctx, img.Filename, img.ContentType, bytes.NewReader(img.data))
	if err != nil {
		return backnews.FileUpload{}, err
	}
	upload.URL = absoluteURL(mediaBaseURL, upload.URL)
	return upload, nil
}

// absoluteURL prefixes relative upload URLs with the public media base.
func absoluteURL(base, url string) string {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "//") {
		return url
	}
	base = strings.TrimRight(base, "/")
	if base == "" {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return base + url
}
