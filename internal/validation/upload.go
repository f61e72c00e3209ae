// Package validation holds input admission checks shared by handlers and services.
package validation

import (
	"mime"
	"path/filepath"
	"strings"

	"lenscape/internal/models"
)

// DefaultMaxUploadBytes is the upload ceiling used when no configuration overrides it.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

var allowedImageMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// UploadDescriptor is what the client declared about an uploaded file.
// None of it has been verified against the bytes.
type UploadDescriptor struct {
	Size        int64
	ContentType string
	Filename    string
}

// ValidateUpload runs the admission checks in order (size, MIME type, extension)
// and returns the lowercase extension, leading dot included, on success.
// Only declared metadata is inspected; file contents are not sniffed.
func ValidateUpload(d UploadDescriptor, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if d.Size > maxBytes {
		return "", models.NewFileTooLargeError(maxBytes)
	}

	contentType := NormalizeContentType(d.ContentType)
	if _, ok := allowedImageMIMETypes[contentType]; !ok {
		return "", models.NewUnsupportedMediaTypeError(d.ContentType)
	}

	ext := strings.ToLower(filepath.Ext(d.Filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return "", models.NewUnsupportedExtensionError(ext)
	}

	return ext, nil
}

// NormalizeContentType strips parameters, lowercases, and folds image/jpg into image/jpeg.
func NormalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	return mediaType
}
