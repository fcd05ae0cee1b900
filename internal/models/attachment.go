package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Message images are stored inline in the message document as a data URI,
// so there is no separate blob store to keep consistent with the message
// lifecycle. The cap keeps documents well under MongoDB's 16MB limit.
const MaxAttachmentBytes = 1 << 20 // 1MB

var (
	ErrImageTooLarge      = errors.New("image exceeds the 1MB attachment limit")
	ErrInvalidImageFormat = errors.New("image must be a base64 data URI")
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// EncodeAttachment wraps raw image bytes into the self-describing data URI
// stored on the message. Rejects oversized payloads before any store write.
func EncodeAttachment(mimeType string, data []byte) (string, error) {
	if len(data) > MaxAttachmentBytes {
		return "", ErrImageTooLarge
	}
	if !allowedImageTypes[mimeType] {
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidImageFormat, mimeType)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// ValidateAttachment checks an already-encoded data URI (e.g. one produced by
// the browser) without decoding it fully. Empty input is valid: the image is
// optional.
func ValidateAttachment(dataURI string) error {
	if dataURI == "" {
		return nil
	}
	if !strings.HasPrefix(dataURI, "data:") {
		return ErrInvalidImageFormat
	}
	rest := strings.TrimPrefix(dataURI, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return ErrInvalidImageFormat
	}
	if !allowedImageTypes[rest[:sep]] {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidImageFormat, rest[:sep])
	}
	payload := rest[sep+len(";base64,"):]
	// Base64 expands by 4/3, so compare in encoded space to avoid decoding.
	if len(payload) > (MaxAttachmentBytes*4+2)/3 {
		return ErrImageTooLarge
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return ErrInvalidImageFormat
	}
	return nil
}
